package entities

import (
	"strings"
	"time"
)

// TaskPriority is the urgency of an action item.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// TaskStatus tracks a task after creation.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// DefaultTaskCategory is used when the extraction leaves category empty.
const DefaultTaskCategory = "General"

// ParseTaskPriority falls back to medium for anything unrecognised.
func ParseTaskPriority(raw string) TaskPriority {
	switch TaskPriority(strings.ToLower(strings.TrimSpace(raw))) {
	case TaskPriorityLow:
		return TaskPriorityLow
	case TaskPriorityHigh:
		return TaskPriorityHigh
	default:
		return TaskPriorityMedium
	}
}

// Task is an action item derived from a note.
type Task struct {
	ID          string       `json:"id" db:"id"`
	Title       string       `json:"title" db:"title"`
	Description string       `json:"description" db:"description"`
	Priority    TaskPriority `json:"priority" db:"priority"`
	Category    string       `json:"category" db:"category"`
	Status      TaskStatus   `json:"status" db:"status"`
	NoteID      string       `json:"note_id" db:"note_id"`
	PatientID   string       `json:"patient_id" db:"patient_id"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}
