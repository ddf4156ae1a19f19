package entities

import (
	"time"

	"github.com/google/uuid"
)

// ChangeEventType identifies a row change relevant to the UI.
type ChangeEventType string

const (
	ChangeEventNoteStateChanged ChangeEventType = "note.state_changed"
	ChangeEventReportInserted   ChangeEventType = "report.inserted"
	ChangeEventReportEmbedded   ChangeEventType = "report.embedded"
)

// ChangeEvent is a row-change notification relayed to subscribers.
type ChangeEvent struct {
	ID        string          `json:"id"`
	Table     string          `json:"table"`
	Type      ChangeEventType `json:"type"`
	RecordID  string          `json:"record_id"`
	NoteID    string          `json:"note_id"`
	PatientID string          `json:"patient_id"`
	State     NoteState       `json:"state,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewChangeEvent stamps an event with an id and time when they are missing.
func NewChangeEvent(e ChangeEvent) *ChangeEvent {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return &e
}
