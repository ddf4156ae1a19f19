package entities

import (
	"strings"
	"time"
)

// ShiftType is the nursing shift a report belongs to.
type ShiftType string

const (
	ShiftDay     ShiftType = "day"
	ShiftEvening ShiftType = "evening"
	ShiftNight   ShiftType = "night"
)

// ShiftForTime buckets a timestamp: day 07-15, evening 15-23, night otherwise.
func ShiftForTime(t time.Time) ShiftType {
	switch h := t.Hour(); {
	case h >= 7 && h < 15:
		return ShiftDay
	case h >= 15 && h < 23:
		return ShiftEvening
	default:
		return ShiftNight
	}
}

// ConsciousnessLevel follows the AVPU scale with Confused and Drowsy added.
type ConsciousnessLevel string

const (
	ConsciousnessAlert           ConsciousnessLevel = "Alert"
	ConsciousnessConfused        ConsciousnessLevel = "Confused"
	ConsciousnessDrowsy          ConsciousnessLevel = "Drowsy"
	ConsciousnessRespondsToVoice ConsciousnessLevel = "Responds to Voice"
	ConsciousnessRespondsToPain  ConsciousnessLevel = "Responds to Pain"
	ConsciousnessUnresponsive    ConsciousnessLevel = "Unresponsive"
	ConsciousnessUnknown         ConsciousnessLevel = "Unknown"
)

var consciousnessAliases = map[string]ConsciousnessLevel{
	"alert":             ConsciousnessAlert,
	"a":                 ConsciousnessAlert,
	"confused":          ConsciousnessConfused,
	"c":                 ConsciousnessConfused,
	"drowsy":            ConsciousnessDrowsy,
	"responds to voice": ConsciousnessRespondsToVoice,
	"voice":             ConsciousnessRespondsToVoice,
	"v":                 ConsciousnessRespondsToVoice,
	"responds to pain":  ConsciousnessRespondsToPain,
	"pain":              ConsciousnessRespondsToPain,
	"p":                 ConsciousnessRespondsToPain,
	"unresponsive":      ConsciousnessUnresponsive,
	"u":                 ConsciousnessUnresponsive,
}

// ParseConsciousness maps free adapter output onto the enumeration.
func ParseConsciousness(raw string) ConsciousnessLevel {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", " ")
	if level, ok := consciousnessAliases[key]; ok {
		return level
	}
	return ConsciousnessUnknown
}

// Report is the structured artifact extracted from one note.
type Report struct {
	ID             string             `json:"id"`
	PatientID      string             `json:"patient_id"`
	NoteID         string             `json:"note_id"`
	AuthorID       string             `json:"author_id"`
	ShiftType      ShiftType          `json:"shift_type"`
	Summary        string             `json:"summary"`
	PainScore      *int               `json:"pain_score,omitempty"`
	Consciousness  ConsciousnessLevel `json:"consciousness"`
	RiskFactors    []string           `json:"risk_factors"`
	AccessLines    []string           `json:"access_lines"`
	PendingLabs    []string           `json:"pending_labs"`
	ActionItems    []string           `json:"action_items"`
	Language       string             `json:"language"`
	Embedding      []float32          `json:"-"`
	EmbeddingModel *string            `json:"embedding_model,omitempty"`
	EmbeddedAt     *time.Time         `json:"embedded_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// HasEmbedding reports whether the report is searchable.
func (r *Report) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// ValidPainScore returns the score when it lies within 0-10.
func ValidPainScore(score *int) *int {
	if score == nil || *score < 0 || *score > 10 {
		return nil
	}
	v := *score
	return &v
}
