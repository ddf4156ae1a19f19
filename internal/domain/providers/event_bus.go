package providers

import (
	"context"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.ChangeEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.ChangeEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelNotePrefix is the prefix for note-specific channels
	EventChannelNotePrefix = "note:"

	// EventChannelPatientPrefix is the prefix for patient-wide channels
	EventChannelPatientPrefix = "patient:"
)

// GetNoteChannel returns the channel name for a specific note
func GetNoteChannel(noteID string) string {
	return EventChannelNotePrefix + noteID
}

// GetPatientChannel returns the channel name for everything about a patient
func GetPatientChannel(patientID string) string {
	return EventChannelPatientPrefix + patientID
}
