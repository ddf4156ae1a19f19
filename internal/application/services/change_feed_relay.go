package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
)

// ChangeFeedRelay republishes Postgres NOTIFY payloads on the event bus,
// once on the note channel and once on the patient channel.
type ChangeFeedRelay struct {
	bus providers.EventBus
}

// NewChangeFeedRelay creates a relay onto bus
func NewChangeFeedRelay(bus providers.EventBus) *ChangeFeedRelay {
	return &ChangeFeedRelay{bus: bus}
}

// Run consumes notifications until ctx is done or the channel closes.
// ping, when set, is called periodically to detect dead connections.
func (r *ChangeFeedRelay) Run(ctx context.Context, notifications <-chan *pq.Notification, ping func() error) {
	logger := observability.LoggerFromContext(ctx)
	health := time.NewTicker(90 * time.Second)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			// nil after a reconnect; events in between are lost
			if n == nil {
				logger.Warn().Msg("change feed reconnected")
				continue
			}
			if err := r.Relay(ctx, n.Extra); err != nil {
				logger.Warn().Err(err).Str("channel", n.Channel).Msg("failed to relay change")
			}
		case <-health.C:
			if ping != nil {
				if err := ping(); err != nil {
					logger.Warn().Err(err).Msg("change feed ping failed")
				}
			}
		}
	}
}

// Relay decodes one payload and publishes it
func (r *ChangeFeedRelay) Relay(ctx context.Context, payload string) error {
	var raw entities.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return err
	}
	event := entities.NewChangeEvent(raw)

	if event.NoteID != "" {
		if err := r.bus.Publish(ctx, providers.GetNoteChannel(event.NoteID), event); err != nil {
			return err
		}
	}
	if event.PatientID != "" {
		if err := r.bus.Publish(ctx, providers.GetPatientChannel(event.PatientID), event); err != nil {
			return err
		}
	}
	return nil
}
