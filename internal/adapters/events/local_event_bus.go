package events

import (
	"context"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
)

// LocalEventBus delivers events within one process, used when Redis is disabled
type LocalEventBus struct {
	hub *hub
}

// NewLocalEventBus creates an in-process event bus
func NewLocalEventBus() providers.EventBus {
	return &LocalEventBus{hub: newHub(observability.GetLogger())}
}

func (b *LocalEventBus) Publish(_ context.Context, channel string, event *entities.ChangeEvent) error {
	b.hub.broadcast(channel, event)
	return nil
}

func (b *LocalEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.ChangeEvent, error) {
	ch, _ := b.hub.add(channel)
	go func() {
		<-ctx.Done()
		b.hub.remove(channel, ch)
	}()
	return ch, nil
}

func (b *LocalEventBus) Unsubscribe(_ context.Context, channel string) error {
	b.hub.drop(channel)
	return nil
}

func (b *LocalEventBus) Close() error {
	for _, channel := range b.hub.channels() {
		b.hub.drop(channel)
	}
	return nil
}
