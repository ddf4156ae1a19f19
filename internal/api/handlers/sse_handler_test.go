package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/handoff/backend/internal/api/handlers"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
)

// MockEventBus for testing
type MockEventBus struct {
	mu           sync.RWMutex
	subscribers  map[string][]chan *entities.ChangeEvent
	published    []*entities.ChangeEvent
	subscribeErr error
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		subscribers: make(map[string][]chan *entities.ChangeEvent),
	}
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.ChangeEvent) error {
	m.mu.Lock()
	m.published = append(m.published, event)
	channels := append([]chan *entities.ChangeEvent(nil), m.subscribers[channel]...)
	m.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.ChangeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	ch := make(chan *entities.ChangeEvent, 10)
	m.subscribers[channel] = append(m.subscribers[channel], ch)
	return ch, nil
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, channel)
	return nil
}

func (m *MockEventBus) Close() error {
	return nil
}

func (m *MockEventBus) subscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[channel])
}

func streamUntilCancel(t *testing.T, serve func(http.ResponseWriter, *http.Request), path, id string, during func()) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.SetPathValue("id", id)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		serve(w, req)
		close(done)
	}()

	during()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after cancel")
	}
	return w
}

func TestSSEHandler_StreamNoteUpdates(t *testing.T) {
	eventBus := NewMockEventBus()
	handler := handlers.NewSSEHandler(eventBus)

	w := streamUntilCancel(t, handler.StreamNoteUpdates, "/api/stream/notes/n1", "n1", func() {
		require.Eventually(t, func() bool { return eventBus.subscriberCount(providers.GetNoteChannel("n1")) == 1 }, time.Second, 10*time.Millisecond)
		event := entities.NewChangeEvent(entities.ChangeEvent{
			Type:     entities.ChangeEventNoteStateChanged,
			Table:    "notes",
			RecordID: "n1",
			NoteID:   "n1",
			State:    entities.NoteStateExtracting,
		})
		require.NoError(t, eventBus.Publish(context.Background(), providers.GetNoteChannel("n1"), event))
		time.Sleep(100 * time.Millisecond)
	})

	result := w.Result()
	assert.Equal(t, "text/event-stream", result.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", result.Header.Get("Cache-Control"))

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: connected\n"))
	assert.Contains(t, body, `"note_id":"n1"`)
	assert.Contains(t, body, "event: note.state_changed\n")
	assert.Contains(t, body, `"state":"extracting"`)
}

func TestSSEHandler_StreamPatientUpdates(t *testing.T) {
	eventBus := NewMockEventBus()
	handler := handlers.NewSSEHandler(eventBus)

	w := streamUntilCancel(t, handler.StreamPatientUpdates, "/api/stream/patients/p1", "p1", func() {
		require.Eventually(t, func() bool { return eventBus.subscriberCount(providers.GetPatientChannel("p1")) == 1 }, time.Second, 10*time.Millisecond)
	})

	assert.Contains(t, w.Body.String(), `"patient_id":"p1"`)
}

func TestSSEHandler_Errors(t *testing.T) {
	t.Run("missing note ID", func(t *testing.T) {
		handler := handlers.NewSSEHandler(NewMockEventBus())
		w := httptest.NewRecorder()
		handler.StreamNoteUpdates(w, httptest.NewRequest(http.MethodGet, "/api/stream/notes/", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bus unavailable", func(t *testing.T) {
		bus := NewMockEventBus()
		bus.subscribeErr = errors.New("redis down")
		handler := handlers.NewSSEHandler(bus)

		req := httptest.NewRequest(http.MethodGet, "/api/stream/patients/p1", nil)
		req.SetPathValue("id", "p1")
		w := httptest.NewRecorder()
		handler.StreamPatientUpdates(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, 0, handler.GetClientCount())
	})
}

func TestSSEHandler_ClientCount(t *testing.T) {
	eventBus := NewMockEventBus()
	handler := handlers.NewSSEHandler(eventBus)

	assert.Equal(t, 0, handler.GetClientCount())

	req := httptest.NewRequest(http.MethodGet, "/api/stream/notes/n1", nil)
	req.SetPathValue("id", "n1")
	w := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		handler.StreamNoteUpdates(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return handler.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 0, handler.GetClientCount())
}
