package locks

import (
	"context"
	"sync"
	"time"

	"github.com/zatekoja/handoff/backend/internal/domain/providers"
)

// LocalLocker serialises note runs inside one process
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]lease
	now  func() time.Time
	seq  uint64
}

type lease struct {
	id      uint64
	expires time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() providers.NoteLocker {
	return newLocalLocker(time.Now)
}

func newLocalLocker(now func() time.Time) *LocalLocker {
	return &LocalLocker{held: make(map[string]lease), now: now}
}

// TryLock treats an expired lease as free, matching the Redis TTL behaviour
func (l *LocalLocker) TryLock(_ context.Context, noteID string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[noteID]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}
	l.seq++
	id := l.seq
	l.held[noteID] = lease{id: id, expires: now.Add(ttl)}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[noteID]; ok && cur.id == id {
				delete(l.held, noteID)
			}
		})
	}
	return release, true, nil
}
