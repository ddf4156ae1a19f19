package providers

import (
	"context"
	"time"
)

// NoteLocker serialises pipeline runs per note.
type NoteLocker interface {
	// TryLock returns a release func, or ok=false when another run holds the note.
	TryLock(ctx context.Context, noteID string, ttl time.Duration) (release func(), ok bool, err error)
}
