package locks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/handoff/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

const keyPrefix = "handoff:note-lock:"

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serialises note runs across API replicas
type RedisLocker struct {
	client *redisclient.Client
}

// NewRedisLocker creates a locker backed by SET NX PX
func NewRedisLocker(client *redisclient.Client) providers.NoteLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, noteID string, ttl time.Duration) (func(), bool, error) {
	key := keyPrefix + noteID
	token := uuid.NewString()

	ok, err := l.client.Client().SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, apperrors.NewTransientError("failed to acquire note lock", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// the caller's context may already be cancelled
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client.Client(), []string{key}, token).Err(); err != nil && err != redis.Nil {
			observability.GetLogger().Warn().Err(err).Str("note_id", noteID).Msg("failed to release note lock")
		}
	}
	return release, true, nil
}
