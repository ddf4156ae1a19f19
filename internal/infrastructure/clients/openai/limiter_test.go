package openai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/handoff/backend/pkg/config"
)

func TestTokenBucket_StopsRefillingAfterClose(t *testing.T) {
	bucket := newTokenBucket(60000, 1)
	require.NotNil(t, bucket)
	require.NoError(t, bucket.Wait(context.Background()))

	bucket.Close()
	bucket.Close()
	time.Sleep(10 * time.Millisecond)
	for drained := false; !drained; {
		select {
		case <-bucket.tokens:
		default:
			drained = true
		}
	}
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bucket.Wait(ctx), context.DeadlineExceeded)
}

func TestTokenBucket_DisabledWithoutRate(t *testing.T) {
	assert.Nil(t, newTokenBucket(0, 5))
}

func TestClient_CloseWithoutLimiter(t *testing.T) {
	client, err := NewClient(&config.OpenAIConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.NotPanics(t, client.Close)
}
