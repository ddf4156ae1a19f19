package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/pkg/config"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.OpenAIConfig{
		APIKey:               "test-key",
		BaseURL:              server.URL + "/v1",
		TranscriptionModel:   "whisper-1",
		ChatModel:            "gpt-4o-mini",
		EmbeddingModel:       "text-embedding-3-small",
		EmbeddingDimensions:  3,
		EmbeddingQueryPrefix: "search_query: ",
		Timeout:              5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(body)
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(&config.OpenAIConfig{})
	assert.Error(t, err)
	_, err = NewClient(nil)
	assert.Error(t, err)
}

func TestExtract_ParsesJSONReport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "json_object")
		assert.Contains(t, string(body), "Write every text field in en")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse("```json\n{\"summary\":\"Patient stable.\",\"pain_score\":3,\"consciousness\":\"Alert\",\"pending_labs\":[\"recheck in 2 hours\"],\"tasks\":[{\"title\":\"Recheck labs\",\"priority\":\"medium\",\"category\":\"Lab Work\"}]}\n```"))
	})

	out, err := client.Extract(context.Background(), entities.ExtractionRequest{Text: "patient stable, pain 3, recheck labs in 2 hours", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "Patient stable.", out.Summary)
	require.NotNil(t, out.PainScore)
	assert.Equal(t, 3, *out.PainScore)
	assert.Equal(t, []string{"recheck in 2 hours"}, out.PendingLabs)
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, "Lab Work", out.Tasks[0].Category)
}

func TestExtract_MalformedResponses(t *testing.T) {
	replies := []string{"not json at all", `{"summary":"   ","tasks":[]}`}
	for _, reply := range replies {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, chatResponse(reply))
		})
		_, err := client.Extract(context.Background(), entities.ExtractionRequest{Text: "x"})
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeMalformedResponse), reply)
	}
}

func TestExtract_StrictModeUsesFallbackPrompt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "no prose and no code fences")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse(`{"summary":"ok"}`))
	})
	_, err := client.Extract(context.Background(), entities.ExtractionRequest{Text: "x", Strict: true})
	assert.NoError(t, err)
}

func TestChat_ServerErrorsAreTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	})
	_, err := client.Translate(context.Background(), "hola", "en")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestChat_RateLimitIsTransientAndBadRequestIsNot(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(status.Load()))
		fmt.Fprint(w, `{"error":{"message":"nope","type":"invalid_request_error"}}`)
	})

	_, err := client.Answer(context.Background(), "sys", "ctx", "q")
	assert.True(t, apperrors.IsTransient(err))

	status.Store(http.StatusBadRequest)
	_, err = client.Answer(context.Background(), "sys", "ctx", "q")
	require.Error(t, err)
	assert.False(t, apperrors.IsTransient(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestCall_BreakerOpensAfterConsecutiveTransientFailures(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error":{"message":"bad gateway"}}`)
	})

	for i := 0; i < 7; i++ {
		_, err := client.Translate(context.Background(), "x", "en")
		assert.True(t, apperrors.IsTransient(err))
	}
	assert.Equal(t, int32(5), hits.Load())
}

func TestEmbed_AppliesQueryPrefixAndChecksDimensions(t *testing.T) {
	dims := 3
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vector := make([]float64, dims)
		for i := range vector {
			vector[i] = 0.5
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data":   []map[string]interface{}{{"object": "embedding", "index": 0, "embedding": vector, "input_echo": req.Input[0]}},
		})
		assert.True(t, strings.HasPrefix(req.Input[0], "search_query: "))
	})

	vec, err := client.Embed(context.Background(), "any fever?", entities.EmbeddingModeQuery)
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, 3, client.Dimensions())
	assert.Equal(t, "text-embedding-3-small", client.Model())

	dims = 2
	_, err = client.Embed(context.Background(), "any fever?", entities.EmbeddingModeQuery)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeMalformedResponse))
}

func TestTranscribe_VerboseJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"task":"transcribe","language":"arabic","duration":4.2,"text":" المريض مستقر ","segments":[{"id":0,"avg_logprob":-0.1},{"id":1,"avg_logprob":-0.3}]}`)
	})

	out, err := client.Transcribe(context.Background(), []byte("RIFF....WAVE"), "notes/abc.wav")
	require.NoError(t, err)
	assert.Equal(t, "المريض مستقر", out.Text)
	assert.Equal(t, "ar", out.Language)
	assert.InDelta(t, 0.818, out.Confidence, 0.01)
}

func TestTranscribe_EmptyInputsAreUnrecoverable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"task":"transcribe","language":"english","text":"  "}`)
	})

	_, err := client.Transcribe(context.Background(), nil, "a.wav")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnrecoverableInput))

	_, err = client.Transcribe(context.Background(), []byte("data"), "a.wav")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnrecoverableInput))
}

func TestClassify_Timeout(t *testing.T) {
	err := classify(capEmbed, context.DeadlineExceeded)
	assert.True(t, apperrors.IsTransient(err))
	assert.Nil(t, classify(capEmbed, nil))
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, "en", normalizeLanguage("English"))
	assert.Equal(t, "ar-eg", normalizeLanguage("ar-EG"))
	assert.Equal(t, "", normalizeLanguage(""))
}
