package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"github.com/zatekoja/handoff/backend/pkg/config"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// Capabilities, used as breaker names and metric attributes.
const (
	capTranscribe = "transcribe"
	capTranslate  = "translate"
	capExtract    = "extract"
	capEmbed      = "embed"
	capAnswer     = "answer"
)

// Client implements every AI provider against an OpenAI-compatible API.
type Client struct {
	api      *goopenai.Client
	cfg      config.OpenAIConfig
	limiter  *tokenBucket
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient creates a new OpenAI client.
func NewClient(cfg *config.OpenAIConfig) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	c := &Client{
		api:      goopenai.NewClientWithConfig(apiCfg),
		cfg:      *cfg,
		limiter:  newTokenBucket(cfg.RequestsPerMinute, 5),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, name := range []string{capTranscribe, capTranslate, capExtract, capEmbed, capAnswer} {
		c.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openai-" + name,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return c, nil
}

// Close stops the rate limiter's refill goroutine
func (c *Client) Close() {
	if c.limiter != nil {
		c.limiter.Close()
	}
}

// call runs fn behind the rate limiter and the capability's breaker.
// Only transient failures count against the breaker.
func (c *Client) call(ctx context.Context, capability, model string, fn func() error) error {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			recordOpenAIMetric(ctx, capability, model, time.Since(waitStart), err)
			return classify(capability, err)
		}
		recordOpenAIRateLimitWait(ctx, model, time.Since(waitStart))
	}

	start := time.Now()
	var permanent error
	_, err := c.breakers[capability].Execute(func() (interface{}, error) {
		callErr := classify(capability, fn())
		if callErr != nil && !apperrors.IsTransient(callErr) {
			permanent = callErr
			return nil, nil
		}
		return nil, callErr
	})
	if err == nil {
		err = permanent
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = apperrors.NewTransientError("openai "+capability+" circuit open", err)
	}

	recordOpenAIMetric(ctx, capability, model, time.Since(start), err)
	return err
}

// classify maps transport and API failures onto the adapter error taxonomy.
func classify(capability string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	msg := "openai " + capability + " failed"
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTransientError(msg+": timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.NewExternalError(msg+": canceled", err)
	}

	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		// connection refused, reset and similar network errors
		return apperrors.NewTransientError(msg, err)
	}

	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return apperrors.NewTransientError(fmt.Sprintf("%s: status %d", msg, status), err)
	}
	return apperrors.NewExternalError(fmt.Sprintf("%s: status %d", msg, status), err)
}

// stripCodeFence removes a surrounding markdown code block, if any.
func stripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

func (c *Client) chat(ctx context.Context, capability string, req goopenai.ChatCompletionRequest) (string, error) {
	req.Model = c.cfg.ChatModel
	var text string
	err := c.call(ctx, capability, req.Model, func() error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return apperrors.NewMalformedResponseError("openai "+capability+" returned no choices", nil)
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
