package openai

import (
	"context"
	"encoding/json"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// Extract asks the chat model for a structured report in JSON mode.
func (c *Client) Extract(ctx context.Context, req entities.ExtractionRequest) (*entities.Extraction, error) {
	system := extractionSystemPrompt
	if req.Strict {
		system = strictExtractionSystemPrompt
	}

	raw, err := c.chat(ctx, capExtract, goopenai.ChatCompletionRequest{
		Temperature: 0.1,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: buildExtractionUserPrompt(req.Text, req.Language)},
		},
	})
	if err != nil {
		return nil, err
	}

	return parseExtraction(raw)
}

func parseExtraction(raw string) (*entities.Extraction, error) {
	var out entities.Extraction
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &out); err != nil {
		return nil, apperrors.NewMalformedResponseError("extraction is not valid JSON", err)
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		return nil, apperrors.NewMalformedResponseError("extraction is missing a summary", nil)
	}
	return &out, nil
}
