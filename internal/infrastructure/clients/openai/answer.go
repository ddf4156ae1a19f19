package openai

import (
	"context"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// Answer runs a low-temperature chat completion grounded on contextText.
func (c *Client) Answer(ctx context.Context, systemInstruction, contextText, question string) (string, error) {
	out, err := c.chat(ctx, capAnswer, goopenai.ChatCompletionRequest{
		Temperature: 0.2,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: goopenai.ChatMessageRoleUser, Content: buildAnswerUserPrompt(contextText, question)},
		},
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", apperrors.NewMalformedResponseError("answer was empty", nil)
	}
	return out, nil
}
