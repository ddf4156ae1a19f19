package openai

import (
	"context"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// Translate returns text rendered in targetLanguage.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	out, err := c.chat(ctx, capTranslate, goopenai.ChatCompletionRequest{
		Temperature: 0,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: translationSystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: buildTranslationUserPrompt(text, targetLanguage)},
		},
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", apperrors.NewMalformedResponseError("translation was empty", nil)
	}
	return out, nil
}
