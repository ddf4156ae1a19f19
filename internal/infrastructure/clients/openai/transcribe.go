package openai

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// whisperLanguages maps verbose_json language names onto BCP 47 primary tags.
var whisperLanguages = map[string]string{
	"english":    "en",
	"arabic":     "ar",
	"french":     "fr",
	"spanish":    "es",
	"german":     "de",
	"hindi":      "hi",
	"urdu":       "ur",
	"portuguese": "pt",
	"turkish":    "tr",
	"yoruba":     "yo",
	"hausa":      "ha",
	"swahili":    "sw",
}

// Transcribe sends the audio to the transcription model and returns text, language and confidence.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (*entities.Transcription, error) {
	if len(audio) == 0 {
		return nil, apperrors.NewUnrecoverableInputError("audio is empty", nil)
	}
	if filename == "" {
		filename = "note.webm"
	}

	var resp goopenai.AudioResponse
	err := c.call(ctx, capTranscribe, c.cfg.TranscriptionModel, func() error {
		var err error
		resp, err = c.api.CreateTranscription(ctx, goopenai.AudioRequest{
			Model:    c.cfg.TranscriptionModel,
			Reader:   bytes.NewReader(audio),
			FilePath: filepath.Base(filename),
			Format:   goopenai.AudioResponseFormatVerboseJSON,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, apperrors.NewUnrecoverableInputError("no speech detected in recording", nil)
	}

	return &entities.Transcription{
		Text:       text,
		Language:   normalizeLanguage(resp.Language),
		Confidence: segmentConfidence(resp),
	}, nil
}

// normalizeLanguage accepts either a tag ("ar-EG") or a language name ("arabic").
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if tag, ok := whisperLanguages[lang]; ok {
		return tag
	}
	return lang
}

// segmentConfidence is exp(mean avg_logprob), or 0 when no segments were returned.
func segmentConfidence(resp goopenai.AudioResponse) float64 {
	if len(resp.Segments) == 0 {
		return 0
	}
	var sum float64
	for _, seg := range resp.Segments {
		sum += seg.AvgLogprob
	}
	conf := math.Exp(sum / float64(len(resp.Segments)))
	return math.Min(1, math.Max(0, conf))
}
