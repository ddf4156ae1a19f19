package providers

import (
	"context"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
)

// TranscriptionProvider turns raw audio into text.
type TranscriptionProvider interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (*entities.Transcription, error)
}

// TranslationProvider translates a transcript into the target language.
type TranslationProvider interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// ExtractionProvider produces a structured report from transcript text.
type ExtractionProvider interface {
	Extract(ctx context.Context, req entities.ExtractionRequest) (*entities.Extraction, error)
}

// EmbeddingProvider produces fixed-length vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string, mode entities.EmbeddingMode) ([]float32, error)
	Model() string
	Dimensions() int
}

// AnswerProvider runs a grounded chat completion.
type AnswerProvider interface {
	Answer(ctx context.Context, systemInstruction, contextText, question string) (string, error)
}
