package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// Embed returns the embedding of text; query and document modes get their configured prefixes.
func (c *Client) Embed(ctx context.Context, text string, mode entities.EmbeddingMode) ([]float32, error) {
	input := text
	switch mode {
	case entities.EmbeddingModeQuery:
		input = c.cfg.EmbeddingQueryPrefix + text
	case entities.EmbeddingModeDocument:
		input = c.cfg.EmbeddingDocumentPrefix + text
	}

	var vector []float32
	err := c.call(ctx, capEmbed, c.cfg.EmbeddingModel, func() error {
		resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Input:      []string{input},
			Model:      goopenai.EmbeddingModel(c.cfg.EmbeddingModel),
			Dimensions: c.cfg.EmbeddingDimensions,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return apperrors.NewMalformedResponseError("embedding response had no data", nil)
		}
		vector = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(vector) != c.cfg.EmbeddingDimensions {
		return nil, apperrors.NewMalformedResponseError(
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(vector), c.cfg.EmbeddingDimensions), nil)
	}
	return vector, nil
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.cfg.EmbeddingModel
}

// Dimensions returns the fixed embedding length.
func (c *Client) Dimensions() int {
	return c.cfg.EmbeddingDimensions
}
