package providers

import (
	"context"
	"encoding/json"
	"fmt"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text using the configured
// embedding model.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	model := p.embedModel
	if model == "" {
		model = "text-embedding-3-small"
	}

	return RetryDo(ctx, p.retryConfig, func() ([]float32, error) {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		respBody, err := p.doRequest(ctx, "/embeddings", embeddingRequest{
			Model: model,
			Input: []string{text},
		})
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var result embeddingResponse
		if err := json.NewDecoder(respBody).Decode(&result); err != nil {
			return nil, fmt.Errorf("%s: decode embedding response: %w", p.name, err)
		}
		if len(result.Data) == 0 {
			return nil, fmt.Errorf("%s: empty embedding response", p.name)
		}
		return result.Data[0].Embedding, nil
	})
}

// WithEmbeddingModel sets the model used by Embed.
func (p *OpenAIProvider) WithEmbeddingModel(model string) *OpenAIProvider {
	p.embedModel = model
	return p
}
