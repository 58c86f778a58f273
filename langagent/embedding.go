package langagent

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pkg/errors"
)

type embeddingClient struct {
	client     *openai.Client
	model      string
	dimensions int
}

func newEmbeddingClient(client *openai.Client, model string, dimensions int) *embeddingClient {
	return &embeddingClient{client: client, model: model, dimensions: dimensions}
}

// embed generates the single embedding vector for text (§3: "embedding"
// is derived solely from matching_summary).
func (e *embeddingClient) embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
