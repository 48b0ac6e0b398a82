// Package openai adapts the OpenAI embeddings API to the embedder.Provider
// contract, grounded on the teacher's pkg/embedder/openai/client.go (same
// go-openai CreateEmbeddings call, same float32->float64 conversion),
// generalized to produce one vector per memory sector.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cogmem/engine/pkg/model"
)

// Client is an OpenAI-backed embedder.Provider.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config configures the OpenAI embedder client.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// NewClient creates a new OpenAI-backed embedder.
func NewClient(cfg *Config) (*Client, error) {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = 1536
	}

	embModel := openai.EmbeddingModel(cfg.Model)
	if cfg.Model == "" {
		embModel = openai.AdaEmbeddingV2
	}

	return &Client{
		client:     openai.NewClientWithConfig(conf),
		model:      embModel,
		dimensions: dims,
	}, nil
}

// sectorPrompt prefixes content with the target sector so that the same
// embedding model produces a sector-distinguished vector; real deployments
// may instead route to five distinct fine-tuned models.
func sectorPrompt(sector model.Sector, text string) string {
	return fmt.Sprintf("[%s] %s", sector, text)
}

// Embed converts text into a single sector's vector.
func (c *Client) Embed(ctx context.Context, text string, sector model.Sector) ([]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{sectorPrompt(sector, text)},
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding generation failed: no data returned from OpenAI API")
	}
	return toFloat64(resp.Data[0].Embedding), nil
}

// EmbedAllSectors produces all five per-sector vectors for one piece of
// content using a single batched embeddings call.
func (c *Client) EmbedAllSectors(ctx context.Context, text string) (map[model.Sector][]float64, error) {
	inputs := make([]string, len(model.Sectors))
	for i, s := range model.Sectors {
		inputs[i] = sectorPrompt(s, text)
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(model.Sectors) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results (got %d, expected %d)", len(resp.Data), len(model.Sectors))
	}

	out := make(map[model.Sector][]float64, len(model.Sectors))
	for i, s := range model.Sectors {
		out[s] = toFloat64(resp.Data[i].Embedding)
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op; the go-openai client holds no resources to release.
func (c *Client) Close() error {
	return nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
