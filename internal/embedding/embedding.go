// Package embedding turns query text into fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cognidex/cognidex/internal/domain"
)

// DefaultModel is the OpenAI model used for generating embeddings.
const DefaultModel = openai.SmallEmbedding3

var (
	// ErrEmptyText is returned when text is empty.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when the provider answers with a
	// vector of the wrong size.
	ErrWrongDimensions = fmt.Errorf("embedding has wrong dimensions, expected %d", domain.EmbeddingDim)
	// ErrNoAPIKey is returned when the OpenAI API key is not set.
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// API is the provider-facing surface the client depends on.
type API interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// Client validates input and output around an embedding provider.
type Client struct {
	api API
}

type openAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func newOpenAIAdapter(apiKey string, model openai.EmbeddingModel) *openAIAdapter {
	if model == "" {
		model = DefaultModel
	}
	return &openAIAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CreateEmbeddings calls the OpenAI API. The request pins the output
// dimension so every model revision produces comparable vectors.
func (a *openAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      a.model,
		Dimensions: domain.EmbeddingDim,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// Config configures the OpenAI embedding client.
type Config struct {
	APIKey string
	Model  openai.EmbeddingModel
}

// NewClient creates an embedding client using the default model.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates an embedding client with explicit
// configuration.
func NewClientWithConfig(cfg Config) *Client {
	return &Client{api: newOpenAIAdapter(cfg.APIKey, cfg.Model)}
}

// NewClientWithAPI creates a client over a caller-supplied provider.
func NewClientWithAPI(api API) *Client {
	return &Client{api: api}
}

// NewClientFromEnv creates a client using the OPENAI_API_KEY environment
// variable.
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// GenerateEmbedding generates a vector for the given text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(embedding) != domain.EmbeddingDim {
		return nil, ErrWrongDimensions
	}

	return embedding, nil
}
