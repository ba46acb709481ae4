package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

const (
	// DefaultBaseURL is Ollama's OpenAI-compatible endpoint
	DefaultBaseURL = "http://localhost:11434/v1"
	// DefaultEmbeddingModel is the model used for generating embeddings
	DefaultEmbeddingModel = "nomic-embed-text"
	// DefaultEmbeddingDimensions is the expected dimension of nomic-embed-text embeddings
	DefaultEmbeddingDimensions = 768
)

var (
	// ErrEmptyText is returned when an input text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrNoData is returned when the endpoint answers without embeddings
	ErrNoData = errors.New("no embedding data returned")
)

// EmbeddingAPI defines the interface for batch embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Client validates batch embedding responses from an OpenAI-compatible endpoint
type Client struct {
	api        EmbeddingAPI
	dimensions int
}

// OpenAIAdapter calls the embeddings endpoint through go-openai
type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
	}
}

// CreateEmbeddings embeds texts in a single request and returns vectors in input order
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoData
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

type Config struct {
	BaseURL             string
	APIKey              string
	EmbeddingModel      string
	EmbeddingDimensions int
	HTTPClient          *http.Client
}

// NewClientWithConfig creates a new client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		api:        NewOpenAIAdapter(baseURL, cfg.APIKey, cfg.EmbeddingModel, cfg.HTTPClient),
		dimensions: dimensions,
	}
}

// EmbedTexts generates one embedding per text, preserving order
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("text %d: %w", i, ErrEmptyText)
		}
	}

	embeddings, err := c.api.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbeddingFailed, fmt.Errorf("failed to create embeddings: %w", err))
	}

	if len(embeddings) != len(texts) {
		return nil, domain.Wrap(domain.ErrEmbeddingCount, fmt.Errorf("sent %d texts, received %d embeddings", len(texts), len(embeddings)))
	}

	for i, e := range embeddings {
		if len(e) != c.dimensions {
			return nil, domain.Wrap(domain.ErrEmbeddingDimension, fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(e), c.dimensions))
		}
	}

	return embeddings, nil
}
