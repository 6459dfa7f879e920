// Package embedding turns message text into fixed-length vectors.
//
// Every vector produced by one Service shares the same dimensionality for the
// lifetime of a deployment. Switching provider, model or dimensions makes the
// vectors already persisted in the similarity index meaningless; nothing here
// detects that, so the store must be cleared by hand after such a change.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/DreamCats/mailtriage/internal/config"
)

// Service provides embedding generation functionality
type Service struct {
	model     string
	batchSize int
	client    Client
}

// Client is the interface for embedding API clients
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// NewService creates a new embedding service
func NewService(cfg *config.EmbeddingConfig) (*Service, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	var client Client
	var err error

	switch cfg.Provider {
	case "local":
		client = NewLocalClient(cfg.Dimensions)
	case "ollama":
		client = NewOllamaClient(cfg.Endpoint, cfg.Model, cfg.Dimensions, timeout)
	case "openai":
		client, err = NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.Dimensions, timeout)
	case "volcengine":
		client, err = NewVolcEngineClient(cfg, timeout)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	return NewServiceWithClient(client, cfg.Model, cfg.BatchSize), nil
}

// NewServiceWithClient wraps an already constructed client.
func NewServiceWithClient(client Client, model string, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	return &Service{
		model:     model,
		batchSize: batchSize,
		client:    client,
	}
}

// Embed generates an embedding for a single text. Empty text is passed to
// the provider as is. Any failure is returned as an *EmbeddingError.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.client.Embed(ctx, text)
	if err != nil {
		return nil, &EmbeddingError{Op: "embed", Model: s.model, Err: err}
	}
	if err := checkVector(vector); err != nil {
		return nil, &EmbeddingError{Op: "embed", Model: s.model, Err: err}
	}
	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts, preserving order.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += s.batchSize {
		end := i + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := s.client.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, &EmbeddingError{Op: fmt.Sprintf("embed batch %d-%d", i, end), Model: s.model, Err: err}
		}
		if len(embeddings) != end-i {
			return nil, &EmbeddingError{
				Op:    fmt.Sprintf("embed batch %d-%d", i, end),
				Model: s.model,
				Err:   fmt.Errorf("expected %d embeddings, got %d", end-i, len(embeddings)),
			}
		}
		for _, emb := range embeddings {
			if err := checkVector(emb); err != nil {
				return nil, &EmbeddingError{Op: "embed batch", Model: s.model, Err: err}
			}
		}
		results = append(results, embeddings...)
	}

	return results, nil
}

// Dimensions returns the dimension of the embeddings
func (s *Service) Dimensions() int {
	return s.client.Dimensions()
}

// Model returns the configured model name, recorded next to stored vectors.
func (s *Service) Model() string {
	return s.model
}

// Close releases resources held by the client, if any.
func (s *Service) Close() error {
	if c, ok := s.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func checkVector(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("provider returned an empty vector")
	}
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("provider returned non-finite value at index %d", i)
		}
	}
	return nil
}

// Similarity computes cosine similarity between two vectors
func Similarity(a, b []float32) float32 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}

	var dotProduct float32
	var normA float32
	var normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// L2Distance computes L2 (Euclidean) distance between two vectors
func L2Distance(a, b []float32) float32 {
	return float32(math.Sqrt(float64(SquaredL2Distance(a, b))))
}

// SquaredL2Distance computes the squared Euclidean distance between two vectors.
func SquaredL2Distance(a, b []float32) float32 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}

	var sum float32
	for i := 0; i < len(a); i++ {
		diff := a[i] - b[i]
		sum += diff * diff
	}

	return sum
}
