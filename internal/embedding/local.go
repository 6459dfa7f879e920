package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalClient is an offline embedder. It hashes character trigrams of each
// lower-cased word into a fixed number of signed buckets and L2-normalises
// the result. Small edits (case, spacing, punctuation) keep vectors close,
// which is enough to spot re-sent or forwarded messages without a model
// server.
type LocalClient struct {
	dimensions int
}

// NewLocalClient creates a hashing embedder with the given dimensionality.
func NewLocalClient(dimensions int) *LocalClient {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &LocalClient{dimensions: dimensions}
}

// Embed generates an embedding for a single text. Empty or symbol-only text
// maps to the zero vector.
func (c *LocalClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float32, c.dimensions)
	for _, word := range tokenize(text) {
		padded := []rune(" " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			h := fnv.New32a()
			h.Write([]byte(string(padded[i : i+3])))
			sum := h.Sum32()

			sign := float32(1)
			if sum>>31 == 1 {
				sign = -1
			}
			vector[sum%uint32(c.dimensions)] += sign
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vector, nil
	}
	norm = math.Sqrt(norm)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}

	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts
func (c *LocalClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = vector
	}
	return embeddings, nil
}

// Dimensions returns the dimension of the embeddings
func (c *LocalClient) Dimensions() int {
	return c.dimensions
}

// tokenize lower-cases text and splits it on anything that is not a letter
// or a digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
