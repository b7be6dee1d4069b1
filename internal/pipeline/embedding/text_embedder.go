// Package embedding implements the TextEmbedder and ImageEmbedder contracts
// used by the EmbeddingEngine stage. The primary backend calls Google's
// GenAI embedding API; a deterministic local embedder is used whenever the
// primary backend is not configured, so the pipeline degrades gracefully
// instead of failing the job.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

// GenAITextEmbedder calls the GenAI embedding endpoint for post text.
type GenAITextEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	logger    arbor.ILogger
}

var _ interfaces.TextEmbedder = (*GenAITextEmbedder)(nil)

// NewGenAITextEmbedder constructs a text embedder. If apiKey is empty, Ready
// reports false and callers should fall back to NewLocalTextEmbedder.
func NewGenAITextEmbedder(ctx context.Context, apiKey, model string, dimension int, logger arbor.ILogger) (*GenAITextEmbedder, error) {
	if apiKey == "" {
		return &GenAITextEmbedder{model: model, dimension: dimension, logger: logger}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAITextEmbedder{client: client, model: model, dimension: dimension, logger: logger}, nil
}

func (e *GenAITextEmbedder) Ready() bool { return e.client != nil }

func (e *GenAITextEmbedder) Dimension() int { return e.dimension }

func (e *GenAITextEmbedder) Embed(ctx context.Context, text string) (models.Embedding, error) {
	if !e.Ready() {
		return nil, fmt.Errorf("text embedder not configured")
	}
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("genai embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("genai returned empty embedding")
	}

	return normalize(resp.Embeddings[0].Values), nil
}

// LocalTextEmbedder is a deterministic, dependency-free fallback used when no
// GenAI API key is configured. It hashes n-grams of the input into a fixed
// dimension vector so the similarity stage still produces stable, if coarse,
// results instead of being skipped outright.
type LocalTextEmbedder struct {
	dimension int
}

var _ interfaces.TextEmbedder = (*LocalTextEmbedder)(nil)

func NewLocalTextEmbedder(dimension int) *LocalTextEmbedder {
	return &LocalTextEmbedder{dimension: dimension}
}

func (e *LocalTextEmbedder) Ready() bool   { return true }
func (e *LocalTextEmbedder) Dimension() int { return e.dimension }

func (e *LocalTextEmbedder) Embed(ctx context.Context, text string) (models.Embedding, error) {
	return hashEmbed(text, e.dimension), nil
}

// hashEmbed builds a bag-of-trigrams hashed vector; it shares the normalize
// step with the local image embedder.
func hashEmbed(text string, dimension int) models.Embedding {
	vec := make([]float32, dimension)
	if len(text) == 0 {
		return vec
	}

	const gramSize = 3
	runes := []rune(text)
	if len(runes) < gramSize {
		runes = append(runes, make([]rune, gramSize-len(runes))...)
	}

	for i := 0; i+gramSize <= len(runes); i++ {
		gram := string(runes[i : i+gramSize])
		sum := sha256.Sum256([]byte(gram))
		idx := int(sum[0])<<8 | int(sum[1])
		idx = idx % dimension
		sign := float32(1)
		if sum[2]%2 == 0 {
			sign = -1
		}
		vec[idx] += sign
	}

	return normalize(vec)
}

func normalize(vec []float32) models.Embedding {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return models.Embedding(vec)
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return models.Embedding(out)
}
