package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/models"
)

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     models.Embedding
		expected float64
	}{
		{"identical vectors", models.Embedding{1, 0, 0}, models.Embedding{1, 0, 0}, 1},
		{"orthogonal vectors", models.Embedding{1, 0}, models.Embedding{0, 1}, 0},
		{"opposite vectors", models.Embedding{1, 0}, models.Embedding{-1, 0}, -1},
		{"mismatched length", models.Embedding{1, 0}, models.Embedding{1, 0, 0}, 0},
		{"empty vector", models.Embedding{}, models.Embedding{1, 0}, 0},
		{"zero vector", models.Embedding{0, 0}, models.Embedding{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTopNeighbors_TieBreakIsLexicographic(t *testing.T) {
	scores := map[string]float64{
		"zzz": 0.5,
		"aaa": 0.5,
		"bbb": 0.9,
	}

	neighbors := topNeighbors("self", scores, 3)
	require.Len(t, neighbors, 3)
	assert.Equal(t, "bbb", neighbors[0].Hash)
	assert.Equal(t, "aaa", neighbors[1].Hash) // tied with zzz, aaa sorts first
	assert.Equal(t, "zzz", neighbors[2].Hash)
}

func TestTopNeighbors_TruncatesToTopK(t *testing.T) {
	scores := map[string]float64{"a": 0.1, "b": 0.2, "c": 0.3, "d": 0.4}
	neighbors := topNeighbors("self", scores, 2)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "d", neighbors[0].Hash)
	assert.Equal(t, "c", neighbors[1].Hash)
}

func TestBuild_DeterministicAcrossRuns(t *testing.T) {
	embeddings := models.TextEmbeddingMap{
		"h1": {1, 0, 0},
		"h2": {0, 1, 0},
		"h3": {1, 1, 0},
	}

	b := New(2, 2, testLogger())
	pairsA, neighborsA := b.Build(context.Background(), embeddings)
	pairsB, neighborsB := b.Build(context.Background(), embeddings)

	assert.Equal(t, pairsA, pairsB)
	assert.Equal(t, neighborsA, neighborsB)
}

func TestBuild_OnlyUpperTrianglePairs(t *testing.T) {
	embeddings := models.TextEmbeddingMap{
		"h1": {1, 0},
		"h2": {0, 1},
		"h3": {1, 1},
	}

	b := New(5, 1, testLogger())
	pairs, neighbors := b.Build(context.Background(), embeddings)

	assert.Len(t, pairs, 3) // 3 choose 2
	for _, p := range pairs {
		assert.Less(t, p.HashA, p.HashB, "pairs must only be emitted for i<j")
	}
	assert.Len(t, neighbors, 3)
	for hash, n := range neighbors {
		for _, neighbor := range n {
			assert.NotEqual(t, hash, neighbor.Hash, "a hash is never its own neighbor")
		}
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	b := New(10, 1, testLogger())
	pairs, neighbors := b.Build(context.Background(), models.TextEmbeddingMap{})
	assert.Empty(t, pairs)
	assert.Empty(t, neighbors)
}
