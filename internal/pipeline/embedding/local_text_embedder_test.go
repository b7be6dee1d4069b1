package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTextEmbedder_Deterministic(t *testing.T) {
	e := NewLocalTextEmbedder(64)

	a, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestLocalTextEmbedder_DifferentTextDifferentVector(t *testing.T) {
	e := NewLocalTextEmbedder(64)

	a, err := e.Embed(context.Background(), "alpha")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "omega")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestLocalTextEmbedder_NormalizedToUnitLength(t *testing.T) {
	e := NewLocalTextEmbedder(32)
	vec, err := e.Embed(context.Background(), "some reasonably long sample sentence for hashing")
	require.NoError(t, err)

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-6)
}

func TestLocalTextEmbedder_EmptyTextReturnsZeroVector(t *testing.T) {
	e := NewLocalTextEmbedder(16)
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, vec, 16)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestLocalTextEmbedder_ReadyAlwaysTrue(t *testing.T) {
	e := NewLocalTextEmbedder(8)
	assert.True(t, e.Ready())
	assert.Equal(t, 8, e.Dimension())
}
