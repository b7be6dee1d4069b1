// Package similarity computes pairwise cosine similarity across a set of
// text embeddings and derives, for each post, its top-K nearest neighbors.
// Pair keys and neighbor tie-breaks are both lexicographic by hash so the
// output is deterministic across runs given the same embeddings.
package similarity

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/models"
	"github.com/vaultpress/buildworker/internal/workerpool"
)

// Builder computes pairwise similarity and neighbor maps.
type Builder struct {
	topK        int
	concurrency int
	logger      arbor.ILogger
}

func New(topK, concurrency int, logger arbor.ILogger) *Builder {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Builder{topK: topK, concurrency: concurrency, logger: logger}
}

// Build computes the symmetric pairwise similarity for every pair of hashes
// in embeddings and the top-K neighbor list for each hash.
func (b *Builder) Build(ctx context.Context, embeddings models.TextEmbeddingMap) ([]models.SimilarityPair, models.NeighborMap) {
	hashes := make([]string, 0, len(embeddings))
	for h := range embeddings {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	var mu sync.Mutex
	var pairs []models.SimilarityPair
	scores := make(map[string]map[string]float64, len(hashes)) // hashA -> hashB -> score, both directions

	pool := workerpool.NewPool(b.concurrency, b.logger)
	pool.Start()

	for i := range hashes {
		i := i
		_ = pool.Submit(func(ctx context.Context) error {
			hashA := hashes[i]
			rowScores := make(map[string]float64, len(hashes)-i-1)

			for j := i + 1; j < len(hashes); j++ {
				hashB := hashes[j]
				score := cosineSimilarity(embeddings[hashA], embeddings[hashB])
				rowScores[hashB] = score
			}

			mu.Lock()
			for hashB, score := range rowScores {
				pairs = append(pairs, models.SimilarityPair{HashA: hashA, HashB: hashB, Score: score})
			}
			if scores[hashA] == nil {
				scores[hashA] = make(map[string]float64)
			}
			for hashB, score := range rowScores {
				scores[hashA][hashB] = score
				if scores[hashB] == nil {
					scores[hashB] = make(map[string]float64)
				}
				scores[hashB][hashA] = score
			}
			mu.Unlock()
			return nil
		})
	}

	pool.Wait()

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].HashA != pairs[j].HashA {
			return pairs[i].HashA < pairs[j].HashA
		}
		return pairs[i].HashB < pairs[j].HashB
	})

	neighbors := make(models.NeighborMap, len(hashes))
	for _, hash := range hashes {
		neighbors[hash] = topNeighbors(hash, scores[hash], b.topK)
	}

	return pairs, neighbors
}

func topNeighbors(self string, scores map[string]float64, topK int) []models.Neighbor {
	candidates := make([]models.Neighbor, 0, len(scores))
	for hash, score := range scores {
		candidates = append(candidates, models.Neighbor{Hash: hash, Score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Hash < candidates[j].Hash // lexicographic tie-break
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

func cosineSimilarity(a, b models.Embedding) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
