package models

// Embedding is a dense, L2-normalized vector in one of two spaces (text or
// image). Dimension is fixed per model: nominal 384 for text, 512 for image.
type Embedding []float32

// EmbeddingSpace distinguishes the two vector spaces tracked by the engine.
type EmbeddingSpace string

const (
	EmbeddingSpaceText  EmbeddingSpace = "text"
	EmbeddingSpaceImage EmbeddingSpace = "image"
)

// TextEmbeddingMap is post hash -> text embedding.
type TextEmbeddingMap map[string]Embedding

// ImageEmbeddingMap is media hash -> image embedding.
type ImageEmbeddingMap map[string]Embedding

// SimilarityPair is one symmetric pairwise score, stored once for the pair
// (hashA, hashB) with hashA < hashB lexicographically.
type SimilarityPair struct {
	HashA string
	HashB string
	Score float64
}

// Key returns the canonical "<hashA>-<hashB>" key for this pair.
func (p SimilarityPair) Key() string {
	return p.HashA + "-" + p.HashB
}

// Neighbor is one entry in a post's ordered neighbor list.
type Neighbor struct {
	Hash  string  `json:"hash"`
	Score float64 `json:"score"`
}

// SimilarityMap maps a canonical pair key ("<hashA>-<hashB>", see
// SimilarityPair.Key) to that pair's similarity score.
type SimilarityMap map[string]float64

// NeighborMap is post hash -> up to K nearest other posts, sorted by score
// descending.
type NeighborMap map[string][]Neighbor
