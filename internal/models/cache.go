package models

// CacheContext holds the three hash-keyed lookup tables loaded from a prior
// deployment. It is read-only for the duration of a job.
type CacheContext struct {
	Media           MediaManifest    // media hash -> derivative manifest
	TextEmbeddings  TextEmbeddingMap // post hash -> text vector
	ImageEmbeddings ImageEmbeddingMap // media hash -> image vector

	// Hit/miss counters, surfaced in the final job result.
	MediaHits   int
	MediaMisses int
}

// NewEmptyCacheContext returns a CacheContext with empty, non-nil maps so
// downstream lookups never need a nil check.
func NewEmptyCacheContext() *CacheContext {
	return &CacheContext{
		Media:           MediaManifest{},
		TextEmbeddings:  TextEmbeddingMap{},
		ImageEmbeddings: ImageEmbeddingMap{},
	}
}

// CacheManifestURLs are the zero-or-more manifest locations to load a prior
// build's caches from.
type CacheManifestURLs struct {
	MediaManifestKey      string
	TextEmbeddingKey  string
	ImageEmbeddingKey string
}
