// Package interfaces declares the capability contracts each pipeline stage
// is built against. Keeping them small and independent of any one backend
// lets the Processor compose plugins (image/embedding/database backends)
// without the stage code depending on a concrete implementation.
package interfaces

import (
	"context"
	"time"

	"github.com/vaultpress/buildworker/internal/models"
)

// ObjectStoreErrorKind classifies an ObjectStore failure for retry routing.
type ObjectStoreErrorKind string

const (
	ErrKindNotFound        ObjectStoreErrorKind = "not_found"
	ErrKindTransient       ObjectStoreErrorKind = "transient"
	ErrKindInvalidMetadata ObjectStoreErrorKind = "invalid_metadata"
	ErrKindFatal           ObjectStoreErrorKind = "fatal"
)

// ObjectStoreError wraps an underlying error with its retry classification.
type ObjectStoreError struct {
	Kind ObjectStoreErrorKind
	Key  string
	Err  error
}

func (e *ObjectStoreError) Error() string { return e.Err.Error() }
func (e *ObjectStoreError) Unwrap() error { return e.Err }

// ObjectStore is the content-addressed blob store abstraction. Keys use
// "/"-delimited paths. User metadata values must be ASCII strings with
// bounded length; implementations retry on ErrKindInvalidMetadata by
// reuploading without metadata.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string, userMetadata map[string]string) error
	PutStream(ctx context.Context, key string, body ReadSeekCloser, size int64, contentType string, userMetadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	PublicURL(key string) string
}

// ReadSeekCloser is the minimal stream contract PutStream accepts.
type ReadSeekCloser interface {
	Read(p []byte) (n int, err error)
	Seek(offset int64, whence int) (int64, error)
	Close() error
}

// ObjectInfo is metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// SourceFetcher clones a Git repository into a job-scoped working tree.
type SourceFetcher interface {
	Fetch(ctx context.Context, root string, req models.SourceFetchRequest) (*models.RepoSnapshot, error)
}

// CacheLoader fetches prior-build manifests and exposes them as in-memory
// lookup tables. Any single category's fetch failure is non-fatal.
type CacheLoader interface {
	Load(ctx context.Context, urls models.CacheManifestURLs) (*models.CacheContext, []models.Issue)
}

// MediaScanner discovers and hashes media files under a vault root,
// delegating derivative generation to an ImageProcessor plugin.
type MediaScanner interface {
	Scan(ctx context.Context, vaultRoot string, cache *models.CacheContext, issues *IssueCollector) (MediaScanResult, error)
}

// MediaScanResult is the output of one MediaScanner run.
type MediaScanResult struct {
	Media        map[string]models.Media // hash -> Media
	PublicURLs   map[string]string       // hash -> md-size (or sole) derivative public URL
	FilenameURLs map[string]string       // lowercased source filename -> md-size (or sole) derivative public URL
	Hits, Misses int
}

// ImageProcessor produces derivatives for a single image's raw bytes.
type ImageProcessor interface {
	Process(ctx context.Context, hash string, raw []byte, outDir, publicPrefix string) ([]models.MediaDerivative, error)
	Ready() bool
}

// TextEmbedder produces a normalized text embedding. Callers check Ready()
// before relying on a non-empty result.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) (models.Embedding, error)
	Dimension() int
	Ready() bool
}

// ImageEmbedder produces a normalized image embedding from derivative bytes.
type ImageEmbedder interface {
	Embed(ctx context.Context, imageBytes []byte) (models.Embedding, error)
	Dimension() int
	Ready() bool
}

// DatabasePlugin materializes the build's posts/media/embeddings/similarity
// into a single-file relational database artifact. Optional: Ready()==false
// means skip with no error.
type DatabasePlugin interface {
	Ready() bool
	Write(ctx context.Context, path string, data DatabaseInput) error
}

// DatabaseInput is everything DatabasePlugin.Write needs to populate tables.
type DatabaseInput struct {
	Posts      []models.Post
	Media      []models.Media
	TextVecs   models.TextEmbeddingMap
	ImageVecs  models.ImageEmbeddingMap
	Similarity []models.SimilarityPair
}

// Publisher walks a build directory and uploads artifacts to an ObjectStore,
// deduplicating against existing remote state.
type Publisher interface {
	Publish(ctx context.Context, opts PublishOptions) (PublishResult, error)
}

// PublishOptions configures one Publisher run.
type PublishOptions struct {
	BuildDir            string
	ProjectID            string
	JobID                string
	MediaSubdir          string // relative to BuildDir
	SkipExistingFiles    bool
	SkipIdenticalContent bool
	Concurrency          int
	MaxFileSize          int64
}

// PublishResult aggregates per-file upload outcomes.
type PublishResult struct {
	Outcomes []models.UploadOutcome
	Uploaded, Skipped, Failed int
}

// IssueCollector is a thread-safe append-only log of per-item failures. It
// is the only place per-item errors accumulate across a pipeline run.
type IssueCollector struct {
	mu     chan struct{} // binary semaphore, see Add
	issues []models.Issue
}

// NewIssueCollector constructs an empty, ready-to-use collector.
func NewIssueCollector() *IssueCollector {
	c := &IssueCollector{mu: make(chan struct{}, 1)}
	c.mu <- struct{}{}
	return c
}

// Add appends an issue. Safe for concurrent use.
func (c *IssueCollector) Add(stage, item string, severity models.IssueSeverity, message string) {
	<-c.mu
	c.issues = append(c.issues, models.Issue{
		Stage:     stage,
		Item:      item,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	})
	c.mu <- struct{}{}
}

// All returns a snapshot copy of the collected issues.
func (c *IssueCollector) All() []models.Issue {
	<-c.mu
	out := make([]models.Issue, len(c.issues))
	copy(out, c.issues)
	c.mu <- struct{}{}
	return out
}

// JobStorage persists job records across the life of the process (used for
// GET /api/jobs/{id} status polling alongside the callback).
type JobStorage interface {
	Save(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, jobID string) (*models.Job, error)
	List(ctx context.Context, limit, offset int) ([]*models.Job, error)
}
