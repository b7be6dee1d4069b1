// Package cacheloader fetches a prior deployment's manifests from the
// object store so MediaScanner and EmbeddingEngine can reuse unchanged
// work. Any single manifest's fetch failure is recorded as an issue and
// treated as a cold cache for that category rather than failing the job.
package cacheloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

// Loader reads cache manifests from an ObjectStore.
type Loader struct {
	store  interfaces.ObjectStore
	logger arbor.ILogger
}

var _ interfaces.CacheLoader = (*Loader)(nil)

func New(store interfaces.ObjectStore, logger arbor.ILogger) *Loader {
	return &Loader{store: store, logger: logger}
}

// Load fetches each configured manifest key independently, so a missing or
// corrupt media manifest does not prevent embeddings from loading.
func (l *Loader) Load(ctx context.Context, urls models.CacheManifestURLs) (*models.CacheContext, []models.Issue) {
	cache := models.NewEmptyCacheContext()
	var issues []models.Issue

	if urls.MediaManifestKey != "" {
		if err := fetchJSON(ctx, l.store, urls.MediaManifestKey, &cache.Media); err != nil {
			issues = append(issues, issue("cache-load", urls.MediaManifestKey, err))
			l.logger.Warn().Err(err).Str("key", urls.MediaManifestKey).Msg("media manifest cache miss")
		}
	}

	if urls.TextEmbeddingKey != "" {
		if err := fetchJSON(ctx, l.store, urls.TextEmbeddingKey, &cache.TextEmbeddings); err != nil {
			issues = append(issues, issue("cache-load", urls.TextEmbeddingKey, err))
			l.logger.Warn().Err(err).Str("key", urls.TextEmbeddingKey).Msg("text embedding cache miss")
		}
	}

	if urls.ImageEmbeddingKey != "" {
		if err := fetchJSON(ctx, l.store, urls.ImageEmbeddingKey, &cache.ImageEmbeddings); err != nil {
			issues = append(issues, issue("cache-load", urls.ImageEmbeddingKey, err))
			l.logger.Warn().Err(err).Str("key", urls.ImageEmbeddingKey).Msg("image embedding cache miss")
		}
	}

	return cache, issues
}

func fetchJSON(ctx context.Context, store interfaces.ObjectStore, key string, dest interface{}) error {
	data, err := store.Get(ctx, key)
	if err != nil {
		var oerr *interfaces.ObjectStoreError
		if errors.As(err, &oerr) && oerr.Kind == interfaces.ErrKindNotFound {
			return nil // first deployment, no prior manifest - not an issue
		}
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func issue(stage, item string, err error) models.Issue {
	return models.Issue{
		Stage:     stage,
		Item:      item,
		Severity:  models.IssueSeverityWarning,
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
}
