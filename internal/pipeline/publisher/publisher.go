// Package publisher uploads a build directory's artifacts to the
// object store across three destination schemes (primary, shared media,
// shared posts), skipping work already present remotely and bounding
// upload concurrency with golang.org/x/sync/errgroup.
package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

var hashFilenamePattern = regexp.MustCompile(`^([0-9a-f]{64})(-[a-z0-9]+)?\.[a-zA-Z0-9]+$`)

// Publisher uploads a build directory to an ObjectStore.
type Publisher struct {
	store  interfaces.ObjectStore
	logger arbor.ILogger
}

var _ interfaces.Publisher = (*Publisher)(nil)

func New(store interfaces.ObjectStore, logger arbor.ILogger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

type plannedUpload struct {
	localPath   string
	primaryKey  string
	sharedKey   string // "" if this file has no shared destination
	contentHash string
}

func (p *Publisher) Publish(ctx context.Context, opts interfaces.PublishOptions) (interfaces.PublishResult, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = 50 * 1024 * 1024
	}

	plans, err := p.plan(opts)
	if err != nil {
		return interfaces.PublishResult{}, fmt.Errorf("plan uploads: %w", err)
	}

	remotePrefix := fmt.Sprintf("projects/%s/", opts.ProjectID)
	remoteListing, err := p.store.List(ctx, remotePrefix, 0)
	if err != nil {
		p.logger.Warn().Err(err).Str("prefix", remotePrefix).Msg("failed to pre-fetch remote listing, skip optimizations disabled")
	}
	existingKeys := make(map[string]bool, len(remoteListing))
	existingHashes := make(map[string]bool, len(remoteListing))
	for _, obj := range remoteListing {
		existingKeys[obj.Key] = true
		if m := hashFilenamePattern.FindStringSubmatch(filepath.Base(obj.Key)); m != nil {
			existingHashes[m[1]] = true
		}
	}

	var mu sync.Mutex
	var outcomes []models.UploadOutcome
	var uploaded, skipped, failed int

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for _, plan := range plans {
		plan := plan
		group.Go(func() error {
			outcome := p.uploadOne(gctx, plan, opts, existingKeys, existingHashes, maxFileSize)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			switch outcome.Status {
			case "uploaded":
				uploaded++
			case "skipped":
				skipped++
			case "failed":
				failed++
			}
			mu.Unlock()
			return nil // per-file failures are captured in outcome, not propagated
		})
	}

	if err := group.Wait(); err != nil {
		return interfaces.PublishResult{}, err
	}

	return interfaces.PublishResult{Outcomes: outcomes, Uploaded: uploaded, Skipped: skipped, Failed: failed}, nil
}

func (p *Publisher) plan(opts interfaces.PublishOptions) ([]plannedUpload, error) {
	var plans []plannedUpload

	err := filepath.Walk(opts.BuildDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(opts.BuildDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		plan := plannedUpload{
			localPath:  path,
			primaryKey: fmt.Sprintf("projects/%s/%s/%s", opts.ProjectID, opts.JobID, relPath),
		}

		filename := filepath.Base(path)
		switch {
		case opts.MediaSubdir != "" && strings.HasPrefix(relPath, opts.MediaSubdir+"/"):
			plan.sharedKey = fmt.Sprintf("projects/%s/_shared/medias/%s", opts.ProjectID, filename)
		case hashFilenamePattern.MatchString(filename) && strings.HasSuffix(filename, ".json"):
			plan.sharedKey = fmt.Sprintf("projects/%s/_shared/posts/%s", opts.ProjectID, filename)
		}

		if m := hashFilenamePattern.FindStringSubmatch(filename); m != nil {
			plan.contentHash = m[1]
		}

		plans = append(plans, plan)
		return nil
	})

	return plans, err
}

func (p *Publisher) uploadOne(ctx context.Context, plan plannedUpload, opts interfaces.PublishOptions, existingKeys, existingHashes map[string]bool, maxFileSize int64) models.UploadOutcome {
	destKey := plan.primaryKey
	if plan.sharedKey != "" {
		destKey = plan.sharedKey
	}

	if opts.SkipExistingFiles && existingKeys[destKey] {
		return models.UploadOutcome{Key: destKey, Status: "skipped", Reason: "already exists at destination"}
	}
	if opts.SkipIdenticalContent && plan.contentHash != "" && existingHashes[plan.contentHash] {
		return models.UploadOutcome{Key: destKey, Status: "skipped", Reason: "identical content hash already published"}
	}

	info, err := os.Stat(plan.localPath)
	if err != nil {
		return models.UploadOutcome{Key: destKey, Status: "failed", Reason: err.Error()}
	}

	if info.Size() > maxFileSize {
		p.logger.Warn().Str("path", plan.localPath).Int64("size", info.Size()).Int64("limit", maxFileSize).Msg("file exceeds configured max size, uploading anyway")
	}

	data, err := os.ReadFile(plan.localPath)
	if err != nil {
		return models.UploadOutcome{Key: destKey, Status: "failed", Reason: err.Error()}
	}

	contentType := mime.TypeByExtension(filepath.Ext(plan.localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	metadata := map[string]string{"job-id": opts.JobID, "content-sha256": contentSHA(data)}
	if err := p.store.Put(ctx, destKey, data, contentType, metadata); err != nil {
		return models.UploadOutcome{Key: destKey, Status: "failed", Reason: err.Error(), ByteSize: info.Size()}
	}

	// The primary (job-scoped) copy is always written in addition to any
	// shared destination, so later deploys can address this exact run.
	if plan.sharedKey != "" && plan.sharedKey != plan.primaryKey {
		if !(opts.SkipExistingFiles && existingKeys[plan.primaryKey]) {
			_ = p.store.Put(ctx, plan.primaryKey, data, contentType, metadata)
		}
	}

	return models.UploadOutcome{Key: destKey, Status: "uploaded", ByteSize: info.Size()}
}

func contentSHA(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
