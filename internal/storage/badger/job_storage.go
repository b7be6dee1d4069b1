// Package badger implements interfaces.JobStorage on top of an embedded
// BadgerDB instance via badgerhold, giving GET /api/jobs/{id} a persistent
// backing store independent of the in-memory job map used for the
// callback path.
package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

// Storage persists Job records in an embedded key-value store.
type Storage struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

var _ interfaces.JobStorage = (*Storage)(nil)

// Open opens (creating if absent) a BadgerDB instance at path.
func Open(path string, resetOnStartup bool, logger arbor.ILogger) (*Storage, error) {
	if resetOnStartup {
		if _, err := os.Stat(path); err == nil {
			logger.Debug().Str("path", path).Msg("deleting existing job store (reset_on_startup=true)")
			if err := os.RemoveAll(path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("failed to delete job store directory")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create job store directory: %w", err)
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil // disable badger's default logger; arbor logs around it instead

	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", path, err)
	}

	return &Storage{store: store, logger: logger}, nil
}

func (s *Storage) Close() error {
	return s.store.Close()
}

func (s *Storage) Save(ctx context.Context, job *models.Job) error {
	if err := s.store.Upsert(job.ID, job); err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.store.Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job %s not found", jobID)
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *Storage) List(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	var jobs []*models.Job
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}
	if err := s.store.Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
