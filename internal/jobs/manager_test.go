package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/models"
)

// memStorage is a minimal in-memory interfaces.JobStorage for lifecycle tests.
type memStorage struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemStorage() *memStorage {
	return &memStorage{jobs: make(map[string]*models.Job)}
}

func (s *memStorage) Save(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStorage) Get(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, assert.AnError
	}
	cp := *job
	return &cp, nil
}

func (s *memStorage) List(_ context.Context, limit, offset int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := *job
		out = append(out, &cp)
	}
	return out, nil
}

func TestRedact(t *testing.T) {
	data := map[string]interface{}{
		"githubToken":  "secret-value",
		"apiKey":       "another-secret",
		"password":     "hunter2",
		"authHeader":   "Bearer xyz",
		"repoUrl":      "https://example.com/repo.git",
		"branch":       "main",
		"nested_count": 3,
	}

	redacted := redact(data)

	assert.Equal(t, "***redacted***", redacted["githubToken"])
	assert.Equal(t, "***redacted***", redacted["apiKey"])
	assert.Equal(t, "***redacted***", redacted["password"])
	assert.Equal(t, "***redacted***", redacted["authHeader"])
	assert.Equal(t, "https://example.com/repo.git", redacted["repoUrl"])
	assert.Equal(t, "main", redacted["branch"])
	assert.Equal(t, 3, redacted["nested_count"])

	// original map is untouched
	assert.Equal(t, "secret-value", data["githubToken"])
}

func TestManager_Submit_GeneratesJobIDWhenMissing(t *testing.T) {
	storage := newMemStorage()
	router := NewRouter(&Processor{Logger: arbor.NewLogger()})
	manager := NewManager(router, storage, t.TempDir(), false, time.Second, 50*time.Millisecond, arbor.NewLogger())

	resp, status := manager.Submit(models.SubmitRequest{Task: models.TaskName("unknown-task")})

	assert.Equal(t, 200, status)
	assert.Equal(t, "accepted", resp.Status)
	assert.NotEmpty(t, resp.JobID)
}

func TestManager_Submit_RejectsMissingTask(t *testing.T) {
	storage := newMemStorage()
	router := NewRouter(&Processor{Logger: arbor.NewLogger()})
	manager := NewManager(router, storage, t.TempDir(), false, time.Second, 50*time.Millisecond, arbor.NewLogger())

	resp, status := manager.Submit(models.SubmitRequest{JobID: "job-1"})

	assert.Equal(t, 400, status)
	assert.Equal(t, "error", resp.Status)
}

func TestManager_Run_UnknownTaskFailsJob(t *testing.T) {
	storage := newMemStorage()
	router := NewRouter(&Processor{Logger: arbor.NewLogger()})
	manager := NewManager(router, storage, t.TempDir(), false, time.Second, 50*time.Millisecond, arbor.NewLogger())

	resp, status := manager.Submit(models.SubmitRequest{JobID: "job-unknown", Task: models.TaskName("does-not-exist")})
	require.Equal(t, 200, status)
	require.Equal(t, "accepted", resp.Status)

	deadline := time.Now().Add(2 * time.Second)
	var job *models.Job
	for time.Now().Before(deadline) {
		j, err := manager.Get(context.Background(), "job-unknown")
		if err == nil && j.Status == models.JobStatusFailed {
			job = j
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.NotNil(t, job, "job should reach failed status")
	assert.Contains(t, job.Error, "unknown task")
}

func TestManager_Cancel_UnknownJobReturnsFalse(t *testing.T) {
	storage := newMemStorage()
	router := NewRouter(&Processor{Logger: arbor.NewLogger()})
	manager := NewManager(router, storage, t.TempDir(), false, time.Second, time.Second, arbor.NewLogger())

	assert.False(t, manager.Cancel("nonexistent"))
}
