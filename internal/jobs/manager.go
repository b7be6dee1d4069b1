package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

// sensitiveKeyPattern matches data keys whose values must not be logged verbatim.
var sensitiveKeyPattern = []string{"token", "key", "auth", "password", "secret"}

// Manager owns the job lifecycle: Received -> Accepted -> Running ->
// (Completed|Failed), per-job working directory, and the exactly-once
// callback delivery.
type Manager struct {
	router      *Router
	storage     interfaces.JobStorage
	logger      arbor.ILogger
	httpClient  *http.Client
	tempRoot    string
	keepTmp     bool
	hardTimeout time.Duration
	softTimeout time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewManager(router *Router, storage interfaces.JobStorage, tempRoot string, keepTmp bool, hardTimeout, softTimeout time.Duration, logger arbor.ILogger) *Manager {
	return &Manager{
		router:      router,
		storage:     storage,
		logger:      logger,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		tempRoot:    tempRoot,
		keepTmp:     keepTmp,
		hardTimeout: hardTimeout,
		softTimeout: softTimeout,
		running:     make(map[string]context.CancelFunc),
	}
}

// Submit validates the request, accepts the job synchronously (Received ->
// Accepted), and starts asynchronous processing. It returns immediately.
func (m *Manager) Submit(req models.SubmitRequest) (models.SubmitResponse, int) {
	if req.JobID == "" {
		req.JobID = uuid.New().String()
	}
	if req.Task == "" {
		return models.SubmitResponse{Status: "error", JobID: req.JobID, Message: "task is required"}, http.StatusBadRequest
	}

	job := &models.Job{
		ID:          req.JobID,
		Task:        req.Task,
		Data:        req.Data,
		CallbackURL: req.CallbackURL,
		Status:      models.JobStatusAccepted,
		StartedAt:   time.Now(),
	}

	if err := m.storage.Save(context.Background(), job); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to persist accepted job")
	}

	m.logger.Info().
		Str("job_id", job.ID).
		Str("task", string(job.Task)).
		Interface("data", redact(job.Data)).
		Msg("job accepted")

	go m.run(job)

	return models.SubmitResponse{Status: "accepted", JobID: job.ID}, http.StatusOK
}

// Cancel requests cooperative cancellation of a running job, if any.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	cancel, ok := m.running[jobID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (m *Manager) run(job *models.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), m.hardTimeout)
	m.mu.Lock()
	m.running[job.ID] = cancel
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.running, job.ID)
		m.mu.Unlock()
	}()

	workDir := filepath.Join(m.tempRoot, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		m.fail(ctx, job, fmt.Errorf("create working directory: %w", err))
		return
	}
	job.WorkDir = workDir
	defer m.cleanup(job)

	job.Status = models.JobStatusRunning
	m.persist(job)

	result, err := m.runWithSoftTimeoutWarning(ctx, job)
	if ctx.Err() == context.DeadlineExceeded {
		m.fail(ctx, job, fmt.Errorf("job exceeded hard timeout of %s", m.hardTimeout))
		return
	}
	if err != nil {
		m.fail(ctx, job, err)
		return
	}

	job.Status = models.JobStatusCompleted
	job.Result = result
	now := time.Now()
	job.CompletedAt = &now
	m.persist(job)
	m.deliverCallback(job)
}

// runWithSoftTimeoutWarning logs (but does not abort) when the job's run
// exceeds the soft timeout, measured from job start; stages are not timed
// separately. Only the hard per-job deadline on ctx can fail it.
func (m *Manager) runWithSoftTimeoutWarning(ctx context.Context, job *models.Job) (interface{}, error) {
	done := make(chan struct{})
	timer := time.AfterFunc(m.softTimeout, func() {
		m.logger.Warn().Str("job_id", job.ID).Dur("soft_timeout", m.softTimeout).Msg("job exceeded soft timeout, continuing")
	})
	defer timer.Stop()

	var result interface{}
	var err error
	go func() {
		result, err = m.router.Run(ctx, job.Task, job.WorkDir, job.Data)
		close(done)
	}()

	select {
	case <-done:
		return result, err
	case <-ctx.Done():
		<-done
		return result, err
	}
}

func (m *Manager) fail(ctx context.Context, job *models.Job, err error) {
	job.Status = models.JobStatusFailed
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	m.logger.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
	m.persist(job)
	m.deliverCallback(job)
}

func (m *Manager) persist(job *models.Job) {
	if err := m.storage.Save(context.Background(), job); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to persist job state")
	}
}

// deliverCallback POSTs the job's result exactly once. Delivery failures are
// logged, never retried: the caller can poll GET /api/jobs/{id} instead.
func (m *Manager) deliverCallback(job *models.Job) {
	if job.CallbackURL == "" {
		return
	}

	payload := models.CallbackPayload{
		JobID:       job.ID,
		Status:      string(job.Status),
		Result:      job.Result,
		Error:       job.Error,
		ProcessedAt: time.Now(),
		DurationMS:  job.Duration().Milliseconds(),
		Logs:        job.Logs,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to marshal callback payload")
		return
	}

	req, err := http.NewRequest(http.MethodPost, job.CallbackURL, bytes.NewReader(raw))
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to build callback request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Str("callback_url", job.CallbackURL).Msg("callback delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		m.logger.Warn().Str("job_id", job.ID).Int("status", resp.StatusCode).Msg("callback endpoint returned non-2xx")
	}
}

func (m *Manager) cleanup(job *models.Job) {
	if m.keepTmp || job.RetainTempDir {
		return
	}
	if job.WorkDir == "" {
		return
	}
	if err := os.RemoveAll(job.WorkDir); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Str("work_dir", job.WorkDir).Msg("failed to remove job working directory")
	}
}

// Get returns a job's current status by delegating to the backing storage.
func (m *Manager) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return m.storage.Get(ctx, jobID)
}

// List returns a page of jobs ordered by most recently started.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	return m.storage.List(ctx, limit, offset)
}

// redact returns a shallow copy of data with sensitive-looking values
// replaced, suitable for logging.
func redact(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
		lowerKey := strings.ToLower(k)
		for _, pattern := range sensitiveKeyPattern {
			if strings.Contains(lowerKey, pattern) {
				out[k] = "***redacted***"
				break
			}
		}
	}
	return out
}
