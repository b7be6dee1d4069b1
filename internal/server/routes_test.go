package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/common"
	"github.com/vaultpress/buildworker/internal/jobs"
	"github.com/vaultpress/buildworker/internal/models"
)

type fakeJobStorage struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newFakeJobStorage() *fakeJobStorage {
	return &fakeJobStorage{jobs: make(map[string]*models.Job)}
}

func (s *fakeJobStorage) Save(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeJobStorage) Get(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, assert.AnError
	}
	return job, nil
}

func (s *fakeJobStorage) List(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, job := range s.jobs {
		out = append(out, job)
	}
	return out, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	router := jobs.NewRouter(nil)
	manager := jobs.NewManager(router, newFakeJobStorage(), t.TempDir(), false, 5*time.Second, time.Second, arbor.NewLogger())
	cfg := &common.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	return New(cfg, manager, arbor.NewLogger())
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleProcess_RejectsMissingTask(t *testing.T) {
	s := testServer(t)
	payload, _ := json.Marshal(map[string]string{"data": "nope"})
	req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleProcess_AcceptsValidRequestAndGeneratesJobID(t *testing.T) {
	s := testServer(t)
	payload, _ := json.Marshal(models.SubmitRequest{Task: models.TaskName("process-all")})
	req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.NotEmpty(t, resp.JobID)
}

func TestHandleProcess_RejectsWrongMethod(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/process", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleJobStatus_UnknownJobReturnsNotFound(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleJobStatus_MissingIDReturnsBadRequest(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleJobList_ReturnsEmptyListInitially(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleVersion_ReturnsVersionFields(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	_, ok := body["version"]
	assert.True(t, ok)
}

func TestValidationMessage_NonValidationErrorFallsBack(t *testing.T) {
	assert.Equal(t, "invalid request", validationMessage(assert.AnError))
}
