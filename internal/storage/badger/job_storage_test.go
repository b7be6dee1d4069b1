package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/models"
)

func openTestStore(t *testing.T) *Storage {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "jobs")
	s, err := Open(dir, false, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := &models.Job{ID: "job-1", Task: models.TaskName("build"), Status: models.JobStatusRunning, StartedAt: time.Now()}
	require.NoError(t, s.Save(ctx, job))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, models.JobStatusRunning, got.Status)
}

func TestStorage_Get_UnknownJobReturnsError(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStorage_Save_OverwritesExistingJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := &models.Job{ID: "job-1", Status: models.JobStatusRunning, StartedAt: time.Now()}
	require.NoError(t, s.Save(ctx, job))

	job.Status = models.JobStatusCompleted
	require.NoError(t, s.Save(ctx, job))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestStorage_List_OrderedNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"job-a", "job-b", "job-c"} {
		job := &models.Job{ID: id, Status: models.JobStatusCompleted, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.Save(ctx, job))
	}

	jobs, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "job-c", jobs[0].ID)
	assert.Equal(t, "job-a", jobs[2].ID)
}

func TestStorage_List_RespectsLimitAndOffset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"job-a", "job-b", "job-c"} {
		job := &models.Job{ID: id, Status: models.JobStatusCompleted, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.Save(ctx, job))
	}

	jobs, err := s.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-b", jobs[0].ID)
}
