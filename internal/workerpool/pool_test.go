package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestNewPool_DefaultsMaxWorkersWhenNonPositive(t *testing.T) {
	p := NewPool(0, arbor.NewLogger())
	assert.Equal(t, 10, p.maxWorkers)
}

func TestPool_ProcessesAllSubmittedJobs(t *testing.T) {
	p := NewPool(4, arbor.NewLogger())
	p.Start()

	var completed int64
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&completed, 1)
			return nil
		}))
	}
	p.Wait()

	assert.EqualValues(t, 20, completed)
}

func TestPool_CollectsJobErrors(t *testing.T) {
	p := NewPool(2, arbor.NewLogger())
	p.Start()

	boom := errors.New("boom")
	require.NoError(t, p.Submit(func(ctx context.Context) error { return boom }))
	require.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))
	p.Wait()

	errs := p.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, boom, errs[0])
}

func TestPool_ShutdownStopsAcceptingNewJobs(t *testing.T) {
	p := NewPool(2, arbor.NewLogger())
	p.Start()
	p.Shutdown()

	err := p.Submit(func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestPool_JobsObserveCancelledContextOnShutdown(t *testing.T) {
	p := NewPool(1, arbor.NewLogger())
	p.Start()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return nil
	}))

	<-started
	p.cancel()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job did not observe context cancellation")
	}
}
