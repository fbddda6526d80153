package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu      sync.Mutex
	calls   [][]int64
	err     error
	hasDeadline bool
}

func (r *recordingRunner) Run(ctx context.Context, tenantIDs []int64) (*pipeline.HealthRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, tenantIDs)
	_, r.hasDeadline = ctx.Deadline()
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.HealthRun{ID: 1, Status: pipeline.StatusCompleted}, nil
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := New("*/5 * * * *", nil, &recordingRunner{}, 0)
	assert.Error(t, err)

	_, err = New("every five minutes", []int64{1}, &recordingRunner{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recompute schedule")
}

func TestRunOnce_PassesTenantsWithDeadline(t *testing.T) {
	runner := &recordingRunner{}
	s, err := New("@hourly", []int64{3, 4}, runner, time.Minute)
	require.NoError(t, err)

	s.runOnce()

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []int64{3, 4}, runner.calls[0])
	assert.True(t, runner.hasDeadline)
}

func TestRunOnce_SwallowsErrors(t *testing.T) {
	runner := &recordingRunner{err: errors.New("db down")}
	s, err := New("@hourly", []int64{1}, runner, 0)
	require.NoError(t, err)

	assert.NotPanics(t, s.runOnce)
	assert.Len(t, runner.calls, 1)
}

func TestStartStop(t *testing.T) {
	s, err := New("@every 1h", []int64{1}, &recordingRunner{}, 0)
	require.NoError(t, err)

	s.Start()
	assert.False(t, s.NextRun().IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
