// Package scheduler runs health recomputes on a cron schedule inside the API
// server process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/pipeline"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Runner is satisfied by *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, tenantIDs []int64) (*pipeline.HealthRun, error)
}

type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	tenants []int64
	timeout time.Duration
}

// New validates spec (standard 5-field cron) and registers the recompute
// job. Overlapping runs are skipped.
func New(spec string, tenants []int64, runner Runner, timeout time.Duration) (*Scheduler, error) {
	if len(tenants) == 0 {
		return nil, errors.New("scheduled recompute needs at least one tenant")
	}
	if timeout <= 0 {
		timeout = time.Hour
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:  runner,
		tenants: append([]int64(nil), tenants...),
		timeout: timeout,
	}

	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid recompute schedule %q: %w", spec, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().
		Ints64("tenants", s.tenants).
		Time("next_run", s.NextRun()).
		Msg("health recompute scheduler started")
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn().Msg("health recompute scheduler: stop timed out with a run in progress")
	}
}

// NextRun reports when the job fires next. Zero before Start.
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	run, err := s.runner.Run(ctx, s.tenants)
	if err != nil {
		log.Error().Err(err).Msg("scheduled health recompute failed")
		return
	}
	log.Info().
		Int64("run_id", run.ID).
		Int("snapshots", run.SnapshotsWritten).
		Time("next_run", s.NextRun()).
		Msg("scheduled health recompute finished")
}
