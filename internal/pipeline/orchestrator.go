package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Orchestrator runs a tracked recompute over a set of tenants.
type Orchestrator struct {
	svc     HealthService
	tracker RunTracker
	store   storage.ObjectStorage
	cfg     Config
	now     func() time.Time

	onTenantDone func(TenantStats)
}

// NewOrchestrator creates a new Orchestrator. tracker and store may be nil.
func NewOrchestrator(svc HealthService, tracker RunTracker, store storage.ObjectStorage, cfg Config) *Orchestrator {
	return &Orchestrator{
		svc:     svc,
		tracker: tracker,
		store:   store,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
}

// OnTenantDone registers fn to be called after each tenant finishes,
// successfully or not. fn may be called concurrently.
func (o *Orchestrator) OnTenantDone(fn func(TenantStats)) {
	o.onTenantDone = fn
}

// Run recomputes every tenant, invalidating each tenant's cached summary
// once its snapshots are saved, and records the run.
func (o *Orchestrator) Run(ctx context.Context, tenantIDs []int64) (*HealthRun, error) {
	run := &HealthRun{
		Status:       StatusPending,
		StartedAt:    o.now(),
		TenantsTotal: len(tenantIDs),
	}
	if err := o.createRun(ctx, run); err != nil {
		return nil, err
	}

	run.Status = StatusProcessing
	if err := o.updateRun(ctx, run); err != nil {
		return run, err
	}

	aggregator := NewSnapshotAggregator(o.cfg, o.svc.SaveSnapshots, o.store)
	worker := NewWorker(o.svc, o.cfg, aggregator)

	var (
		mu        sync.Mutex
		processed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.TenantConcurrency)

	for _, tenantID := range tenantIDs {
		g.Go(func() error {
			stats, err := worker.ProcessTenant(gctx, tenantID)
			mu.Lock()
			processed += stats.Processed
			mu.Unlock()
			if o.onTenantDone != nil {
				o.onTenantDone(stats)
			}
			if err != nil {
				return fmt.Errorf("tenant %d: %w", tenantID, err)
			}

			if err := aggregator.Flush(gctx); err != nil {
				return fmt.Errorf("tenant %d: %w", tenantID, err)
			}
			if err := o.svc.InvalidateTenant(gctx, tenantID); err != nil {
				log.Warn().Err(err).Int64("tenant_id", tenantID).Msg("health recompute: cache invalidate failed")
			}
			return nil
		})
	}

	runErr := g.Wait()

	run.CustomersProcessed = processed
	if runErr == nil {
		run.ReportPath, runErr = aggregator.Finalize(ctx, run.ID)
	}
	if runErr != nil {
		aggregator.Discard()
	}
	run.SnapshotsWritten = aggregator.Written()

	finished := o.now()
	run.FinishedAt = &finished
	if runErr != nil {
		run.Status = StatusFailed
		run.ErrorMessage = runErr.Error()
	} else {
		run.Status = StatusCompleted
	}

	if err := o.updateRun(ctx, run); err != nil {
		log.Error().Err(err).Int64("run_id", run.ID).Msg("health recompute: failed to record run")
	}

	if runErr != nil {
		return run, runErr
	}

	log.Info().
		Int64("run_id", run.ID).
		Int("tenants", run.TenantsTotal).
		Int("customers", run.CustomersProcessed).
		Int("snapshots", run.SnapshotsWritten).
		Str("report", run.ReportPath).
		Msg("health recompute: completed")

	return run, nil
}

func (o *Orchestrator) createRun(ctx context.Context, run *HealthRun) error {
	if o.tracker == nil {
		return nil
	}
	if err := o.tracker.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to create health run: %w", err)
	}
	return nil
}

func (o *Orchestrator) updateRun(ctx context.Context, run *HealthRun) error {
	if o.tracker == nil {
		return nil
	}
	if err := o.tracker.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update health run: %w", err)
	}
	return nil
}
