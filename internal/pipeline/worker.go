package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Worker recomputes the health of every active customer of a tenant
type Worker struct {
	svc        HealthService
	config     Config
	aggregator *SnapshotAggregator
	limiter    *rate.Limiter
}

// NewWorker creates a worker that feeds aggregator
func NewWorker(svc HealthService, config Config, aggregator *SnapshotAggregator) *Worker {
	config = config.withDefaults()
	w := &Worker{
		svc:        svc,
		config:     config,
		aggregator: aggregator,
	}
	if config.CustomersPerSecond > 0 {
		burst := int(config.CustomersPerSecond)
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(config.CustomersPerSecond), burst)
	}
	return w
}

// ProcessTenant fans the tenant's customers out to WorkerCount goroutines.
// A customer that fails is logged and counted, not fatal. A failed flush
// or a cancelled context is.
func (w *Worker) ProcessTenant(ctx context.Context, tenantID int64) (TenantStats, error) {
	start := time.Now()
	stats := TenantStats{TenantID: tenantID}

	customers, err := w.svc.ListActiveCustomers(ctx, tenantID)
	if err != nil {
		return stats, fmt.Errorf("failed to list customers for tenant %d: %w", tenantID, err)
	}
	stats.Customers = len(customers)

	log.Info().Int64("tenant_id", tenantID).Int("customers", len(customers)).Msg("health recompute: processing tenant")

	var (
		processed int64
		failed    int64
		flushErr  error
		errOnce   sync.Once
		wg        sync.WaitGroup
	)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobChan := make(chan domain.Customer)

	for i := 0; i < w.config.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for customer := range jobChan {
				if w.limiter != nil {
					if err := w.limiter.Wait(workCtx); err != nil {
						continue
					}
				}

				snapshot, err := w.svc.RefreshCustomerHealth(workCtx, customer)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					log.Warn().Err(err).
						Int("worker", workerID).
						Int64("customer_id", customer.ID).
						Msg("health recompute: customer failed")
					continue
				}

				if err := w.aggregator.Add(workCtx, *snapshot); err != nil {
					errOnce.Do(func() {
						flushErr = err
						cancel()
					})
					continue
				}
				atomic.AddInt64(&processed, 1)
			}
		}(i)
	}

enqueue:
	for _, customer := range customers {
		select {
		case <-workCtx.Done():
			break enqueue
		case jobChan <- customer:
		}
	}
	close(jobChan)
	wg.Wait()

	stats.Processed = int(processed)
	stats.Failed = int(failed)
	stats.Duration = time.Since(start)

	if flushErr != nil {
		return stats, flushErr
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	log.Info().
		Int64("tenant_id", tenantID).
		Int("processed", stats.Processed).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("health recompute: tenant done")

	return stats, nil
}
