package pipeline

import (
	"context"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/domain"
)

// HealthService is the slice of the customer health service a recompute needs.
type HealthService interface {
	ListActiveCustomers(ctx context.Context, tenantID int64) ([]domain.Customer, error)
	RefreshCustomerHealth(ctx context.Context, customer domain.Customer) (*domain.CustomerHealthSnapshot, error)
	SaveSnapshots(ctx context.Context, snapshots []domain.CustomerHealthSnapshot) error
	InvalidateTenant(ctx context.Context, tenantID int64) error
}

// RunTracker persists the lifecycle of a recompute run.
type RunTracker interface {
	CreateRun(ctx context.Context, run *HealthRun) error
	UpdateRun(ctx context.Context, run *HealthRun) error
}

// Config holds configuration for a recompute
type Config struct {
	WorkerCount        int           // Concurrent customers per tenant
	TenantConcurrency  int           // Tenants processed at once
	BatchSize          int           // Snapshots buffered before a flush
	FlushInterval      time.Duration // Max time between flushes
	ReportDir          string        // Local directory for CSV reports
	ReportBucketPrefix string        // Object key prefix for uploaded reports
	CustomersPerSecond float64       // Refresh rate cap across workers; 0 is unlimited
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		WorkerCount:        4,
		TenantConcurrency:  1,
		BatchSize:          200,
		FlushInterval:      30 * time.Second,
		ReportDir:          "data/reports",
		ReportBucketPrefix: "health-reports/",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WorkerCount < 1 {
		c.WorkerCount = d.WorkerCount
	}
	if c.TenantConcurrency < 1 {
		c.TenantConcurrency = d.TenantConcurrency
	}
	if c.BatchSize < 1 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.ReportDir == "" {
		c.ReportDir = d.ReportDir
	}
	return c
}

// RunStatus represents the current state of a recompute run
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// HealthRun tracks a single recompute over a set of tenants
type HealthRun struct {
	ID                 int64
	Status             RunStatus
	StartedAt          time.Time
	FinishedAt         *time.Time
	TenantsTotal       int
	CustomersProcessed int
	SnapshotsWritten   int
	ReportPath         string
	ErrorMessage       string
}

// TenantStats is the outcome of one Worker.ProcessTenant call
type TenantStats struct {
	TenantID  int64
	Customers int
	Processed int
	Failed    int
	Duration  time.Duration
}
