package main

import (
	"fmt"
	"sync"

	"github.com/andresuchdata/customer-health/backend-go/internal/cache"
	"github.com/andresuchdata/customer-health/backend-go/internal/config"
	"github.com/andresuchdata/customer-health/backend-go/internal/pipeline"
	"github.com/andresuchdata/customer-health/backend-go/internal/repository"
	"github.com/andresuchdata/customer-health/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/customer-health/backend-go/internal/service"
	"github.com/andresuchdata/customer-health/backend-go/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
)

func recomputeCommand() *cli.Command {
	return &cli.Command{
		Name:  "recompute",
		Usage: "Recompute and persist health snapshots for one or more tenants",
		Flags: []cli.Flag{
			newDBURLFlag(),
			&cli.Int64SliceFlag{Name: "tenant", Usage: "Tenant id to recompute (repeatable); defaults to HEALTH_RECOMPUTE_TENANTS"},
			&cli.IntFlag{Name: "workers", Usage: "Customers assessed concurrently per tenant"},
			&cli.IntFlag{Name: "tenant-concurrency", Value: 1, Usage: "Tenants processed at once"},
			&cli.IntFlag{Name: "batch-size", Usage: "Snapshots per upsert batch"},
			&cli.Float64Flag{Name: "rate", Usage: "Max customers per second, 0 for unlimited"},
			&cli.StringFlag{Name: "report-dir", Usage: "Directory for the CSV run report"},
			&cli.BoolFlag{Name: "upload", Usage: "Upload the run report to object storage"},
			&cli.BoolFlag{Name: "tier-sensitive", Usage: "Use tier alpha and k-sigma for the bands"},
			&cli.IntFlag{Name: "history-limit", Usage: "Latest orders per customer in the series"},
			&cli.IntFlag{Name: "revenue-months", Usage: "Trailing months averaged into monthly revenue"},
			&cli.BoolFlag{Name: "no-progress", Usage: "Disable the progress bar"},
		},
		Action: runRecompute,
	}
}

func runRecompute(c *cli.Context) error {
	cfg := config.Load()

	tenants := c.Int64Slice("tenant")
	if len(tenants) == 0 {
		tenants = cfg.Health.RecomputeTenants
	}
	if len(tenants) == 0 {
		return fmt.Errorf("no tenants given: pass --tenant or set HEALTH_RECOMPUTE_TENANTS")
	}

	dbURL := c.String("db-url")
	db, err := postgres.Open(dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	trackingDB, err := pipeline.OpenTrackingDB(c.Context, dbURL)
	if err != nil {
		return err
	}
	defer trackingDB.Close()

	healthCache, err := cache.NewHealthCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("health cache unavailable, continuing without invalidation")
		healthCache = cache.NewNoopHealthCache()
	}

	settings := service.Settings{
		HistoryLimit:       pickInt(c, "history-limit", cfg.Health.HistoryLimit),
		RevenueMonths:      pickInt(c, "revenue-months", cfg.Health.RevenueMonths),
		TierSensitiveBands: cfg.Health.TierSensitiveBands || c.Bool("tier-sensitive"),
		SnapshotMaxAge:     cfg.Health.SnapshotMaxAge,
	}
	svc := service.NewCustomerHealthService(
		repository.NewOrderHistoryRepository(db.DB),
		repository.NewCustomerHealthRepository(db),
		healthCache,
		settings,
	)

	var store storage.ObjectStorage
	if c.Bool("upload") {
		client, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("report upload requested: %w", err)
		}
		store = client
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.WorkerCount = pickInt(c, "workers", cfg.Health.WorkerCount)
	pcfg.BatchSize = pickInt(c, "batch-size", cfg.Health.BatchSize)
	pcfg.TenantConcurrency = c.Int("tenant-concurrency")
	pcfg.ReportDir = cfg.App.ReportDir
	if c.IsSet("report-dir") {
		pcfg.ReportDir = c.String("report-dir")
	}
	pcfg.CustomersPerSecond = cfg.Health.RecomputeRate
	if c.IsSet("rate") {
		pcfg.CustomersPerSecond = c.Float64("rate")
	}

	orchestrator := pipeline.NewOrchestrator(svc, pipeline.NewRepository(trackingDB), store, pcfg)

	if !c.Bool("no-progress") {
		bar := progressbar.NewOptions(len(tenants),
			progressbar.OptionSetWriter(c.App.ErrWriter),
			progressbar.OptionSetDescription("recomputing tenants"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		var mu sync.Mutex
		orchestrator.OnTenantDone(func(stats pipeline.TenantStats) {
			mu.Lock()
			defer mu.Unlock()
			_ = bar.Add(1)
		})
		defer bar.Finish()
	}

	run, err := orchestrator.Run(c.Context, tenants)
	if run != nil {
		fmt.Fprintf(c.App.Writer, "run %d %s: %d customers, %d snapshots\n",
			run.ID, run.Status, run.CustomersProcessed, run.SnapshotsWritten)
		if run.ReportPath != "" {
			fmt.Fprintf(c.App.Writer, "report: %s\n", run.ReportPath)
		}
	}
	return err
}

// pickInt returns the flag value when it was given, otherwise fallback.
func pickInt(c *cli.Context, name string, fallback int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	return fallback
}
