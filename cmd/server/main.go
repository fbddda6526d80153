// cmd/server/main.go
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/api"
	"github.com/andresuchdata/customer-health/backend-go/internal/cache"
	"github.com/andresuchdata/customer-health/backend-go/internal/config"
	"github.com/andresuchdata/customer-health/backend-go/internal/pipeline"
	"github.com/andresuchdata/customer-health/backend-go/internal/repository"
	"github.com/andresuchdata/customer-health/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/customer-health/backend-go/internal/scheduler"
	"github.com/andresuchdata/customer-health/backend-go/internal/service"
	"github.com/andresuchdata/customer-health/backend-go/internal/storage"
	"github.com/andresuchdata/customer-health/backend-go/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		logger.UseJSON()
		gin.SetMode(gin.ReleaseMode)
	}
	logger.SetLevel(cfg.App.LogLevel)

	// Initialize database
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	healthCache, err := cache.NewHealthCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Redis unavailable, continuing without cache")
		healthCache = cache.NewNoopHealthCache()
	}

	// Initialize services
	healthService := service.NewCustomerHealthService(
		repository.NewOrderHistoryRepository(db.DB),
		repository.NewCustomerHealthRepository(db),
		healthCache,
		service.Settings{
			HistoryLimit:       cfg.Health.HistoryLimit,
			RevenueMonths:      cfg.Health.RevenueMonths,
			TierSensitiveBands: cfg.Health.TierSensitiveBands,
			SnapshotMaxAge:     cfg.Health.SnapshotMaxAge,
		},
	)

	sched, trackingDB := startScheduler(cfg, healthService)
	if trackingDB != nil {
		defer trackingDB.Close()
	}

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{CustomerHealth: healthService}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if sched != nil {
		sched.Stop(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}

// startScheduler wires the in-process recompute when HEALTH_RECOMPUTE_CRON
// is set. Failures are logged and leave the API running without it.
func startScheduler(cfg *config.Config, svc *service.CustomerHealthService) (*scheduler.Scheduler, *sql.DB) {
	if cfg.Health.RecomputeCron == "" {
		return nil, nil
	}

	trackingDB, err := pipeline.OpenTrackingDB(context.Background(), postgres.URL(&cfg.Database))
	if err != nil {
		logger.Log.Error().Err(err).Msg("Scheduled recompute disabled: tracking database unavailable")
		return nil, nil
	}

	var store storage.ObjectStorage
	if cfg.Storage.Enabled {
		client, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			logger.Log.Error().Err(err).Msg("Report upload disabled: storage misconfigured")
		} else {
			store = client
		}
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.WorkerCount = cfg.Health.WorkerCount
	pcfg.BatchSize = cfg.Health.BatchSize
	pcfg.ReportDir = cfg.App.ReportDir
	pcfg.CustomersPerSecond = cfg.Health.RecomputeRate

	orchestrator := pipeline.NewOrchestrator(svc, pipeline.NewRepository(trackingDB), store, pcfg)

	sched, err := scheduler.New(cfg.Health.RecomputeCron, cfg.Health.RecomputeTenants, orchestrator, time.Hour)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Scheduled recompute disabled")
		trackingDB.Close()
		return nil, nil
	}

	sched.Start()
	return sched, trackingDB
}
