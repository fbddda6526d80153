package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/domain"
	"github.com/andresuchdata/customer-health/backend-go/internal/storage"
	"github.com/rs/zerolog/log"
)

var reportHeader = []string{
	"customer_id", "tenant_id", "customer_name", "tier", "status",
	"current_average", "baseline", "lower_band", "upper_band",
	"confidence_score", "sample_size", "monthly_revenue", "reason",
}

// SnapshotAggregator buffers snapshots and saves them in batches. Each
// saved batch is appended to a partial CSV report on disk, so memory stays
// bounded by BatchSize however large the run is.
type SnapshotAggregator struct {
	config    Config
	save      func(ctx context.Context, snapshots []domain.CustomerHealthSnapshot) error
	store     storage.ObjectStorage
	buffer    []domain.CustomerHealthSnapshot
	written   int
	mu        sync.Mutex
	lastFlush time.Time
	now       func() time.Time

	reportFile *os.File
	reportCSV  *csv.Writer
}

// NewSnapshotAggregator creates an aggregator. store may be nil, in which
// case reports stay on local disk.
func NewSnapshotAggregator(
	config Config,
	save func(ctx context.Context, snapshots []domain.CustomerHealthSnapshot) error,
	store storage.ObjectStorage,
) *SnapshotAggregator {
	config = config.withDefaults()
	return &SnapshotAggregator{
		config:    config,
		save:      save,
		store:     store,
		buffer:    make([]domain.CustomerHealthSnapshot, 0, config.BatchSize),
		lastFlush: time.Now(),
		now:       time.Now,
	}
}

// Add buffers snapshot and flushes when the batch is full or the flush
// interval has elapsed.
func (sa *SnapshotAggregator) Add(ctx context.Context, snapshot domain.CustomerHealthSnapshot) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	sa.buffer = append(sa.buffer, snapshot)

	shouldFlush := len(sa.buffer) >= sa.config.BatchSize ||
		sa.now().Sub(sa.lastFlush) >= sa.config.FlushInterval

	if shouldFlush {
		return sa.flushLocked(ctx)
	}

	return nil
}

// Flush saves whatever is buffered.
func (sa *SnapshotAggregator) Flush(ctx context.Context) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return sa.flushLocked(ctx)
}

// Finalize flushes the remainder and publishes the CSV report under its
// final name. It returns the object key when the report was uploaded,
// otherwise the local path, and "" when there was nothing to report.
func (sa *SnapshotAggregator) Finalize(ctx context.Context, runID int64) (string, error) {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if err := sa.flushLocked(ctx); err != nil {
		return "", err
	}

	if sa.reportFile == nil {
		log.Info().Int64("run_id", runID).Msg("health recompute: no snapshots to report")
		return "", nil
	}

	partial := sa.reportFile.Name()
	if err := sa.closeReportLocked(); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	name := fmt.Sprintf("health_run_%d_%s.csv", runID, sa.now().UTC().Format("20060102T150405"))
	localPath := filepath.Join(sa.config.ReportDir, name)
	if err := os.Rename(partial, localPath); err != nil {
		return "", fmt.Errorf("failed to publish report: %w", err)
	}

	log.Info().Str("path", localPath).Int("rows", sa.written).Msg("health recompute: wrote report")

	if sa.store == nil {
		return localPath, nil
	}

	key := path.Join(sa.config.ReportBucketPrefix, name)
	if err := sa.store.UploadFile(ctx, key, localPath); err != nil {
		return localPath, fmt.Errorf("failed to upload report: %w", err)
	}

	log.Info().Str("key", key).Msg("health recompute: uploaded report")
	return key, nil
}

// Discard drops the partial report of a run that will not be finalized.
func (sa *SnapshotAggregator) Discard() {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if sa.reportFile == nil {
		return
	}
	partial := sa.reportFile.Name()
	_ = sa.closeReportLocked()
	if err := os.Remove(partial); err != nil {
		log.Warn().Err(err).Str("path", partial).Msg("health recompute: failed to remove partial report")
	}
}

// Written returns the number of snapshots saved so far.
func (sa *SnapshotAggregator) Written() int {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return sa.written
}

// flushLocked must be called with sa.mu held
func (sa *SnapshotAggregator) flushLocked(ctx context.Context) error {
	if len(sa.buffer) == 0 {
		sa.lastFlush = sa.now()
		return nil
	}

	batch := make([]domain.CustomerHealthSnapshot, len(sa.buffer))
	copy(batch, sa.buffer)

	if err := sa.save(ctx, batch); err != nil {
		return fmt.Errorf("failed to save %d snapshots: %w", len(batch), err)
	}

	log.Debug().Int("count", len(batch)).Msg("health recompute: flushed snapshots")

	sa.written += len(batch)
	sa.buffer = sa.buffer[:0]
	sa.lastFlush = sa.now()

	if err := sa.appendReportLocked(batch); err != nil {
		return fmt.Errorf("failed to append report rows: %w", err)
	}
	return nil
}

func (sa *SnapshotAggregator) appendReportLocked(batch []domain.CustomerHealthSnapshot) error {
	if sa.reportFile == nil {
		if err := os.MkdirAll(sa.config.ReportDir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
		f, err := os.CreateTemp(sa.config.ReportDir, "health_run_*.csv.partial")
		if err != nil {
			return err
		}
		sa.reportFile = f
		sa.reportCSV = csv.NewWriter(f)
		if err := sa.reportCSV.Write(reportHeader); err != nil {
			return err
		}
	}

	for _, s := range batch {
		if err := sa.reportCSV.Write(reportRecord(s)); err != nil {
			return err
		}
	}
	sa.reportCSV.Flush()
	return sa.reportCSV.Error()
}

func (sa *SnapshotAggregator) closeReportLocked() error {
	sa.reportCSV.Flush()
	werr := sa.reportCSV.Error()
	cerr := sa.reportFile.Close()
	sa.reportFile = nil
	sa.reportCSV = nil
	if werr != nil {
		return werr
	}
	return cerr
}

func reportRecord(s domain.CustomerHealthSnapshot) []string {
	return []string{
		strconv.FormatInt(s.CustomerID, 10),
		strconv.FormatInt(s.TenantID, 10),
		s.CustomerName,
		s.Tier,
		s.Status,
		formatAmount(s.CurrentAverage),
		formatAmount(s.Baseline),
		formatAmount(s.LowerBand),
		formatAmount(s.UpperBand),
		formatAmount(s.ConfidenceScore),
		strconv.Itoa(s.SampleSize),
		formatAmount(s.MonthlyRevenue),
		s.Reason,
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
