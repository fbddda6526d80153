package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Repository handles database operations for run tracking
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new run tracking repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// OpenTrackingDB opens a database/sql pool on the pgx driver.
func OpenTrackingDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("error opening tracking database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging tracking database: %w", err)
	}
	db.SetMaxOpenConns(4)
	return db, nil
}

// CreateRun inserts run and sets its ID
func (r *Repository) CreateRun(ctx context.Context, run *HealthRun) error {
	query := `
		INSERT INTO health_runs (status, started_at, tenants_total)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	if err := r.db.QueryRowContext(ctx, query, run.Status, run.StartedAt, run.TenantsTotal).Scan(&run.ID); err != nil {
		return fmt.Errorf("error creating health run: %w", err)
	}
	return nil
}

// UpdateRun writes the mutable fields of run
func (r *Repository) UpdateRun(ctx context.Context, run *HealthRun) error {
	query := `
		UPDATE health_runs
		SET status = $1, finished_at = $2, customers_processed = $3,
		    snapshots_written = $4, report_path = $5, error_message = $6
		WHERE id = $7
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.FinishedAt, run.CustomersProcessed,
		run.SnapshotsWritten, run.ReportPath, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating health run %d: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns nil, nil when absent.
func (r *Repository) GetRun(ctx context.Context, id int64) (*HealthRun, error) {
	query := `
		SELECT id, status, started_at, finished_at, tenants_total,
		       customers_processed, snapshots_written, report_path, error_message
		FROM health_runs
		WHERE id = $1
	`

	run := &HealthRun{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.Status, &run.StartedAt, &run.FinishedAt, &run.TenantsTotal,
		&run.CustomersProcessed, &run.SnapshotsWritten, &run.ReportPath, &run.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting health run %d: %w", id, err)
	}

	return run, nil
}

// ListRecentRuns returns the latest runs, newest first
func (r *Repository) ListRecentRuns(ctx context.Context, limit int) ([]*HealthRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, status, started_at, finished_at, tenants_total,
		       customers_processed, snapshots_written, report_path, error_message
		FROM health_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing health runs: %w", err)
	}
	defer rows.Close()

	var runs []*HealthRun
	for rows.Next() {
		run := &HealthRun{}
		err := rows.Scan(
			&run.ID, &run.Status, &run.StartedAt, &run.FinishedAt, &run.TenantsTotal,
			&run.CustomersProcessed, &run.SnapshotsWritten, &run.ReportPath, &run.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
