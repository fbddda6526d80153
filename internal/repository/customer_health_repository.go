// internal/repository/customer_health_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/customer-health/backend-go/internal/domain"
	"github.com/andresuchdata/customer-health/backend-go/internal/repository/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type CustomerHealthRepository interface {
	SaveSnapshots(ctx context.Context, snapshots []domain.CustomerHealthSnapshot) error
	GetLatestSnapshot(ctx context.Context, customerID int64) (*domain.CustomerHealthSnapshot, error)
	GetHealthSummary(ctx context.Context, filter domain.HealthFilter) ([]domain.HealthStatusSummary, error)
	ListSnapshots(ctx context.Context, filter domain.HealthFilter) ([]domain.CustomerHealthSnapshot, int, error)
}

type customerHealthRepository struct {
	db *postgres.DB
}

func NewCustomerHealthRepository(db *postgres.DB) CustomerHealthRepository {
	return &customerHealthRepository{db: db}
}

const upsertSnapshotQuery = `
    INSERT INTO customer_health_snapshots (
        customer_id, tenant_id, customer_name, sales_rep_id, tier, status,
        current_average, baseline, lower_band, upper_band, confidence_score,
        reason, sample_size, monthly_revenue, assessed_at
    ) VALUES (
        :customer_id, :tenant_id, :customer_name, :sales_rep_id, :tier, :status,
        :current_average, :baseline, :lower_band, :upper_band, :confidence_score,
        :reason, :sample_size, :monthly_revenue, :assessed_at
    )
    ON CONFLICT (customer_id) DO UPDATE SET
        tenant_id = EXCLUDED.tenant_id,
        customer_name = EXCLUDED.customer_name,
        sales_rep_id = EXCLUDED.sales_rep_id,
        tier = EXCLUDED.tier,
        status = EXCLUDED.status,
        current_average = EXCLUDED.current_average,
        baseline = EXCLUDED.baseline,
        lower_band = EXCLUDED.lower_band,
        upper_band = EXCLUDED.upper_band,
        confidence_score = EXCLUDED.confidence_score,
        reason = EXCLUDED.reason,
        sample_size = EXCLUDED.sample_size,
        monthly_revenue = EXCLUDED.monthly_revenue,
        assessed_at = EXCLUDED.assessed_at
`

const snapshotColumns = `
    customer_id, tenant_id, customer_name, sales_rep_id, tier, status,
    current_average, baseline, lower_band, upper_band, confidence_score,
    reason, sample_size, monthly_revenue, assessed_at
`

// SaveSnapshots upserts all snapshots in one transaction.
func (r *customerHealthRepository) SaveSnapshots(ctx context.Context, snapshots []domain.CustomerHealthSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range snapshots {
			if _, err := tx.NamedExecContext(ctx, upsertSnapshotQuery, &snapshots[i]); err != nil {
				return fmt.Errorf("error saving snapshot for customer %d: %w", snapshots[i].CustomerID, err)
			}
		}
		return nil
	})
}

func (r *customerHealthRepository) GetLatestSnapshot(ctx context.Context, customerID int64) (*domain.CustomerHealthSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM customer_health_snapshots WHERE customer_id = $1`

	var snapshot domain.CustomerHealthSnapshot
	err := r.db.GetContext(ctx, &snapshot, query, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting latest snapshot: %w", err)
	}

	return &snapshot, nil
}

func (r *customerHealthRepository) GetHealthSummary(ctx context.Context, filter domain.HealthFilter) ([]domain.HealthStatusSummary, error) {
	where, args := buildHealthFilter(filter)

	query := `
        SELECT status, COUNT(*) AS count
        FROM customer_health_snapshots
        WHERE 1=1` + where + `
        GROUP BY status
        ORDER BY status
    `

	var summaries []domain.HealthStatusSummary
	if err := r.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		return nil, fmt.Errorf("error getting health summary: %w", err)
	}

	for i := range summaries {
		summaries[i].Label = domain.HealthStatusLabel(summaries[i].Status)
	}

	return summaries, nil
}

func (r *customerHealthRepository) ListSnapshots(ctx context.Context, filter domain.HealthFilter) ([]domain.CustomerHealthSnapshot, int, error) {
	where, args := buildHealthFilter(filter)

	countQuery := `SELECT COUNT(*) FROM customer_health_snapshots WHERE 1=1` + where

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("error counting snapshots: %w", err)
	}

	query := `SELECT ` + snapshotColumns + ` FROM customer_health_snapshots WHERE 1=1` + where +
		` ORDER BY confidence_score DESC, customer_id`

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
	}

	var snapshots []domain.CustomerHealthSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("error listing snapshots: %w", err)
	}

	return snapshots, total, nil
}

// buildHealthFilter returns an " AND ..." clause and its positional args.
func buildHealthFilter(filter domain.HealthFilter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	next := func() int { return len(args) + 1 }

	if filter.TenantID > 0 {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", next()))
		args = append(args, filter.TenantID)
	}

	if filter.SalesRepID != nil {
		conditions = append(conditions, fmt.Sprintf("sales_rep_id = $%d", next()))
		args = append(args, *filter.SalesRepID)
	}

	if len(filter.Statuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", next()))
		args = append(args, pq.Array(filter.Statuses))
	}

	if len(filter.Tiers) > 0 {
		conditions = append(conditions, fmt.Sprintf("tier = ANY($%d)", next()))
		args = append(args, pq.Array(filter.Tiers))
	}

	if len(conditions) == 0 {
		return "", args
	}

	return " AND " + strings.Join(conditions, " AND "), args
}
