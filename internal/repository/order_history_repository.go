// internal/repository/order_history_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/andresuchdata/customer-health/backend-go/internal/domain"
	"github.com/jmoiron/sqlx"
)

// OrderHistoryRepository reads the order data the health engine consumes.
type OrderHistoryRepository interface {
	// GetRecentOrderTotals returns the latest limit order totals, oldest first.
	GetRecentOrderTotals(ctx context.Context, customerID int64, limit int) ([]float64, error)
	// GetMonthlyRevenue returns the average monthly spend over the trailing months.
	GetMonthlyRevenue(ctx context.Context, customerID int64, months int) (float64, error)
	GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error)
	ListActiveCustomers(ctx context.Context, tenantID int64) ([]domain.Customer, error)
}

type orderHistoryRepository struct {
	db *sqlx.DB
}

func NewOrderHistoryRepository(db *sqlx.DB) OrderHistoryRepository {
	return &orderHistoryRepository{db: db}
}

func (r *orderHistoryRepository) GetRecentOrderTotals(ctx context.Context, customerID int64, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 24
	}

	query := `
        SELECT total
        FROM (
            SELECT id, total, ordered_at
            FROM orders
            WHERE customer_id = $1
              AND status <> 'CANCELLED'
            ORDER BY ordered_at DESC, id DESC
            LIMIT $2
        ) recent
        ORDER BY ordered_at ASC, id ASC
    `

	var totals []float64
	if err := r.db.SelectContext(ctx, &totals, query, customerID, limit); err != nil {
		return nil, fmt.Errorf("error getting recent order totals: %w", err)
	}

	return totals, nil
}

func (r *orderHistoryRepository) GetMonthlyRevenue(ctx context.Context, customerID int64, months int) (float64, error) {
	if months <= 0 {
		months = 3
	}

	query := `
        SELECT COALESCE(SUM(total), 0)
        FROM orders
        WHERE customer_id = $1
          AND status <> 'CANCELLED'
          AND ordered_at >= NOW() - make_interval(months => $2)
    `

	var total float64
	if err := r.db.GetContext(ctx, &total, query, customerID, months); err != nil {
		return 0, fmt.Errorf("error getting monthly revenue: %w", err)
	}

	return total / float64(months), nil
}

func (r *orderHistoryRepository) GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error) {
	query := `
        SELECT id, tenant_id, name, sales_rep_id, is_active
        FROM customers
        WHERE id = $1
    `

	var customers []domain.Customer
	if err := r.db.SelectContext(ctx, &customers, query, customerID); err != nil {
		return nil, fmt.Errorf("error getting customer: %w", err)
	}
	if len(customers) == 0 {
		return nil, nil
	}

	return &customers[0], nil
}

func (r *orderHistoryRepository) ListActiveCustomers(ctx context.Context, tenantID int64) ([]domain.Customer, error) {
	query := `
        SELECT id, tenant_id, name, sales_rep_id, is_active
        FROM customers
        WHERE tenant_id = $1
          AND is_active = TRUE
        ORDER BY id
    `

	var customers []domain.Customer
	if err := r.db.SelectContext(ctx, &customers, query, tenantID); err != nil {
		return nil, fmt.Errorf("error listing active customers: %w", err)
	}

	return customers, nil
}
