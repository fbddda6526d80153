// internal/domain/customer_health.go
package domain

import "time"

// Customer is an account whose order history feeds the health engine
type Customer struct {
	ID         int64  `json:"id" db:"id"`
	TenantID   int64  `json:"tenant_id" db:"tenant_id"`
	Name       string `json:"name" db:"name"`
	SalesRepID *int64 `json:"sales_rep_id,omitempty" db:"sales_rep_id"`
	IsActive   bool   `json:"is_active" db:"is_active"`
}

// CustomerHealthSnapshot is the persisted revenue-health verdict of a customer
type CustomerHealthSnapshot struct {
	CustomerID      int64     `json:"customer_id" db:"customer_id"`
	TenantID        int64     `json:"tenant_id" db:"tenant_id"`
	CustomerName    string    `json:"customer_name" db:"customer_name"`
	SalesRepID      *int64    `json:"sales_rep_id,omitempty" db:"sales_rep_id"`
	Tier            string    `json:"tier" db:"tier"`
	Status          string    `json:"status" db:"status"`
	CurrentAverage  float64   `json:"current_average" db:"current_average"`
	Baseline        float64   `json:"baseline" db:"baseline"`
	LowerBand       float64   `json:"lower_band" db:"lower_band"`
	UpperBand       float64   `json:"upper_band" db:"upper_band"`
	ConfidenceScore float64   `json:"confidence_score" db:"confidence_score"`
	Reason          string    `json:"reason" db:"reason"`
	SampleSize      int       `json:"sample_size" db:"sample_size"`
	MonthlyRevenue  float64   `json:"monthly_revenue" db:"monthly_revenue"`
	AssessedAt      time.Time `json:"assessed_at" db:"assessed_at"`
}

// HealthFilter represents filters for customer health queries
type HealthFilter struct {
	TenantID   int64    `json:"tenant_id"`
	SalesRepID *int64   `json:"sales_rep_id,omitempty"`
	Statuses   []string `json:"statuses"`
	Tiers      []string `json:"tiers"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// HealthStatusSummary is the number of customers in one health status
type HealthStatusSummary struct {
	Status string `json:"status" db:"status"`
	Label  string `json:"label" db:"-"`
	Count  int    `json:"count" db:"count"`
}

// HealthSummary aggregates status counts for a tenant dashboard
type HealthSummary struct {
	TenantID int64                 `json:"tenant_id"`
	Statuses []HealthStatusSummary `json:"statuses"`
	Total    int                   `json:"total"`
}

// SnapshotPage is a paginated list of snapshots
type SnapshotPage struct {
	Items      []CustomerHealthSnapshot `json:"items"`
	Total      int                      `json:"total"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	TotalPages int                      `json:"total_pages"`
}
