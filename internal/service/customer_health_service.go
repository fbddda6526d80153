package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/cache"
	"github.com/andresuchdata/customer-health/backend-go/internal/domain"
	"github.com/andresuchdata/customer-health/backend-go/internal/health"
	"github.com/andresuchdata/customer-health/backend-go/internal/repository"
	"github.com/rs/zerolog/log"
)

// ErrCustomerNotFound is returned when a customer id has no customer row.
var ErrCustomerNotFound = errors.New("customer not found")

const (
	defaultSnapshotMaxAge = 24 * time.Hour

	defaultPageSize = 50
	maxPageSize     = 500
)

// Settings are the knobs the service reads from HealthConfig.
type Settings struct {
	HistoryLimit       int
	RevenueMonths      int
	TierSensitiveBands bool
	// SnapshotMaxAge is how long a persisted snapshot is served before a
	// lookup recomputes live. Negative disables persisted reads.
	SnapshotMaxAge time.Duration
}

type CustomerHealthService struct {
	orders   repository.OrderHistoryRepository
	health   repository.CustomerHealthRepository
	cache    cache.HealthCache
	settings Settings
	now      func() time.Time
}

func NewCustomerHealthService(
	orders repository.OrderHistoryRepository,
	healthRepo repository.CustomerHealthRepository,
	cacheImpl cache.HealthCache,
	settings Settings,
) *CustomerHealthService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopHealthCache()
	}
	if settings.HistoryLimit <= 0 {
		settings.HistoryLimit = 24
	}
	if settings.RevenueMonths <= 0 {
		settings.RevenueMonths = 3
	}
	if settings.SnapshotMaxAge == 0 {
		settings.SnapshotMaxAge = defaultSnapshotMaxAge
	}
	return &CustomerHealthService{
		orders:   orders,
		health:   healthRepo,
		cache:    cacheImpl,
		settings: settings,
		now:      time.Now,
	}
}

// AssessSeries runs the plain assessment on an explicit series.
func (s *CustomerHealthService) AssessSeries(totals []float64, opts health.Options) health.RevenueHealth {
	return health.AssessRevenueHealth(totals, opts)
}

// AssessSeriesByTier runs the tier-aware assessment on an explicit series.
func (s *CustomerHealthService) AssessSeriesByTier(totals []float64, monthlyRevenue float64) health.TieredRevenueHealth {
	return health.AssessRevenueHealthByTier(health.TierRequest{
		RecentTotals:       totals,
		MonthlyRevenue:     monthlyRevenue,
		TierSensitiveBands: s.settings.TierSensitiveBands,
	})
}

// GetCustomerHealth serves the cached verdict, then the persisted snapshot
// while it is younger than SnapshotMaxAge, and otherwise recomputes live.
func (s *CustomerHealthService) GetCustomerHealth(ctx context.Context, customerID int64) (*domain.CustomerHealthSnapshot, error) {
	if snapshot, ok, err := s.cache.GetCustomerHealth(ctx, customerID); err == nil && ok {
		return snapshot, nil
	} else if err != nil {
		log.Warn().Err(err).Int64("customer_id", customerID).Msg("customer health: cache get failed")
	}

	if snapshot := s.freshSnapshot(ctx, customerID); snapshot != nil {
		if err := s.cache.SetCustomerHealth(ctx, snapshot); err != nil {
			log.Warn().Err(err).Int64("customer_id", customerID).Msg("customer health: cache set failed")
		}
		return snapshot, nil
	}

	customer, err := s.orders.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}

	return s.RefreshCustomerHealth(ctx, *customer)
}

func (s *CustomerHealthService) freshSnapshot(ctx context.Context, customerID int64) *domain.CustomerHealthSnapshot {
	if s.settings.SnapshotMaxAge < 0 {
		return nil
	}

	snapshot, err := s.health.GetLatestSnapshot(ctx, customerID)
	if err != nil {
		log.Warn().Err(err).Int64("customer_id", customerID).Msg("customer health: persisted snapshot unavailable")
		return nil
	}
	if snapshot == nil || s.now().Sub(snapshot.AssessedAt) > s.settings.SnapshotMaxAge {
		return nil
	}
	return snapshot
}

// RefreshCustomerHealth recomputes the verdict from the order history and
// refreshes the cached copy. It does not persist the snapshot.
func (s *CustomerHealthService) RefreshCustomerHealth(ctx context.Context, customer domain.Customer) (*domain.CustomerHealthSnapshot, error) {
	totals, err := s.orders.GetRecentOrderTotals(ctx, customer.ID, s.settings.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("error loading order history for customer %d: %w", customer.ID, err)
	}

	monthlyRevenue, err := s.orders.GetMonthlyRevenue(ctx, customer.ID, s.settings.RevenueMonths)
	if err != nil {
		return nil, fmt.Errorf("error loading monthly revenue for customer %d: %w", customer.ID, err)
	}

	result := s.AssessSeriesByTier(totals, monthlyRevenue)

	snapshot := &domain.CustomerHealthSnapshot{
		CustomerID:      customer.ID,
		TenantID:        customer.TenantID,
		CustomerName:    customer.Name,
		SalesRepID:      customer.SalesRepID,
		Tier:            string(result.Tier),
		Status:          string(result.Status),
		CurrentAverage:  result.CurrentAverage,
		Baseline:        result.Baseline,
		LowerBand:       result.LowerBand,
		UpperBand:       result.UpperBand,
		ConfidenceScore: result.ConfidenceScore,
		Reason:          result.Reason,
		SampleSize:      len(totals),
		MonthlyRevenue:  monthlyRevenue,
		AssessedAt:      s.now().UTC(),
	}

	if err := s.cache.SetCustomerHealth(ctx, snapshot); err != nil {
		log.Warn().Err(err).Int64("customer_id", customer.ID).Msg("customer health: cache set failed")
	}

	return snapshot, nil
}

func (s *CustomerHealthService) GetSummary(ctx context.Context, filter domain.HealthFilter) (*domain.HealthSummary, error) {
	if summary, ok, err := s.cache.GetSummary(ctx, filter); err == nil && ok {
		return summary, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("customer health: cache get summary failed")
	}

	statuses, err := s.health.GetHealthSummary(ctx, filter)
	if err != nil {
		return nil, err
	}
	if statuses == nil {
		statuses = make([]domain.HealthStatusSummary, 0)
	}

	summary := &domain.HealthSummary{TenantID: filter.TenantID, Statuses: statuses}
	for _, st := range statuses {
		summary.Total += st.Count
	}

	if err := s.cache.SetSummary(ctx, filter, summary); err != nil {
		log.Warn().Err(err).Msg("customer health: cache set summary failed")
	}

	return summary, nil
}

func (s *CustomerHealthService) ListSnapshots(ctx context.Context, filter domain.HealthFilter) (*domain.SnapshotPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	items, total, err := s.health.ListSnapshots(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = make([]domain.CustomerHealthSnapshot, 0)
	}

	totalPages := (total + filter.PageSize - 1) / filter.PageSize

	return &domain.SnapshotPage{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	}, nil
}

// SaveSnapshots persists a batch of recomputed snapshots and drops their
// cached copies so lookups pick up the persisted rows.
func (s *CustomerHealthService) SaveSnapshots(ctx context.Context, snapshots []domain.CustomerHealthSnapshot) error {
	if err := s.health.SaveSnapshots(ctx, snapshots); err != nil {
		return err
	}

	for _, snapshot := range snapshots {
		if err := s.cache.InvalidateCustomer(ctx, snapshot.CustomerID); err != nil {
			log.Warn().Err(err).Int64("customer_id", snapshot.CustomerID).Msg("customer health: cache invalidate failed")
		}
	}
	return nil
}

// ListActiveCustomers returns the customers a tenant recompute walks.
func (s *CustomerHealthService) ListActiveCustomers(ctx context.Context, tenantID int64) ([]domain.Customer, error) {
	return s.orders.ListActiveCustomers(ctx, tenantID)
}

// InvalidateTenant drops the cached summaries of a tenant.
func (s *CustomerHealthService) InvalidateTenant(ctx context.Context, tenantID int64) error {
	return s.cache.InvalidateTenant(ctx, tenantID)
}
