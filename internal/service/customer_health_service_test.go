package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/domain"
	"github.com/andresuchdata/customer-health/backend-go/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	customers map[int64]domain.Customer
	totals    map[int64][]float64
	revenue   map[int64]float64
	err       error

	lastLimit  int
	lastMonths int
}

func (f *fakeOrders) GetRecentOrderTotals(ctx context.Context, customerID int64, limit int) ([]float64, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.totals[customerID], nil
}

func (f *fakeOrders) GetMonthlyRevenue(ctx context.Context, customerID int64, months int) (float64, error) {
	f.lastMonths = months
	return f.revenue[customerID], nil
}

func (f *fakeOrders) GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error) {
	c, ok := f.customers[customerID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeOrders) ListActiveCustomers(ctx context.Context, tenantID int64) ([]domain.Customer, error) {
	var out []domain.Customer
	for _, c := range f.customers {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeHealthRepo struct {
	saved     []domain.CustomerHealthSnapshot
	summary   []domain.HealthStatusSummary
	items     []domain.CustomerHealthSnapshot
	total     int
	err       error
	lastQuery domain.HealthFilter
	calls     int

	latest    map[int64]*domain.CustomerHealthSnapshot
	latestErr error
}

func (f *fakeHealthRepo) SaveSnapshots(ctx context.Context, snapshots []domain.CustomerHealthSnapshot) error {
	f.saved = append(f.saved, snapshots...)
	return f.err
}

func (f *fakeHealthRepo) GetLatestSnapshot(ctx context.Context, customerID int64) (*domain.CustomerHealthSnapshot, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.latest[customerID], nil
}

func (f *fakeHealthRepo) GetHealthSummary(ctx context.Context, filter domain.HealthFilter) ([]domain.HealthStatusSummary, error) {
	f.calls++
	f.lastQuery = filter
	return f.summary, f.err
}

func (f *fakeHealthRepo) ListSnapshots(ctx context.Context, filter domain.HealthFilter) ([]domain.CustomerHealthSnapshot, int, error) {
	f.lastQuery = filter
	return f.items, f.total, f.err
}

type memoryCache struct {
	customers   map[int64]*domain.CustomerHealthSnapshot
	summaries   map[int64]*domain.HealthSummary
	getErr      error
	invalidated []int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		customers: map[int64]*domain.CustomerHealthSnapshot{},
		summaries: map[int64]*domain.HealthSummary{},
	}
}

func (m *memoryCache) GetCustomerHealth(ctx context.Context, customerID int64) (*domain.CustomerHealthSnapshot, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	s, ok := m.customers[customerID]
	return s, ok, nil
}

func (m *memoryCache) SetCustomerHealth(ctx context.Context, snapshot *domain.CustomerHealthSnapshot) error {
	m.customers[snapshot.CustomerID] = snapshot
	return nil
}

func (m *memoryCache) InvalidateCustomer(ctx context.Context, customerID int64) error {
	delete(m.customers, customerID)
	return nil
}

func (m *memoryCache) GetSummary(ctx context.Context, filter domain.HealthFilter) (*domain.HealthSummary, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	s, ok := m.summaries[filter.TenantID]
	return s, ok, nil
}

func (m *memoryCache) SetSummary(ctx context.Context, filter domain.HealthFilter, summary *domain.HealthSummary) error {
	m.summaries[filter.TenantID] = summary
	return nil
}

func (m *memoryCache) InvalidateTenant(ctx context.Context, tenantID int64) error {
	m.invalidated = append(m.invalidated, tenantID)
	delete(m.summaries, tenantID)
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(orders *fakeOrders, repo *fakeHealthRepo, c *memoryCache, settings Settings) *CustomerHealthService {
	svc := NewCustomerHealthService(orders, repo, c, settings)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func sampleOrders() *fakeOrders {
	rep := int64(4)
	return &fakeOrders{
		customers: map[int64]domain.Customer{
			1: {ID: 1, TenantID: 10, Name: "Acme", SalesRepID: &rep, IsActive: true},
		},
		totals:  map[int64][]float64{1: {500, 480, 520, 510, 400, 390, 380}},
		revenue: map[int64]float64{1: 3000},
	}
}

func TestGetCustomerHealth_ComputesAndCaches(t *testing.T) {
	orders := sampleOrders()
	c := newMemoryCache()
	svc := newTestService(orders, &fakeHealthRepo{}, c, Settings{})

	snapshot, err := svc.GetCustomerHealth(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "medium", snapshot.Tier)
	assert.Equal(t, "stable", snapshot.Status)
	assert.InDelta(t, 446.95, snapshot.Baseline, 1e-9)
	assert.InDelta(t, 360.69, snapshot.LowerBand, 1e-9)
	assert.InDelta(t, 533.21, snapshot.UpperBand, 1e-9)
	assert.InDelta(t, 390.0, snapshot.CurrentAverage, 1e-9)
	assert.Equal(t, 7, snapshot.SampleSize)
	assert.Equal(t, 3000.0, snapshot.MonthlyRevenue)
	assert.Equal(t, "Acme", snapshot.CustomerName)
	assert.Equal(t, fixedNow, snapshot.AssessedAt)

	assert.Equal(t, 24, orders.lastLimit)
	assert.Equal(t, 3, orders.lastMonths)
	assert.Same(t, snapshot, c.customers[1])
}

func TestGetCustomerHealth_CacheHitSkipsRepository(t *testing.T) {
	orders := sampleOrders()
	orders.err = errors.New("should not be called")
	c := newMemoryCache()
	cached := &domain.CustomerHealthSnapshot{CustomerID: 1, Status: "declining"}
	c.customers[1] = cached

	svc := newTestService(orders, &fakeHealthRepo{}, c, Settings{})

	snapshot, err := svc.GetCustomerHealth(context.Background(), 1)
	require.NoError(t, err)
	assert.Same(t, cached, snapshot)
}

func TestGetCustomerHealth_CacheErrorFallsThrough(t *testing.T) {
	c := newMemoryCache()
	c.getErr = errors.New("redis down")
	svc := newTestService(sampleOrders(), &fakeHealthRepo{}, c, Settings{})

	snapshot, err := svc.GetCustomerHealth(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "stable", snapshot.Status)
}

func TestGetCustomerHealth_NotFound(t *testing.T) {
	svc := newTestService(sampleOrders(), &fakeHealthRepo{}, newMemoryCache(), Settings{})

	_, err := svc.GetCustomerHealth(context.Background(), 404)
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestRefreshCustomerHealth_WrapsRepositoryError(t *testing.T) {
	orders := sampleOrders()
	orders.err = errors.New("timeout")
	svc := newTestService(orders, &fakeHealthRepo{}, newMemoryCache(), Settings{})

	_, err := svc.RefreshCustomerHealth(context.Background(), orders.customers[1])
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.err)
	assert.Contains(t, err.Error(), "customer 1")
}

func TestRefreshCustomerHealth_InsufficientHistory(t *testing.T) {
	orders := sampleOrders()
	orders.totals[1] = []float64{100, 200}
	orders.revenue[1] = 12000
	svc := newTestService(orders, &fakeHealthRepo{}, newMemoryCache(), Settings{HistoryLimit: 12, RevenueMonths: 6})

	snapshot, err := svc.RefreshCustomerHealth(context.Background(), orders.customers[1])
	require.NoError(t, err)
	assert.Equal(t, "enterprise", snapshot.Tier)
	assert.Equal(t, "insufficient_data", snapshot.Status)
	assert.Equal(t, "Need 8 more orders to establish baseline", snapshot.Reason)
	assert.Equal(t, 12, orders.lastLimit)
	assert.Equal(t, 6, orders.lastMonths)
}

func TestAssessSeriesByTier_HonoursTierSensitiveSetting(t *testing.T) {
	totals := []float64{1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 400}

	compat := newTestService(sampleOrders(), &fakeHealthRepo{}, newMemoryCache(), Settings{})
	sensitive := newTestService(sampleOrders(), &fakeHealthRepo{}, newMemoryCache(), Settings{TierSensitiveBands: true})

	a := compat.AssessSeriesByTier(totals, 12000)
	b := sensitive.AssessSeriesByTier(totals, 12000)

	assert.Equal(t, health.TierEnterprise, a.Tier)
	assert.InDelta(t, 880.0, a.Baseline, 1e-9)
	assert.InDelta(t, 820.0, b.Baseline, 1e-9)
}

func TestAssessSeries_PassesOptions(t *testing.T) {
	svc := newTestService(sampleOrders(), &fakeHealthRepo{}, newMemoryCache(), Settings{})

	result := svc.AssessSeries([]float64{100, 200}, health.Options{MinSampleSize: 2})
	assert.NotEqual(t, health.StatusInsufficientData, result.Status)
}

func TestGetSummary_TotalsAndCaches(t *testing.T) {
	repo := &fakeHealthRepo{summary: []domain.HealthStatusSummary{
		{Status: "declining", Label: "Declining", Count: 3},
		{Status: "stable", Label: "Stable", Count: 7},
	}}
	c := newMemoryCache()
	svc := newTestService(sampleOrders(), repo, c, Settings{})

	filter := domain.HealthFilter{TenantID: 10}
	summary, err := svc.GetSummary(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, int64(10), summary.TenantID)

	again, err := svc.GetSummary(context.Background(), filter)
	require.NoError(t, err)
	assert.Same(t, summary, again)
	assert.Equal(t, 1, repo.calls)
}

func TestGetSummary_EmptyStatusesNotNil(t *testing.T) {
	svc := newTestService(sampleOrders(), &fakeHealthRepo{}, newMemoryCache(), Settings{})

	summary, err := svc.GetSummary(context.Background(), domain.HealthFilter{TenantID: 1})
	require.NoError(t, err)
	assert.NotNil(t, summary.Statuses)
	assert.Zero(t, summary.Total)
}

func TestGetSummary_RepositoryError(t *testing.T) {
	repo := &fakeHealthRepo{err: errors.New("db gone")}
	svc := newTestService(sampleOrders(), repo, newMemoryCache(), Settings{})

	_, err := svc.GetSummary(context.Background(), domain.HealthFilter{TenantID: 1})
	assert.Error(t, err)
}

func TestListSnapshots_NormalizesPagination(t *testing.T) {
	repo := &fakeHealthRepo{total: 101}
	svc := newTestService(sampleOrders(), repo, newMemoryCache(), Settings{})

	page, err := svc.ListSnapshots(context.Background(), domain.HealthFilter{TenantID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, defaultPageSize, page.PageSize)
	assert.Equal(t, 3, page.TotalPages)
	assert.NotNil(t, page.Items)
	assert.Equal(t, defaultPageSize, repo.lastQuery.PageSize)

	page, err = svc.ListSnapshots(context.Background(), domain.HealthFilter{Page: 2, PageSize: 10000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, page.PageSize)
	assert.Equal(t, 1, page.TotalPages)
}

func TestInvalidateTenant(t *testing.T) {
	c := newMemoryCache()
	c.summaries[10] = &domain.HealthSummary{TenantID: 10}
	svc := newTestService(sampleOrders(), &fakeHealthRepo{}, c, Settings{})

	require.NoError(t, svc.InvalidateTenant(context.Background(), 10))
	assert.Equal(t, []int64{10}, c.invalidated)
	assert.Empty(t, c.summaries)
}

func TestGetCustomerHealth_ServesFreshPersistedSnapshot(t *testing.T) {
	orders := sampleOrders()
	c := newMemoryCache()
	persisted := &domain.CustomerHealthSnapshot{CustomerID: 1, Status: "declining", AssessedAt: fixedNow.Add(-2 * time.Hour)}
	repo := &fakeHealthRepo{latest: map[int64]*domain.CustomerHealthSnapshot{1: persisted}}
	svc := newTestService(orders, repo, c, Settings{})

	got, err := svc.GetCustomerHealth(context.Background(), 1)
	require.NoError(t, err)
	assert.Same(t, persisted, got)
	assert.Zero(t, orders.lastLimit, "order history should not be read")
	assert.Same(t, persisted, c.customers[1])
}

func TestGetCustomerHealth_StalePersistedSnapshotRecomputes(t *testing.T) {
	orders := sampleOrders()
	persisted := &domain.CustomerHealthSnapshot{CustomerID: 1, Status: "declining", AssessedAt: fixedNow.Add(-48 * time.Hour)}
	repo := &fakeHealthRepo{latest: map[int64]*domain.CustomerHealthSnapshot{1: persisted}}
	svc := newTestService(orders, repo, newMemoryCache(), Settings{})

	got, err := svc.GetCustomerHealth(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "stable", got.Status)
	assert.Equal(t, fixedNow, got.AssessedAt)
	assert.Equal(t, 24, orders.lastLimit)
}

func TestGetCustomerHealth_PersistedReadsDisabled(t *testing.T) {
	orders := sampleOrders()
	persisted := &domain.CustomerHealthSnapshot{CustomerID: 1, Status: "declining", AssessedAt: fixedNow}
	repo := &fakeHealthRepo{latest: map[int64]*domain.CustomerHealthSnapshot{1: persisted}}
	svc := newTestService(orders, repo, newMemoryCache(), Settings{SnapshotMaxAge: -1})

	got, err := svc.GetCustomerHealth(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "stable", got.Status)
}

func TestGetCustomerHealth_PersistedErrorFallsBackToLive(t *testing.T) {
	orders := sampleOrders()
	repo := &fakeHealthRepo{latestErr: errors.New("connection refused")}
	svc := newTestService(orders, repo, newMemoryCache(), Settings{})

	got, err := svc.GetCustomerHealth(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CustomerID)
	assert.Equal(t, 24, orders.lastLimit)
}

func TestSaveSnapshots_InvalidatesCachedCustomers(t *testing.T) {
	c := newMemoryCache()
	c.customers[1] = &domain.CustomerHealthSnapshot{CustomerID: 1}
	c.customers[2] = &domain.CustomerHealthSnapshot{CustomerID: 2}
	repo := &fakeHealthRepo{}
	svc := newTestService(sampleOrders(), repo, c, Settings{})

	err := svc.SaveSnapshots(context.Background(), []domain.CustomerHealthSnapshot{{CustomerID: 1}})
	require.NoError(t, err)
	assert.Len(t, repo.saved, 1)
	assert.NotContains(t, c.customers, int64(1))
	assert.Contains(t, c.customers, int64(2))
}

func TestSaveSnapshots_ErrorKeepsCache(t *testing.T) {
	c := newMemoryCache()
	c.customers[1] = &domain.CustomerHealthSnapshot{CustomerID: 1}
	repo := &fakeHealthRepo{err: errors.New("deadlock detected")}
	svc := newTestService(sampleOrders(), repo, c, Settings{})

	err := svc.SaveSnapshots(context.Background(), []domain.CustomerHealthSnapshot{{CustomerID: 1}})
	require.Error(t, err)
	assert.Contains(t, c.customers, int64(1))
}
