package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andresuchdata/customer-health/backend-go/internal/config"
	"github.com/andresuchdata/customer-health/backend-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCustomerHealthKey(t *testing.T) {
	assert.Equal(t, "customer_health:customer:42", buildCustomerHealthKey(42))
}

func TestBuildHealthSummaryKey_DefaultFilter(t *testing.T) {
	key := buildHealthSummaryKey(domain.HealthFilter{TenantID: 3})
	assert.Equal(t, "customer_health:summary:3:default", key)
}

func TestBuildHealthSummaryKey_StableAcrossOrderAndCase(t *testing.T) {
	rep := int64(8)
	a := buildHealthSummaryKey(domain.HealthFilter{
		TenantID:   1,
		SalesRepID: &rep,
		Statuses:   []string{"declining", "Stable"},
		Tiers:      []string{"enterprise"},
	})
	b := buildHealthSummaryKey(domain.HealthFilter{
		TenantID:   1,
		SalesRepID: &rep,
		Statuses:   []string{" stable", "declining"},
		Tiers:      []string{"ENTERPRISE"},
		Page:       4,
	})

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, tenantSummaryPrefix(1)))
	assert.Len(t, strings.TrimPrefix(a, tenantSummaryPrefix(1)), 40)
}

func TestBuildHealthSummaryKey_DistinguishesFilters(t *testing.T) {
	base := domain.HealthFilter{TenantID: 1, Statuses: []string{"declining"}}
	other := domain.HealthFilter{TenantID: 1, Statuses: []string{"growing"}}
	otherTenant := domain.HealthFilter{TenantID: 2, Statuses: []string{"declining"}}

	assert.NotEqual(t, buildHealthSummaryKey(base), buildHealthSummaryKey(other))
	assert.NotEqual(t, buildHealthSummaryKey(base), buildHealthSummaryKey(otherTenant))
}

func TestTenantSummaryPrefix_DoesNotOverlap(t *testing.T) {
	// tenant 1 must not match the keys of tenant 12
	key12 := buildHealthSummaryKey(domain.HealthFilter{TenantID: 12})
	assert.False(t, strings.HasPrefix(key12, tenantSummaryPrefix(1)))
}

func TestNewHealthCache_DisabledReturnsNoop(t *testing.T) {
	c, err := NewHealthCache(config.CacheConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, &noopHealthCache{}, c)

	ctx := context.Background()
	snapshot, found, err := c.GetCustomerHealth(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, snapshot)

	summary, found, err := c.GetSummary(ctx, domain.HealthFilter{TenantID: 1})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, summary)

	assert.NoError(t, c.SetCustomerHealth(ctx, &domain.CustomerHealthSnapshot{CustomerID: 1}))
	assert.NoError(t, c.SetSummary(ctx, domain.HealthFilter{}, &domain.HealthSummary{}))
	assert.NoError(t, c.InvalidateCustomer(ctx, 1))
	assert.NoError(t, c.InvalidateTenant(ctx, 1))
}

func TestHealthRedisOptions(t *testing.T) {
	opts, err := healthRedisOptions(config.CacheConfig{RedisPassword: "secret", RedisDB: 2})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, redisIOTimeout, opts.ReadTimeout)
	assert.Equal(t, redisIOTimeout, opts.WriteTimeout)

	opts, err = healthRedisOptions(config.CacheConfig{RedisURL: "redis://:pw@cache.internal:6380/1?read_timeout=2s"})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 1, opts.DB)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)

	_, err = healthRedisOptions(config.CacheConfig{RedisURL: "http://bad"})
	assert.Error(t, err)
}

func TestHealthTTL(t *testing.T) {
	assert.Equal(t, defaultHealthTTL, healthTTL(config.CacheConfig{}))
	assert.Equal(t, 30*time.Second, healthTTL(config.CacheConfig{HealthTTLSeconds: 30}))
}

func newTestCache(t *testing.T) (*redisHealthCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := NewHealthCache(config.CacheConfig{
		Enabled:          true,
		RedisURL:         "redis://" + mr.Addr(),
		HealthTTLSeconds: 120,
	})
	require.NoError(t, err)
	require.IsType(t, &redisHealthCache{}, c)

	rc := c.(*redisHealthCache)
	t.Cleanup(func() { _ = rc.client.Close() })
	return rc, mr
}

func TestRedisHealthCache_CustomerRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	snapshot := &domain.CustomerHealthSnapshot{
		CustomerID: 42,
		TenantID:   1,
		Status:     "declining",
		Baseline:   812.5,
		AssessedAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.SetCustomerHealth(ctx, snapshot))
	assert.Equal(t, 120*time.Second, mr.TTL(buildCustomerHealthKey(42)))

	got, found, err := c.GetCustomerHealth(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, snapshot.Status, got.Status)
	assert.Equal(t, snapshot.Baseline, got.Baseline)
	assert.True(t, snapshot.AssessedAt.Equal(got.AssessedAt))

	require.NoError(t, c.InvalidateCustomer(ctx, 42))
	got, found, err = c.GetCustomerHealth(ctx, 42)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestRedisHealthCache_MissAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	got, found, err := c.GetCustomerHealth(ctx, 7)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)

	filter := domain.HealthFilter{TenantID: 1}
	require.NoError(t, c.SetSummary(ctx, filter, &domain.HealthSummary{Total: 3}))
	mr.FastForward(121 * time.Second)

	summary, found, err := c.GetSummary(ctx, filter)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, summary)
}

func TestRedisHealthCache_CorruptPayload(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set(buildCustomerHealthKey(5), "{not json"))

	_, found, err := c.GetCustomerHealth(context.Background(), 5)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestRedisHealthCache_InvalidateTenantLeavesOtherTenants(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	declining := domain.HealthFilter{TenantID: 1, Statuses: []string{"declining"}}
	require.NoError(t, c.SetSummary(ctx, domain.HealthFilter{TenantID: 1}, &domain.HealthSummary{Total: 10}))
	require.NoError(t, c.SetSummary(ctx, declining, &domain.HealthSummary{Total: 4}))
	require.NoError(t, c.SetSummary(ctx, domain.HealthFilter{TenantID: 10}, &domain.HealthSummary{Total: 8}))
	require.NoError(t, c.SetSummary(ctx, domain.HealthFilter{TenantID: 2}, &domain.HealthSummary{Total: 6}))
	require.NoError(t, c.SetCustomerHealth(ctx, &domain.CustomerHealthSnapshot{CustomerID: 1, TenantID: 1}))

	require.NoError(t, c.InvalidateTenant(ctx, 1))

	_, found, err := c.GetSummary(ctx, domain.HealthFilter{TenantID: 1})
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = c.GetSummary(ctx, declining)
	require.NoError(t, err)
	assert.False(t, found)

	other, found, err := c.GetSummary(ctx, domain.HealthFilter{TenantID: 10})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 8, other.Total)

	_, found, err = c.GetSummary(ctx, domain.HealthFilter{TenantID: 2})
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, mr.Exists(buildCustomerHealthKey(1)))
}

func TestRedisHealthCache_InvalidateTenantAcrossScanBatches(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < healthScanBatchSize*2+5; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("%s%d", tenantSummaryPrefix(3), i), "{}"))
	}
	require.NoError(t, mr.Set(tenantSummaryPrefix(4)+"default", "{}"))

	require.NoError(t, c.InvalidateTenant(ctx, 3))
	assert.Equal(t, []string{tenantSummaryPrefix(4) + "default"}, mr.Keys())
}

func TestNewHealthCache_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewHealthCache(config.CacheConfig{Enabled: true, RedisURL: "redis://" + addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
