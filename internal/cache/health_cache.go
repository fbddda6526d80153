package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/config"
	"github.com/andresuchdata/customer-health/backend-go/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	customerHealthKeyPrefix = "customer_health:customer"
	healthSummaryKeyPrefix  = "customer_health:summary"
	healthScanBatchSize     = 100
)

// HealthCache stores per-customer verdicts and per-tenant summaries.
// A miss is reported as (nil, false, nil).
type HealthCache interface {
	GetCustomerHealth(ctx context.Context, customerID int64) (*domain.CustomerHealthSnapshot, bool, error)
	SetCustomerHealth(ctx context.Context, snapshot *domain.CustomerHealthSnapshot) error
	InvalidateCustomer(ctx context.Context, customerID int64) error
	GetSummary(ctx context.Context, filter domain.HealthFilter) (*domain.HealthSummary, bool, error)
	SetSummary(ctx context.Context, filter domain.HealthFilter, summary *domain.HealthSummary) error
	InvalidateTenant(ctx context.Context, tenantID int64) error
}

type redisHealthCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopHealthCache struct{}

func NewHealthCache(cfg config.CacheConfig) (HealthCache, error) {
	if !cfg.Enabled {
		return &noopHealthCache{}, nil
	}

	client, err := openHealthRedis(cfg)
	if err != nil {
		return nil, err
	}
	return newRedisHealthCache(client, healthTTL(cfg)), nil
}

func newRedisHealthCache(client *redis.Client, ttl time.Duration) *redisHealthCache {
	return &redisHealthCache{client: client, ttl: ttl}
}

func NewNoopHealthCache() HealthCache {
	return &noopHealthCache{}
}

func (c *redisHealthCache) GetCustomerHealth(ctx context.Context, customerID int64) (*domain.CustomerHealthSnapshot, bool, error) {
	var snapshot domain.CustomerHealthSnapshot
	found, err := c.getJSON(ctx, buildCustomerHealthKey(customerID), &snapshot)
	if err != nil || !found {
		return nil, false, err
	}
	return &snapshot, true, nil
}

func (c *redisHealthCache) SetCustomerHealth(ctx context.Context, snapshot *domain.CustomerHealthSnapshot) error {
	if snapshot == nil {
		return nil
	}
	return c.setJSON(ctx, buildCustomerHealthKey(snapshot.CustomerID), snapshot)
}

func (c *redisHealthCache) InvalidateCustomer(ctx context.Context, customerID int64) error {
	return c.client.Del(ctx, buildCustomerHealthKey(customerID)).Err()
}

func (c *redisHealthCache) GetSummary(ctx context.Context, filter domain.HealthFilter) (*domain.HealthSummary, bool, error) {
	var summary domain.HealthSummary
	found, err := c.getJSON(ctx, buildHealthSummaryKey(filter), &summary)
	if err != nil || !found {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *redisHealthCache) SetSummary(ctx context.Context, filter domain.HealthFilter, summary *domain.HealthSummary) error {
	if summary == nil {
		return nil
	}
	return c.setJSON(ctx, buildHealthSummaryKey(filter), summary)
}

func (c *redisHealthCache) InvalidateTenant(ctx context.Context, tenantID int64) error {
	return c.deleteTenantSummaries(ctx, tenantID)
}

func (c *redisHealthCache) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode customer health cache: %w", err)
	}
	return true, nil
}

func (c *redisHealthCache) setJSON(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode customer health cache: %w", err)
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (n *noopHealthCache) GetCustomerHealth(ctx context.Context, customerID int64) (*domain.CustomerHealthSnapshot, bool, error) {
	return nil, false, nil
}

func (n *noopHealthCache) SetCustomerHealth(ctx context.Context, snapshot *domain.CustomerHealthSnapshot) error {
	return nil
}

func (n *noopHealthCache) InvalidateCustomer(ctx context.Context, customerID int64) error {
	return nil
}

func (n *noopHealthCache) GetSummary(ctx context.Context, filter domain.HealthFilter) (*domain.HealthSummary, bool, error) {
	return nil, false, nil
}

func (n *noopHealthCache) SetSummary(ctx context.Context, filter domain.HealthFilter, summary *domain.HealthSummary) error {
	return nil
}

func (n *noopHealthCache) InvalidateTenant(ctx context.Context, tenantID int64) error {
	return nil
}

func buildCustomerHealthKey(customerID int64) string {
	return fmt.Sprintf("%s:%d", customerHealthKeyPrefix, customerID)
}

func tenantSummaryPrefix(tenantID int64) string {
	return fmt.Sprintf("%s:%d:", healthSummaryKeyPrefix, tenantID)
}

func buildHealthSummaryKey(filter domain.HealthFilter) string {
	return tenantSummaryPrefix(filter.TenantID) + healthFilterHash(filter)
}

// healthFilterHash ignores TenantID (it is part of the key prefix) and
// pagination, which summaries do not use.
func healthFilterHash(filter domain.HealthFilter) string {
	parts := []string{}

	if filter.SalesRepID != nil {
		parts = append(parts, "sales_rep_id="+strconv.FormatInt(*filter.SalesRepID, 10))
	}
	if len(filter.Statuses) > 0 {
		parts = append(parts, "statuses="+joinStrings(filter.Statuses))
	}
	if len(filter.Tiers) > 0 {
		parts = append(parts, "tiers="+joinStrings(filter.Tiers))
	}

	if len(parts) == 0 {
		return "default"
	}

	sort.Strings(parts)
	raw := strings.Join(parts, "|")
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func joinStrings(values []string) string {
	c := append([]string(nil), values...)
	for i := range c {
		c[i] = strings.TrimSpace(strings.ToLower(c[i]))
	}
	sort.Strings(c)
	return strings.Join(c, ",")
}
