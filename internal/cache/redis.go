package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	defaultHealthTTL = time.Minute

	// every verdict read passes through the cache
	redisPingTimeout = 3 * time.Second
	redisIOTimeout   = 500 * time.Millisecond
)

// openHealthRedis connects to the Redis instance that backs the health cache
// and verifies it answers before the cache is handed out.
func openHealthRedis(cfg config.CacheConfig) (*redis.Client, error) {
	opts, err := healthRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health cache redis at %s unreachable: %w", opts.Addr, err)
	}
	return client, nil
}

// healthRedisOptions prefers REDIS_URL and falls back to host/port settings.
// Read and write timeouts are capped either way.
func healthRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.RedisURL != "" {
		parsed, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid health cache redis url: %w", err)
		}
		opts = parsed
	} else {
		host, port := cfg.RedisHost, cfg.RedisPort
		if host == "" {
			host = "127.0.0.1"
		}
		if port == "" {
			port = "6379"
		}
		opts = &redis.Options{
			Addr:     net.JoinHostPort(host, port),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
	}

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = redisIOTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = redisIOTimeout
	}
	return opts, nil
}

func healthTTL(cfg config.CacheConfig) time.Duration {
	if cfg.HealthTTLSeconds <= 0 {
		return defaultHealthTTL
	}
	return time.Duration(cfg.HealthTTLSeconds) * time.Second
}

// deleteTenantSummaries drops every cached summary of one tenant in
// SCAN-sized DEL batches.
func (c *redisHealthCache) deleteTenantSummaries(ctx context.Context, tenantID int64) error {
	iter := c.client.Scan(ctx, 0, tenantSummaryPrefix(tenantID)+"*", healthScanBatchSize).Iterator()

	batch := make([]string, 0, healthScanBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("delete summaries of tenant %d: %w", tenantID, err)
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == healthScanBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan summaries of tenant %d: %w", tenantID, err)
	}
	return flush()
}
