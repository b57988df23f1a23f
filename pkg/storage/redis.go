package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/demandcast/pkg/reporting"
)

// RedisStore implements Store on Redis so several forecaster instances can
// share reports. Each region has a capped list of JSON reports, newest
// first, that expires TTL after the last write.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	history int
	mu      sync.RWMutex
}

// NewRedisStore creates a Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - ttl: report list expiration (0 uses default of 7 days)
//   - history: reports kept per region (0 uses DefaultHistory)
//
// Returns an error if the connection to Redis fails or if parameters are invalid.
func NewRedisStore(addr, password string, db int, ttl time.Duration, history int) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	if history <= 0 {
		history = DefaultHistory
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client:  client,
		ttl:     ttl,
		history: history,
	}, nil
}

func reportsKey(region string) string {
	return fmt.Sprintf("demandcast:reports:%s", region)
}

// Put pushes a report onto its region's list and trims the list to the
// history length.
func (r *RedisStore) Put(ctx context.Context, report reporting.Report) error {
	if err := ValidateRegion(report.Region); err != nil {
		return err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	key := reportsKey(report.Region)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(r.history-1))
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store report in redis: %w", err)
	}

	return nil
}

// GetLatest returns the newest report for region.
func (r *RedisStore) GetLatest(ctx context.Context, region string) (reporting.Report, bool, error) {
	if region == "" {
		return reporting.Report{}, false, errors.New("region name required")
	}

	data, err := r.client.LIndex(ctx, reportsKey(region), 0).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return reporting.Report{}, false, nil
		}
		return reporting.Report{}, false, fmt.Errorf("failed to get report from redis: %w", err)
	}

	var report reporting.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return reporting.Report{}, false, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return report, true, nil
}

// List returns up to limit reports for region, newest first.
func (r *RedisStore) List(ctx context.Context, region string, limit int) ([]reporting.Report, error) {
	if region == "" {
		return nil, errors.New("region name required")
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	items, err := r.client.LRange(ctx, reportsKey(region), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list reports from redis: %w", err)
	}

	reports := make([]reporting.Report, 0, len(items))
	for i, item := range items {
		var report reporting.Report
		if err := json.Unmarshal([]byte(item), &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report %d: %w", i, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if err != nil && err.Error() == "redis: client is closed" {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
