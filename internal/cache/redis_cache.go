// Package cache provides a thin Redis-backed observability cache.
//
// It is never consulted to decide whether an operation is allowed —
// correctness-critical state (credential budgets, ledger flags) lives in
// process memory or Postgres. This package only holds snapshots and
// response caches that are safe to lose.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service wraps an optional Redis client. All operations are no-ops when
// disabled or when the connection could not be established at startup.
type Service struct {
	client *redis.Client
	ctx    context.Context
}

// Config holds Redis connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// NewService creates a new cache service, pinging Redis once at startup.
// A failed ping degrades to a disabled cache rather than a fatal error —
// the pipeline's correctness never depends on this cache being up.
func NewService(config Config) *Service {
	if !config.Enabled {
		log.Println("📦 observability cache disabled")
		return &Service{client: nil, ctx: context.Background()}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("⚠️  redis connection failed: %v", err)
		log.Println("📦 continuing without observability cache...")
		return &Service{client: nil, ctx: ctx}
	}

	log.Println("🚀 observability cache connected")
	return &Service{client: rdb, ctx: ctx}
}

// IsEnabled reports whether the Redis connection is usable.
func (s *Service) IsEnabled() bool {
	return s.client != nil
}

// SetJSON marshals and stores a value with a TTL. Errors are swallowed
// when the cache is disabled; this is observability, not correctness.
func (s *Service) SetJSON(key string, value interface{}, ttl time.Duration) error {
	if !s.IsEnabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return s.client.Set(s.ctx, key, data, ttl).Err()
}

// GetJSON retrieves and unmarshals a cached value.
func (s *Service) GetJSON(key string, dest interface{}) error {
	if !s.IsEnabled() {
		return fmt.Errorf("cache not enabled")
	}

	raw, err := s.client.Get(s.ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

// SetNX sets a key only if absent and reports whether it was set. With the
// cache disabled it sets nothing and returns false.
func (s *Service) SetNX(key string, value string, ttl time.Duration) (bool, error) {
	if !s.IsEnabled() {
		return false, nil
	}
	return s.client.SetNX(s.ctx, key, value, ttl).Result()
}

// Close releases the underlying connection.
func (s *Service) Close() error {
	if !s.IsEnabled() {
		return nil
	}
	return s.client.Close()
}

// Cache TTL constants for the few keys this package stores.
const (
	TTLPoolSnapshot = 30 * time.Second
	TTLAPIResponse  = 15 * time.Minute
)

// PoolSnapshotKey is the key a credential pool publishes its observability
// snapshot under, keyed by pool name ("main" | "tournament").
func PoolSnapshotKey(pool string) string {
	return fmt.Sprintf("pewstats:credentials:snapshot:%s", pool)
}

// APIResponseKey namespaces cached upstream responses by endpoint + id.
func APIResponseKey(endpoint, id string) string {
	return fmt.Sprintf("pewstats:api:cache:%s:%s", endpoint, id)
}
