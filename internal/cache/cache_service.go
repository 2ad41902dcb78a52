// Package cache provides Redis-based caching with graceful degradation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chartpilot/config"
	"chartpilot/internal/logging"
)

// ErrUnavailable is returned while the circuit breaker holds Redis open.
// Callers fall back to the source of truth.
var ErrUnavailable = errors.New("redis unavailable")

// CacheService provides Redis-based caching with graceful degradation.
// When Redis is unavailable, operations return errors that callers should
// handle by falling back to the source of truth.
type CacheService struct {
	client       *redis.Client
	config       config.RedisConfig
	logger       *logging.Logger
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	// Circuit breaker settings
	maxFailures     int
	checkInterval   time.Duration
	recoveryBackoff time.Duration
}

// Key prefixes for different cache types
const (
	PrefixCalendarEvents = "calendar:%s:%s"      // currency set, window key
	PrefixDailyAnalyses  = "user:%s:analyses:%s" // userID, date
	PrefixRateWindow     = "user:%s:rate:%s"     // userID, minute bucket
)

// Default TTLs
const (
	DefaultCalendarTTL = 15 * time.Minute
	DefaultCounterTTL  = 48 * time.Hour // Daily counters, generous for timezone edge cases
)

// NewCacheService creates a new CacheService with the provided configuration.
// It attempts to connect to Redis and verifies connectivity.
func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cs := &CacheService{
		client:          client,
		config:          cfg,
		logger:          logging.WithComponent("cache"),
		maxFailures:     3,
		checkInterval:   30 * time.Second,
		recoveryBackoff: 5 * time.Second,
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		cs.logger.WithError(err).Warn("Initial Redis connection failed, starting degraded")
		return cs, nil
	}

	cs.healthy = true
	cs.lastCheck = time.Now()
	cs.logger.WithField("address", cfg.Address).Info("Redis connected")

	return cs, nil
}

// IsHealthy returns whether Redis is currently available.
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

// recordFailure tracks a Redis operation failure for circuit breaker.
func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			cs.logger.WithField("failures", cs.failureCount).Warn("Circuit breaker open, Redis marked unhealthy")
		}
		cs.healthy = false
	}
}

// recordSuccess resets the failure counter on successful operation.
func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy {
		cs.logger.Info("Circuit breaker closed, Redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
	cs.lastCheck = time.Now()
}

// checkHealth performs a background health check if enough time has passed.
func (cs *CacheService) checkHealth(ctx context.Context) {
	cs.mu.RLock()
	timeSinceCheck := time.Since(cs.lastCheck)
	shouldCheck := !cs.healthy && timeSinceCheck >= cs.checkInterval
	cs.mu.RUnlock()

	if !shouldCheck {
		return
	}

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := cs.client.Ping(pingCtx).Err(); err == nil {
			cs.recordSuccess()
		}
	}()
}

// Get retrieves a value from cache.
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	cs.checkHealth(ctx)

	if !cs.IsHealthy() {
		return "", ErrUnavailable
	}

	result, err := cs.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", err // Cache miss, not a failure
		}
		cs.recordFailure()
		return "", fmt.Errorf("redis get failed: %w", err)
	}

	cs.recordSuccess()
	return result, nil
}

// Set stores a value in cache with TTL.
func (cs *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	cs.checkHealth(ctx)

	if !cs.IsHealthy() {
		return ErrUnavailable
	}

	var data string
	switch v := value.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
		data = string(jsonData)
	}

	if err := cs.client.Set(ctx, key, data, ttl).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// Delete removes a key from cache.
func (cs *CacheService) Delete(ctx context.Context, key string) error {
	cs.checkHealth(ctx)

	if !cs.IsHealthy() {
		return ErrUnavailable
	}

	if err := cs.client.Del(ctx, key).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis delete failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// IncrementCounter atomically increments a counter key, setting the TTL on
// first increment. Used for daily analysis quotas and per-minute rate
// windows. Returns the new count.
func (cs *CacheService) IncrementCounter(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	cs.checkHealth(ctx)

	if !cs.IsHealthy() {
		return 0, ErrUnavailable
	}

	val, err := cs.client.Incr(ctx, key).Result()
	if err != nil {
		cs.recordFailure()
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}

	if val == 1 {
		cs.client.Expire(ctx, key, ttl)
	}

	cs.recordSuccess()
	return val, nil
}

// GetCounter returns the current value of a counter without incrementing.
func (cs *CacheService) GetCounter(ctx context.Context, key string) (int64, error) {
	cs.checkHealth(ctx)

	if !cs.IsHealthy() {
		return 0, ErrUnavailable
	}

	val, err := cs.client.Get(ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		cs.recordFailure()
		return 0, fmt.Errorf("redis get counter failed: %w", err)
	}

	cs.recordSuccess()
	return val, nil
}

// GetJSON retrieves and unmarshals a JSON value from cache.
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := cs.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return nil
}

// SetJSON marshals and stores a JSON value in cache.
func (cs *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return cs.Set(ctx, key, value, ttl)
}

// Close closes the Redis connection.
func (cs *CacheService) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}

// Ping checks Redis connectivity.
func (cs *CacheService) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.recordFailure()
		return err
	}
	cs.recordSuccess()
	return nil
}

// Stats returns cache statistics for monitoring.
type Stats struct {
	Healthy      bool   `json:"healthy"`
	FailureCount int    `json:"failure_count"`
	Address      string `json:"address"`
	PoolSize     int    `json:"pool_size"`
}

// GetStats returns current cache statistics.
func (cs *CacheService) GetStats() Stats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return Stats{
		Healthy:      cs.healthy,
		FailureCount: cs.failureCount,
		Address:      cs.config.Address,
		PoolSize:     cs.config.PoolSize,
	}
}

// CalendarKey generates a cache key for a filtered calendar window.
func CalendarKey(currencies, windowKey string) string {
	return fmt.Sprintf(PrefixCalendarEvents, currencies, windowKey)
}

// DailyAnalysesKey generates the quota counter key for a user and date.
func DailyAnalysesKey(userID, date string) string {
	return fmt.Sprintf(PrefixDailyAnalyses, userID, date)
}

// RateWindowKey generates the per-minute rate counter key for a user.
func RateWindowKey(userID, minuteBucket string) string {
	return fmt.Sprintf(PrefixRateWindow, userID, minuteBucket)
}
