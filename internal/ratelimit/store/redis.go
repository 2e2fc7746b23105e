package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/kabhishek18/apiguard/internal/observability"
)

var (
	redisOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apiguard",
			Subsystem: "ratelimit",
			Name:      "redis_operations_total",
			Help:      "Total number of Redis counter operations",
		},
		[]string{"operation", "status"},
	)

	redisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apiguard",
			Subsystem: "ratelimit",
			Name:      "redis_operation_duration_seconds",
			Help:      "Duration of Redis counter operations in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// incrementWithExpiryScript performs INCRBY and attaches the expiry only
// when the increment created the key, in a single atomic step.
// KEYS[1] = key, ARGV[1] = delta, ARGV[2] = expiration in seconds
var incrementWithExpiryScript = redis.NewScript(`
	local current = redis.call('INCRBY', KEYS[1], ARGV[1])
	if current == tonumber(ARGV[1]) then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return current
`)

// RedisStore implements Store using Redis. Counters shared through Redis
// stay consistent across multiple service instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger observability.Logger
	closed bool
	mu     sync.Mutex
}

// RedisConfig holds configuration for the Redis counter store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger observability.Logger
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:      "localhost:6379",
		DB:           0,
		Prefix:       "apiguard:",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisStore creates a Redis counter store and verifies connectivity.
func NewRedisStore(config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", config.Address, err)
	}

	logger.Info("redis counter store connected",
		observability.String("address", config.Address),
		observability.Int("db", config.DB),
	)

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		logger: logger,
	}, nil
}

func (s *RedisStore) prefixKey(key string) string {
	return s.prefix + key
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis get: %w", err)
	}

	val, err := s.client.Get(ctx, s.prefixKey(key)).Result()

	redisOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())

	if err == redis.Nil {
		redisOperationsTotal.WithLabelValues("get", "not_found").Inc()
		return 0, &ErrKeyNotFound{Key: key}
	}
	if err != nil {
		redisOperationsTotal.WithLabelValues("get", "error").Inc()
		return 0, fmt.Errorf("redis get error: %w", err)
	}

	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		redisOperationsTotal.WithLabelValues("get", "error").Inc()
		return 0, fmt.Errorf("parse counter value: %w", err)
	}

	redisOperationsTotal.WithLabelValues("get", "success").Inc()
	return n, nil
}

// IncrementWithExpiry implements Store using a Lua script for atomicity.
func (s *RedisStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis incr: %w", err)
	}

	expirationSecs := int64(expiration.Seconds())
	if expirationSecs < 1 {
		expirationSecs = 1
	}

	result, err := incrementWithExpiryScript.Run(ctx, s.client, []string{s.prefixKey(key)}, delta, expirationSecs).Result()

	redisOperationDuration.WithLabelValues("increment_with_expiry").Observe(time.Since(start).Seconds())

	if err != nil {
		redisOperationsTotal.WithLabelValues("increment_with_expiry", "error").Inc()
		return 0, fmt.Errorf("redis script error: %w", err)
	}

	val, ok := result.(int64)
	if !ok {
		redisOperationsTotal.WithLabelValues("increment_with_expiry", "error").Inc()
		return 0, fmt.Errorf("redis script returned unexpected type: %T", result)
	}

	redisOperationsTotal.WithLabelValues("increment_with_expiry", "success").Inc()
	return val, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis del: %w", err)
	}

	err := s.client.Del(ctx, s.prefixKey(key)).Err()

	redisOperationDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())

	if err != nil {
		redisOperationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("redis del error: %w", err)
	}

	redisOperationsTotal.WithLabelValues("delete", "success").Inc()
	return nil
}

// Close implements Store. Close is idempotent.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// Client returns the underlying Redis client. Used by health checks.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}
