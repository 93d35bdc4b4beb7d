package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"socialchat-backend/pkg/config"
	"socialchat-backend/pkg/logger"
)

// ErrRedisDegraded is returned by guarded operations while Redis is unreachable
var ErrRedisDegraded = errors.New("redis is in degraded mode")

var (
	redisDegradedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_degraded_mode",
		Help: "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
	})
	redisHealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_health_check_total",
		Help: "Total number of Redis health checks",
	}, []string{"result"})
)

// RedisClient wraps the Redis client with degraded mode tracking.
// Presence, the fan-out relay, lockout and audit all share one client.
type RedisClient struct {
	Client        *redis.Client
	degraded      bool
	degradedMu    sync.RWMutex
	healthCheckMu sync.Mutex
}

// NewRedisDB creates a Redis client from config. It does not ping; the
// first health check decides whether the client starts degraded.
func NewRedisDB(cfg *config.RedisConfig) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		DialTimeout:  cfg.Timeout,
	})
	return &RedisClient{Client: client}
}

// Close closes the Redis client connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// StartHealthCheck pings Redis every interval until ctx is done
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.HealthCheck(ctx); err != nil {
					logger.Log.Warn("Redis health check failed", zap.Error(err))
				}
			}
		}
	}()
}

// IsDegraded returns true if Redis is in degraded mode
func (r *RedisClient) IsDegraded() bool {
	r.degradedMu.RLock()
	defer r.degradedMu.RUnlock()
	return r.degraded
}

func (r *RedisClient) setDegraded(degraded bool) {
	r.degradedMu.Lock()
	defer r.degradedMu.Unlock()

	if r.degraded == degraded {
		return
	}
	r.degraded = degraded
	if degraded {
		redisDegradedGauge.Set(1)
		logger.Log.Warn("Redis entered degraded mode")
	} else {
		redisDegradedGauge.Set(0)
		logger.Log.Info("Redis recovered from degraded mode")
	}
}

// HealthCheck pings Redis and updates degraded mode
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.healthCheckMu.Lock()
	defer r.healthCheckMu.Unlock()

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(healthCtx).Err(); err != nil {
		redisHealthChecks.WithLabelValues("failure").Inc()
		r.setDegraded(true)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	redisHealthChecks.WithLabelValues("success").Inc()
	r.setDegraded(false)
	return nil
}

// Ping reports degraded mode as an error without touching the network
func (r *RedisClient) Ping(ctx context.Context) error {
	if r.IsDegraded() {
		return ErrRedisDegraded
	}
	return r.Client.Ping(ctx).Err()
}
