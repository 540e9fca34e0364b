package pkg

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Counter is the store primitive the limiter needs. kvstore.Store satisfies it.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// DistributedLimiter combines a local rate.Limiter with a shared counter for global enforcement.
type DistributedLimiter struct {
	localLimiter *rate.Limiter
	counter      Counter
	key          string        // e.g. "payment:rate:enqueue"
	window       time.Duration // counter expiry
	globalLimit  int64         // requests allowed per window across replicas
	logger       *zap.Logger
}

// NewDistributedLimiter creates a limiter; localRate <= 0 disables limiting.
func NewDistributedLimiter(counter Counter, key string, localRate, burst int, globalLimit int64, window time.Duration, logger *zap.Logger) *DistributedLimiter {
	var local *rate.Limiter
	if localRate > 0 {
		local = rate.NewLimiter(rate.Limit(localRate), burst)
	}
	return &DistributedLimiter{
		localLimiter: local,
		counter:      counter,
		key:          key,
		window:       window,
		globalLimit:  globalLimit,
		logger:       logger,
	}
}

// Allow checks the local bucket first and then the shared window counter.
// A store failure falls back to the local decision.
func (d *DistributedLimiter) Allow(ctx context.Context) bool {
	if d.localLimiter == nil {
		return true
	}
	if !d.localLimiter.Allow() {
		return false
	}
	if d.counter == nil || d.globalLimit <= 0 {
		return true
	}

	count, err := d.counter.IncrWithExpiry(ctx, d.key, d.window)
	if err != nil {
		d.logger.Error("rate_limit_store_error_falling_back_to_local", zap.Error(err))
		return true
	}
	if count > d.globalLimit {
		d.logger.Warn("global_rate_limit_exceeded", zap.Int64("count", count), zap.String("key", d.key))
		return false
	}
	return true
}
