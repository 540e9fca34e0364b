package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryStartup retries op with exponential backoff until it succeeds, ctx ends,
// or maxElapsed passes. Used for dependencies that may come up after the service.
func RetryStartup(ctx context.Context, logger *zap.Logger, dependency string, maxElapsed time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	notify := func(err error, next time.Duration) {
		logger.Warn("startup_dependency_unavailable",
			zap.String("dependency", dependency),
			zap.Duration("retry_in", next),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return err
	}
	logger.Info("startup_dependency_ready", zap.String("dependency", dependency))
	return nil
}
