package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		count int
		want  time.Duration
	}{
		{0, 0},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExponentialBackoff(tt.count, time.Second, 30*time.Second), "count=%d", tt.count)
	}
}

func TestFormatConfigErrors(t *testing.T) {
	type cfg struct {
		RedisAddr   string `mapstructure:"REDIS_ADDR" validate:"required"`
		WorkerCount int    `mapstructure:"WORKER_COUNT" validate:"min=1"`
	}
	c := cfg{}
	err := validator.New().Struct(&c)
	require.Error(t, err)

	out := FormatConfigErrors(zap.NewNop(), err, &c)
	assert.Contains(t, out.Error(), "APP_REDIS_ADDR (required)")
	assert.Contains(t, out.Error(), "APP_WORKER_COUNT (min)")
}

func TestRetryStartup_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryStartup(context.Background(), zap.NewNop(), "redis", 10*time.Second, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStartup_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryStartup(ctx, zap.NewNop(), "postgres", time.Minute, func() error {
		return errors.New("connection refused")
	})

	assert.Error(t, err)
}
