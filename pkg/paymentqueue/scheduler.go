package paymentqueue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs a task later without blocking the caller.
type Scheduler interface {
	Schedule(delay time.Duration, task func(ctx context.Context))
}

// TimerScheduler runs each task on its own goroutine after a timer fires.
// Close drops tasks that have not fired yet and waits for running ones.
type TimerScheduler struct {
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewTimerScheduler(logger *zap.Logger) *TimerScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{logger: logger, ctx: ctx, cancel: cancel}
}

func (s *TimerScheduler) Schedule(delay time.Duration, task func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("scheduler_closed_task_dropped", zap.Duration("delay", delay))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-s.ctx.Done():
			s.logger.Warn("scheduled_task_cancelled", zap.Duration("delay", delay))
			return
		case <-timer.C:
		}
		task(s.ctx)
	}()
}

// Close cancels pending tasks and waits for in-flight ones to return.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
