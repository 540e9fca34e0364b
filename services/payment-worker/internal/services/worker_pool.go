package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/utils"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/views"
	"github.com/nimeshabuddhika/slot-payment-queue/services/payment-worker/internal/observability"
	"go.uber.org/zap"
)

const (
	DefaultWorkerCount          = 2
	DefaultMaxConcurrentJobs    = 5
	DefaultPollInterval         = time.Second
	DefaultProcessTimeout       = 30 * time.Second
	DefaultMaxConsecutiveErrors = 5
	DefaultBackoffUnit          = time.Second
	DefaultMaxBackoff           = 30 * time.Second
	DefaultRestartCooldown      = 30 * time.Second
)

// Dequeuer pops the next envelope without blocking. *paymentqueue.Queue satisfies it.
type Dequeuer interface {
	DequeuePayment(ctx context.Context) (views.PaymentEnvelope, bool, error)
}

// WorkerPoolConfig tunes the pool. Zero values fall back to the defaults above.
type WorkerPoolConfig struct {
	WorkerCount          int
	MaxConcurrentJobs    int
	PollInterval         time.Duration
	ProcessTimeout       time.Duration
	MaxConsecutiveErrors int
	BackoffUnit          time.Duration
	MaxBackoff           time.Duration
	RestartCooldown      time.Duration
}

func (c WorkerPoolConfig) withDefaults() WorkerPoolConfig {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = DefaultProcessTimeout
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = DefaultBackoffUnit
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.RestartCooldown <= 0 {
		c.RestartCooldown = DefaultRestartCooldown
	}
	return c
}

// LoopState is the lifecycle of one supervised worker loop.
type LoopState string

const (
	LoopRunning     LoopState = "running"
	LoopCoolingDown LoopState = "cooling_down"
	LoopStopped     LoopState = "stopped"
)

// LoopStatus is a snapshot of one loop.
type LoopStatus struct {
	ID                int       `json:"id"`
	State             LoopState `json:"state"`
	ConsecutiveErrors int       `json:"consecutiveErrors"`
	Restarts          int       `json:"restarts"`
	Processed         int64     `json:"processed"`
	LastError         string    `json:"lastError,omitempty"`
}

// PoolStatus is a snapshot of the whole pool.
type PoolStatus struct {
	Started bool         `json:"started"`
	Loops   []LoopStatus `json:"loops"`
}

type loopState struct {
	mu     sync.Mutex
	status LoopStatus
}

func (l *loopState) update(fn func(s *LoopStatus)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.status)
}

func (l *loopState) snapshot() LoopStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// WorkerPool runs WorkerCount polling loops, each owned by a supervisor that
// respawns it after RestartCooldown when it gives up on consecutive failures.
type WorkerPool struct {
	logger    *zap.Logger
	cfg       WorkerPoolConfig
	queue     Dequeuer
	processor PaymentProcessor

	// sem bounds attempts across all loops. A slot is held until the attempt
	// returns, even after its loop stopped waiting on a timeout.
	sem chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	loops   []*loopState
}

func NewWorkerPool(logger *zap.Logger, cfg WorkerPoolConfig, queue Dequeuer, processor PaymentProcessor) *WorkerPool {
	cfg = cfg.withDefaults()
	return &WorkerPool{
		logger:    logger,
		cfg:       cfg,
		queue:     queue,
		processor: processor,
		sem:       make(chan struct{}, cfg.MaxConcurrentJobs),
	}
}

// Start spawns the supervised loops. It returns false when the pool is already running.
func (w *WorkerPool) Start(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		w.logger.Warn("worker_pool_already_started")
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true
	w.loops = make([]*loopState, w.cfg.WorkerCount)
	for i := range w.loops {
		st := &loopState{status: LoopStatus{ID: i, State: LoopRunning}}
		w.loops[i] = st
		w.wg.Add(1)
		go w.supervise(ctx, st)
	}
	w.logger.Info("worker_pool_started",
		zap.Int("workers", w.cfg.WorkerCount),
		zap.Int("max_concurrent_jobs", w.cfg.MaxConcurrentJobs))
	return true
}

// Stop cancels every loop and waits for the supervisors to exit.
// Attempts already abandoned on timeout are not waited for.
func (w *WorkerPool) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	w.started = false
	w.mu.Unlock()
	w.logger.Info("worker_pool_stopped")
}

func (w *WorkerPool) Status() PoolStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	status := PoolStatus{Started: w.started, Loops: make([]LoopStatus, 0, len(w.loops))}
	for _, l := range w.loops {
		status.Loops = append(status.Loops, l.snapshot())
	}
	return status
}

func (w *WorkerPool) supervise(ctx context.Context, st *loopState) {
	defer w.wg.Done()
	id := st.snapshot().ID
	logger := w.logger.With(zap.Int(pkg.WorkerId, id))

	for {
		st.update(func(s *LoopStatus) { s.State = LoopRunning })
		observability.LoopsRunning.Inc()
		err := w.runLoop(ctx, logger, st)
		observability.LoopsRunning.Dec()

		if ctx.Err() != nil {
			st.update(func(s *LoopStatus) { s.State = LoopStopped })
			logger.Info("worker_loop_stopped")
			return
		}

		st.update(func(s *LoopStatus) {
			s.State = LoopCoolingDown
			s.LastError = err.Error()
		})
		logger.Error("worker_loop_terminated", zap.Duration("restart_in", w.cfg.RestartCooldown), zap.Error(err))

		if !sleepCtx(ctx, w.cfg.RestartCooldown) {
			st.update(func(s *LoopStatus) { s.State = LoopStopped })
			return
		}
		st.update(func(s *LoopStatus) {
			s.Restarts++
			s.ConsecutiveErrors = 0
		})
		observability.LoopRestarts.WithLabelValues(strconv.Itoa(id)).Inc()
		logger.Warn("worker_loop_restarting")
	}
}

// runLoop polls until the context ends (nil) or MaxConsecutiveErrors failures in a row (ErrWorkerPoolExhausted).
func (w *WorkerPool) runLoop(ctx context.Context, logger *zap.Logger, st *loopState) error {
	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case w.sem <- struct{}{}:
		}

		env, ok, err := w.queue.DequeuePayment(ctx)
		if err == nil && !ok {
			<-w.sem
			if !sleepCtx(ctx, w.cfg.PollInterval) {
				return nil
			}
			continue
		}

		reason := "dequeue"
		if err != nil {
			<-w.sem
			if errors.Is(err, pkg.ErrMalformedEnvelope) {
				reason = "malformed"
			}
		} else {
			err = w.processWithTimeout(ctx, logger, env)
			reason = "processing"
			if errors.Is(err, pkg.ErrProcessingTimeout) {
				reason = "timeout"
			}
		}

		if err == nil {
			consecutive = 0
			observability.PaymentsProcessed.Inc()
			st.update(func(s *LoopStatus) {
				s.ConsecutiveErrors = 0
				s.Processed++
			})
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		consecutive++
		observability.PaymentsFailed.WithLabelValues(reason).Inc()
		st.update(func(s *LoopStatus) {
			s.ConsecutiveErrors = consecutive
			s.LastError = err.Error()
		})
		if consecutive >= w.cfg.MaxConsecutiveErrors {
			return fmt.Errorf("%w: %d consecutive failures, last: %v", pkg.ErrWorkerPoolExhausted, consecutive, err)
		}

		delay := utils.ExponentialBackoff(consecutive, w.cfg.BackoffUnit, w.cfg.MaxBackoff)
		logger.Warn("worker_loop_backing_off",
			zap.String("reason", reason),
			zap.Int("consecutive_errors", consecutive),
			zap.Duration("delay", delay),
			zap.Error(err))
		if !sleepCtx(ctx, delay) {
			return nil
		}
	}
}

// processWithTimeout races the attempt against ProcessTimeout. The caller must
// hold a semaphore slot; the attempt goroutine gives it back when it returns.
// A result arriving after the timeout is dropped.
func (w *WorkerPool) processWithTimeout(ctx context.Context, logger *zap.Logger, env views.PaymentEnvelope) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	observability.InflightJobs.Inc()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("payment_processor_panicked", zap.String(pkg.OrderId, env.OrderID), zap.Any("panic", r))
				done <- fmt.Errorf("%w: panic: %v", pkg.ErrProcessingFailure, r)
			}
			observability.ProcessLatency.Observe(time.Since(start).Seconds())
			observability.InflightJobs.Dec()
			<-w.sem
		}()
		done <- w.processor.Process(attemptCtx, env)
	}()

	timer := time.NewTimer(w.cfg.ProcessTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		logger.Error("payment_processing_timed_out",
			zap.String(pkg.OrderId, env.OrderID),
			zap.Duration("timeout", w.cfg.ProcessTimeout))
		return fmt.Errorf("%w: order %s after %s", pkg.ErrProcessingTimeout, env.OrderID, w.cfg.ProcessTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
