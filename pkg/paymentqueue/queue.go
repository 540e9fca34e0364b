package paymentqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/kvstore"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/views"
	"go.uber.org/zap"
)

// Admission is the outcome of an enqueue call.
type Admission string

const (
	// AdmissionEnqueued means the order lock was taken and the envelope pushed.
	AdmissionEnqueued Admission = "enqueued"
	// AdmissionDeferred means the order was already active and a delayed retry was scheduled.
	AdmissionDeferred Admission = "deferred"
	// AdmissionRejected means retries were exhausted and the envelope went to the dead-letter list.
	AdmissionRejected Admission = "rejected"
)

const (
	DefaultRequeueDelay       = 5 * time.Second
	DefaultMaxRequeueAttempts = 1
)

// Config tunes duplicate handling.
type Config struct {
	Keys               Keys
	RequeueDelay       time.Duration
	MaxRequeueAttempts int
}

// DeadLetter is the entry pushed to the dead-letter list.
type DeadLetter struct {
	Envelope *views.PaymentEnvelope `json:"envelope,omitempty"`
	Raw      string                 `json:"raw,omitempty"`
	Reason   string                 `json:"reason"`
	Error    string                 `json:"error,omitempty"`
	FailedAt time.Time              `json:"failedAt"`
}

// QueueStats is the health snapshot of the queue.
type QueueStats struct {
	QueueLength      int64 `json:"queueLength"`
	ActiveOrders     int64 `json:"activeOrders"`
	DeadLetterLength int64 `json:"deadLetterLength"`
}

// Queue is the FIFO of payment envelopes guarded by the active-order set.
type Queue struct {
	logger    *zap.Logger
	store     kvstore.Store
	active    *ActiveOrders
	scheduler Scheduler
	cfg       Config
	now       func() time.Time
}

// NewQueue builds a queue. Zero config values fall back to the defaults, except
// MaxRequeueAttempts where a negative value disables requeueing.
func NewQueue(logger *zap.Logger, store kvstore.Store, scheduler Scheduler, cfg Config) *Queue {
	if cfg.Keys == (Keys{}) {
		cfg.Keys = DefaultKeys
	}
	if cfg.RequeueDelay <= 0 {
		cfg.RequeueDelay = DefaultRequeueDelay
	}
	if cfg.MaxRequeueAttempts == 0 {
		cfg.MaxRequeueAttempts = DefaultMaxRequeueAttempts
	}
	if cfg.MaxRequeueAttempts < 0 {
		cfg.MaxRequeueAttempts = 0
	}
	return &Queue{
		logger:    logger,
		store:     store,
		active:    NewActiveOrders(logger, store, cfg.Keys),
		scheduler: scheduler,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Active exposes the dedup gate shared with the sweep.
func (q *Queue) Active() *ActiveOrders { return q.active }

// EnqueuePayment admits env. A duplicate is not dropped: it is retried after RequeueDelay,
// at most MaxRequeueAttempts times, then dead-lettered.
func (q *Queue) EnqueuePayment(ctx context.Context, env views.PaymentEnvelope) (Admission, error) {
	if err := env.Validate(); err != nil {
		return "", pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid payment envelope", err)
	}
	if env.EnqueuedAt.IsZero() {
		env.EnqueuedAt = q.now().UTC()
	}
	return q.admit(ctx, env)
}

func (q *Queue) admit(ctx context.Context, env views.PaymentEnvelope) (Admission, error) {
	acquired, err := q.active.TryAcquire(ctx, env.OrderID)
	if err != nil {
		return "", err
	}
	if !acquired {
		return q.requeue(ctx, env)
	}

	raw, err := env.Encode()
	if err != nil {
		q.releaseAfterFailedPush(ctx, env.OrderID)
		return "", err
	}
	if err = q.store.SetKey(ctx, q.cfg.Keys.envelope(env.OrderID), raw); err != nil {
		q.releaseAfterFailedPush(ctx, env.OrderID)
		return "", err
	}
	if err = q.store.ListPush(ctx, q.cfg.Keys.Queue, raw); err != nil {
		q.releaseAfterFailedPush(ctx, env.OrderID)
		return "", err
	}

	admissionsTotal.WithLabelValues(string(AdmissionEnqueued)).Inc()
	q.logger.Info("payment_enqueued",
		zap.String(pkg.OrderId, env.OrderID),
		zap.String("state", string(pkg.PaymentStateActive)),
		zap.String(pkg.SlotId, env.SlotID),
		zap.Int("attempt", env.Attempt))
	return AdmissionEnqueued, nil
}

func (q *Queue) requeue(ctx context.Context, env views.PaymentEnvelope) (Admission, error) {
	if env.Attempt >= q.cfg.MaxRequeueAttempts {
		q.logger.Error("payment_admission_rejected",
			zap.String(pkg.OrderId, env.OrderID),
			zap.Int("attempt", env.Attempt),
			zap.Error(pkg.ErrDuplicateOrder))
		admissionsTotal.WithLabelValues(string(AdmissionRejected)).Inc()
		if err := q.deadLetter(ctx, DeadLetter{Envelope: &env, Reason: "duplicate_order", Error: pkg.ErrDuplicateOrder.Error()}); err != nil {
			return "", err
		}
		return AdmissionRejected, nil
	}

	next := env
	next.Attempt++
	q.scheduler.Schedule(q.cfg.RequeueDelay, func(ctx context.Context) {
		admission, err := q.admit(ctx, next)
		if err != nil {
			q.logger.Error("payment_requeue_failed", zap.String(pkg.OrderId, next.OrderID), zap.Error(err))
			q.releaseRejectedSlot(ctx, next)
			return
		}
		q.logger.Info("payment_requeue_done", zap.String(pkg.OrderId, next.OrderID), zap.String("admission", string(admission)))
		if admission == AdmissionRejected {
			q.releaseRejectedSlot(ctx, next)
		}
	})

	admissionsTotal.WithLabelValues(string(AdmissionDeferred)).Inc()
	q.logger.Warn("payment_admission_deferred",
		zap.String(pkg.OrderId, env.OrderID),
		zap.Duration("delay", q.cfg.RequeueDelay),
		zap.Int("attempt", next.Attempt))
	return AdmissionDeferred, nil
}

// releaseAfterFailedPush gives the lock back so a failed push does not strand the order.
func (q *Queue) releaseAfterFailedPush(ctx context.Context, orderID string) {
	if err := q.active.Release(ctx, orderID); err != nil {
		q.logger.Error("payment_lock_release_failed", zap.String(pkg.OrderId, orderID), zap.Error(err))
	}
}

// releaseRejectedSlot drops the slot hold taken for a deferred request that never got admitted.
// The caller already returned, so nobody else would release it. The hold is kept when the
// attempt currently queued for the same order uses the same slot.
func (q *Queue) releaseRejectedSlot(ctx context.Context, env views.PaymentEnvelope) {
	raw, found, err := q.store.GetKey(ctx, q.cfg.Keys.envelope(env.OrderID))
	if err != nil {
		q.logger.Error("slot_hold_release_failed", zap.String(pkg.SlotId, env.SlotID), zap.Error(err))
		return
	}
	if found {
		if live, decErr := views.DecodePaymentEnvelope(raw); decErr == nil && live.SlotID == env.SlotID {
			return
		}
	}
	if err = q.ReleaseSlot(ctx, env.SlotID); err != nil {
		q.logger.Error("slot_hold_release_failed", zap.String(pkg.SlotId, env.SlotID), zap.Error(err))
		return
	}
	q.logger.Info("slot_hold_released_after_rejection", zap.String(pkg.OrderId, env.OrderID), zap.String(pkg.SlotId, env.SlotID))
}

// DequeuePayment pops the head of the queue without blocking. ok is false when empty.
// An undecodable entry is moved to the dead-letter list and reported as ErrMalformedEnvelope.
func (q *Queue) DequeuePayment(ctx context.Context) (views.PaymentEnvelope, bool, error) {
	raw, ok, err := q.store.ListPop(ctx, q.cfg.Keys.Queue)
	if err != nil || !ok {
		return views.PaymentEnvelope{}, false, err
	}
	dequeuedTotal.Inc()

	env, err := views.DecodePaymentEnvelope(raw)
	if err != nil {
		q.logger.Error("payment_envelope_decode_failed", zap.Error(err))
		if dlqErr := q.deadLetter(ctx, DeadLetter{Raw: raw, Reason: "decode_error", Error: err.Error()}); dlqErr != nil {
			q.logger.Error("dead_letter_push_failed", zap.Error(dlqErr))
		}
		return views.PaymentEnvelope{}, false, fmt.Errorf("%w: %v", pkg.ErrMalformedEnvelope, err)
	}
	return env, true, nil
}

// CompletePayment releases the order lock. Safe to call more than once.
func (q *Queue) CompletePayment(ctx context.Context, orderID string) error {
	return q.active.Release(ctx, orderID)
}

// CancelPayment removes the order's queued entry, if still waiting, and releases its lock.
// A cancelled order can be enqueued again without leaving a second entry behind.
func (q *Queue) CancelPayment(ctx context.Context, orderID string) (bool, error) {
	n, err := q.purgeQueued(ctx, orderID)
	if err != nil {
		return false, err
	}
	if err = q.active.Release(ctx, orderID); err != nil {
		return false, err
	}
	return n > 0, nil
}

// purgeQueued LREMs the stored copy of the order's envelope from the queue list.
func (q *Queue) purgeQueued(ctx context.Context, orderID string) (int64, error) {
	raw, found, err := q.store.GetKey(ctx, q.cfg.Keys.envelope(orderID))
	if err != nil || !found {
		return 0, err
	}
	return q.store.ListRemove(ctx, q.cfg.Keys.Queue, raw)
}

// IsOrderActive reports whether key is currently held. Advisory only.
func (q *Queue) IsOrderActive(ctx context.Context, key string) (bool, error) {
	return q.active.IsActive(ctx, key)
}

// AcquireSlot takes the request-layer hold on a parking slot.
func (q *Queue) AcquireSlot(ctx context.Context, slotID string) (bool, error) {
	return q.active.TryAcquire(ctx, SlotKey(slotID))
}

// ReleaseSlot drops the request-layer hold on a parking slot.
func (q *Queue) ReleaseSlot(ctx context.Context, slotID string) error {
	return q.active.Release(ctx, SlotKey(slotID))
}

// Stats returns queue length, active count and dead-letter length.
func (q *Queue) Stats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats
	var err error
	if stats.QueueLength, err = q.store.ListLength(ctx, q.cfg.Keys.Queue); err != nil {
		return stats, err
	}
	if stats.ActiveOrders, err = q.active.Count(ctx); err != nil {
		return stats, err
	}
	if stats.DeadLetterLength, err = q.store.ListLength(ctx, q.cfg.Keys.DeadLetter); err != nil {
		return stats, err
	}
	return stats, nil
}

func (q *Queue) deadLetter(ctx context.Context, entry DeadLetter) error {
	entry.FailedAt = q.now().UTC()
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err = q.store.ListPush(ctx, q.cfg.Keys.DeadLetter, string(b)); err != nil {
		return err
	}
	deadLetteredTotal.WithLabelValues(entry.Reason).Inc()
	return nil
}
