package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/database"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/models"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/repositories"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/views"
	"go.uber.org/zap"
)

// PaymentProcessor persists one dequeued envelope.
type PaymentProcessor interface {
	Process(ctx context.Context, env views.PaymentEnvelope) error
}

// LockReleaser gives back the order lock and the slot hold. *paymentqueue.Queue satisfies it.
type LockReleaser interface {
	CompletePayment(ctx context.Context, orderID string) error
	ReleaseSlot(ctx context.Context, slotID string) error
}

// PaymentProcessorConfig holds dependencies for the payment processor.
type PaymentProcessorConfig struct {
	Logger      *zap.Logger
	DB          database.Executor
	PaymentRepo repositories.PaymentRepository
	Locks       LockReleaser
	// ReleaseLockOnFailure also releases on a failed attempt. When false the
	// lock is left for the cleanup sweep.
	ReleaseLockOnFailure bool
}

type PaymentProcessorImpl struct {
	logger               *zap.Logger
	db                   database.Executor
	paymentRepo          repositories.PaymentRepository
	locks                LockReleaser
	releaseLockOnFailure bool
	now                  func() time.Time
}

func NewPaymentProcessor(cfg PaymentProcessorConfig) PaymentProcessor {
	return &PaymentProcessorImpl{
		logger:               cfg.Logger,
		db:                   cfg.DB,
		paymentRepo:          cfg.PaymentRepo,
		locks:                cfg.Locks,
		releaseLockOnFailure: cfg.ReleaseLockOnFailure,
		now:                  time.Now,
	}
}

// Process inserts the record as not completed, then marks it completed.
// Both writes are idempotent so a retried or timed out attempt can run again safely.
func (p *PaymentProcessorImpl) Process(ctx context.Context, env views.PaymentEnvelope) (err error) {
	logger := p.logger.With(zap.String(pkg.OrderId, env.OrderID), zap.String(pkg.SlotId, env.SlotID))
	defer func() {
		if relErr := p.release(ctx, logger, env, err); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()

	logger.Debug("payment_processing", zap.String("state", string(pkg.PaymentStateProcessing)), zap.Int("attempt", env.Attempt))

	payment := models.NewPaymentFromEnvelope(env, p.now().UTC())
	if err = p.paymentRepo.Create(ctx, p.db, payment); err != nil {
		return fmt.Errorf("%w: insert: %w", pkg.ErrProcessingFailure, pkg.HandleSQLError(logger, env.OrderID, err))
	}
	if err = p.paymentRepo.MarkCompleted(ctx, p.db, env.OrderID); err != nil {
		return fmt.Errorf("%w: complete: %w", pkg.ErrProcessingFailure, pkg.HandleSQLError(logger, env.OrderID, err))
	}

	logger.Info("payment_processed",
		zap.String("state", string(pkg.PaymentStateComplete)),
		zap.Int64("amount", env.Amount),
		zap.String("currency", env.Currency))
	return nil
}

// release runs on a context detached from cancellation so a timed out attempt still frees its lock.
// A failed release is returned so the attempt counts as failed.
func (p *PaymentProcessorImpl) release(ctx context.Context, logger *zap.Logger, env views.PaymentEnvelope, procErr error) error {
	if procErr != nil && !p.releaseLockOnFailure {
		logger.Warn("payment_lock_retained_for_cleanup", zap.Error(procErr))
		return nil
	}
	if procErr != nil {
		logger.Warn("payment_failed_lock_released", zap.String("state", string(pkg.PaymentStateFailedRetrying)), zap.Error(procErr))
	}
	releaseCtx := context.WithoutCancel(ctx)
	var errs []error
	if err := p.locks.CompletePayment(releaseCtx, env.OrderID); err != nil {
		logger.Error("payment_lock_release_failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("release order lock: %w", err))
	}
	if err := p.locks.ReleaseSlot(releaseCtx, env.SlotID); err != nil {
		logger.Error("slot_hold_release_failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("release slot hold: %w", err))
	}
	return errors.Join(errs...)
}
