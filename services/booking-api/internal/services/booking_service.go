package services

import (
	"context"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/paymentqueue"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/views"
	"go.uber.org/zap"
)

// PaymentQueue is what the booking flow needs from *paymentqueue.Queue.
type PaymentQueue interface {
	EnqueuePayment(ctx context.Context, env views.PaymentEnvelope) (paymentqueue.Admission, error)
	CancelPayment(ctx context.Context, orderID string) (bool, error)
	IsOrderActive(ctx context.Context, key string) (bool, error)
	AcquireSlot(ctx context.Context, slotID string) (bool, error)
	ReleaseSlot(ctx context.Context, slotID string) error
}

type BookingService interface {
	SubmitPayment(ctx context.Context, traceID string, env views.PaymentEnvelope) (paymentqueue.Admission, error)
	CancelPayment(ctx context.Context, traceID string, orderID string, slotID string) error
	IsPaymentActive(ctx context.Context, orderID string) (bool, error)
}

type BookingServiceImpl struct {
	logger *zap.Logger
	queue  PaymentQueue
}

func NewBookingService(logger *zap.Logger, queue PaymentQueue) BookingService {
	return &BookingServiceImpl{logger: logger, queue: queue}
}

// SubmitPayment holds the slot and hands the envelope to the queue.
// A slot that already has a payment in flight is refused with ErrSlotConflict.
func (s *BookingServiceImpl) SubmitPayment(ctx context.Context, traceID string, env views.PaymentEnvelope) (paymentqueue.Admission, error) {
	logger := s.logger.With(zap.String(pkg.TraceId, traceID), zap.String(pkg.OrderId, env.OrderID), zap.String(pkg.SlotId, env.SlotID))

	// fast path; AcquireSlot below is the authoritative check
	held, err := s.queue.IsOrderActive(ctx, paymentqueue.SlotKey(env.SlotID))
	if err != nil {
		return "", err
	}
	if held {
		logger.Warn("slot_conflict")
		return "", pkg.NewAppError(pkg.ErrSlotConflictCode, pkg.ErrSlotConflictCode.Message, pkg.ErrSlotConflict)
	}
	acquired, err := s.queue.AcquireSlot(ctx, env.SlotID)
	if err != nil {
		return "", err
	}
	if !acquired {
		logger.Warn("slot_conflict_lost_race")
		return "", pkg.NewAppError(pkg.ErrSlotConflictCode, pkg.ErrSlotConflictCode.Message, pkg.ErrSlotConflict)
	}

	admission, err := s.queue.EnqueuePayment(ctx, env)
	if err != nil || admission == paymentqueue.AdmissionRejected {
		if relErr := s.queue.ReleaseSlot(ctx, env.SlotID); relErr != nil {
			logger.Error("slot_hold_release_failed", zap.Error(relErr))
		}
		if err != nil {
			return "", err
		}
	}
	logger.Info("payment_submitted", zap.String("admission", string(admission)))
	return admission, nil
}

// CancelPayment drops the order's queued entry, releases the order lock and, when slotID
// is set, the slot hold.
func (s *BookingServiceImpl) CancelPayment(ctx context.Context, traceID string, orderID string, slotID string) error {
	purged, err := s.queue.CancelPayment(ctx, orderID)
	if err != nil {
		return err
	}
	if slotID != "" {
		if err := s.queue.ReleaseSlot(ctx, slotID); err != nil {
			return err
		}
	}
	s.logger.Info("payment_cancelled",
		zap.String(pkg.TraceId, traceID),
		zap.String(pkg.OrderId, orderID),
		zap.String(pkg.SlotId, slotID),
		zap.Bool("purged_from_queue", purged))
	return nil
}

func (s *BookingServiceImpl) IsPaymentActive(ctx context.Context, orderID string) (bool, error) {
	return s.queue.IsOrderActive(ctx, orderID)
}
