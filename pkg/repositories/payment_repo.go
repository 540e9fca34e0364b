package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg/database"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/models"
)

var ErrPaymentNotFound = errors.New("payment not found")

type PaymentRepository interface {
	// Create inserts the record. An existing row for the same payment id is left untouched.
	Create(ctx context.Context, db database.Executor, payment models.Payment) error
	// MarkCompleted sets completed=true. Returns ErrPaymentNotFound when no row matches.
	MarkCompleted(ctx context.Context, db database.Executor, paymentID string) error
	FindByID(ctx context.Context, db database.Executor, paymentID string) (models.Payment, error)
}

type PaymentRepositoryImpl struct {
	now func() time.Time
}

func NewPaymentRepository() PaymentRepository {
	return &PaymentRepositoryImpl{now: time.Now}
}

func (p PaymentRepositoryImpl) Create(ctx context.Context, db database.Executor, payment models.Payment) error {
	_, err := db.Exec(ctx, `
						INSERT INTO payments (payment_id, user_email, amount, currency, slot_id, completed, created_at, updated_at)
						VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (payment_id) DO NOTHING`,
		payment.PaymentID,
		payment.UserEmail,
		payment.Amount,
		payment.Currency,
		payment.SlotID,
		payment.Completed,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	return err
}

func (p PaymentRepositoryImpl) MarkCompleted(ctx context.Context, db database.Executor, paymentID string) error {
	tag, err := db.Exec(ctx, `UPDATE payments SET completed = TRUE, updated_at = $1 WHERE payment_id = $2`,
		p.now().UTC(), paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (p PaymentRepositoryImpl) FindByID(ctx context.Context, db database.Executor, paymentID string) (models.Payment, error) {
	var payment models.Payment
	err := db.QueryRow(ctx, `
						SELECT payment_id, user_email, amount, currency, slot_id, completed, created_at, updated_at
						FROM payments WHERE payment_id = $1`, paymentID).Scan(
		&payment.PaymentID,
		&payment.UserEmail,
		&payment.Amount,
		&payment.Currency,
		&payment.SlotID,
		&payment.Completed,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	return payment, err
}
