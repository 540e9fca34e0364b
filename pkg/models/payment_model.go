package models

import (
	"time"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg/views"
)

// Payment maps to table `payments`. PaymentID is the gateway's order id.
type Payment struct {
	PaymentID string
	UserEmail string
	Amount    int64
	Currency  string
	SlotID    string
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPaymentFromEnvelope builds the initial, not yet completed record for env.
func NewPaymentFromEnvelope(env views.PaymentEnvelope, now time.Time) Payment {
	return Payment{
		PaymentID: env.OrderID,
		UserEmail: env.Email,
		Amount:    env.Amount,
		Currency:  env.Currency,
		SlotID:    env.SlotID,
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
