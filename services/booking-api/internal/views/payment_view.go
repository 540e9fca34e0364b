package views

import (
	"strings"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg/views"
)

// PaymentRequest is the body of POST /payments. Amount is in minor units.
type PaymentRequest struct {
	OrderID  string `json:"orderId" binding:"required,max=128,startsnotwith=slot_"`
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency" binding:"required,len=3"`
	SlotID   string `json:"slotId" binding:"required,max=128"`
	Email    string `json:"email" binding:"required,email,max=320"`
}

func (r PaymentRequest) ToEnvelope() views.PaymentEnvelope {
	return views.PaymentEnvelope{
		OrderID:  r.OrderID,
		Amount:   r.Amount,
		Currency: strings.ToUpper(r.Currency),
		SlotID:   r.SlotID,
		Email:    r.Email,
	}
}
