package views

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// PaymentEnvelope is the payment request moving through the queue.
// SlotID and Email are passed through untouched. Order ids share the active set
// with slot holds, so the slot_ prefix is reserved.
type PaymentEnvelope struct {
	OrderID    string    `json:"orderId" validate:"required,max=128,startsnotwith=slot_"`
	Amount     int64     `json:"amount" validate:"gt=0"`
	Currency   string    `json:"currency" validate:"required,len=3,uppercase"`
	SlotID     string    `json:"slotId" validate:"required,max=128"`
	Email      string    `json:"email" validate:"required,max=320"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempt    int       `json:"attempt"`
}

var validate = validator.New()

// Validate checks presence and bounds of the envelope fields.
func (e PaymentEnvelope) Validate() error {
	return validate.Struct(e)
}

// Encode serializes the envelope for the queue list.
func (e PaymentEnvelope) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePaymentEnvelope parses a queued entry.
func DecodePaymentEnvelope(raw string) (PaymentEnvelope, error) {
	var env PaymentEnvelope
	err := json.Unmarshal([]byte(raw), &env)
	return env, err
}
