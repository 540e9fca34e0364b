// Package paymentqueue implements the store-backed payment queue: the active-order
// set used as a distributed lock, the FIFO list of payment envelopes, delayed
// re-admission of duplicate requests, and the sweep that reclaims abandoned locks.
//
// All coordination goes through the key-value store. There is no in-process shared
// state between request handlers and workers.
package paymentqueue

const slotKeyPrefix = "slot_"

// Keys holds the store keys used by one queue.
type Keys struct {
	Queue             string // list of serialized envelopes
	ActiveSet         string // set of order ids (and slot holds) in flight
	DeadLetter        string // list of envelopes that could not be admitted or decoded
	ActiveSincePrefix string // per-member acquisition timestamp, read by the sweep
	EnvelopePrefix    string // per-order copy of the queued entry, used to purge on reclaim
}

// KeysForPrefix creates Keys with a common prefix.
func KeysForPrefix(prefix string) Keys {
	return Keys{
		Queue:             prefix + ":queue",
		ActiveSet:         prefix + ":active_orders",
		DeadLetter:        prefix + ":dead_letter",
		ActiveSincePrefix: prefix + ":active_since:",
		EnvelopePrefix:    prefix + ":envelope:",
	}
}

// DefaultKeys are the keys shared by booking-api and payment-worker.
var DefaultKeys = KeysForPrefix("payment")

func (k Keys) activeSince(member string) string { return k.ActiveSincePrefix + member }

func (k Keys) envelope(orderID string) string { return k.EnvelopePrefix + orderID }

// SlotKey is the active-set member that holds a parking slot while its payment is in flight.
func SlotKey(slotID string) string { return slotKeyPrefix + slotID }
