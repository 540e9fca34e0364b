package services

import (
	"context"
	"errors"
	"sync"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg/database"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/models"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/repositories"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/views"
)

// fakeQueue serves a fixed list of envelopes, then reports empty.
// When repeat is set it hands out the first envelope forever.
type fakeQueue struct {
	mu     sync.Mutex
	items  []views.PaymentEnvelope
	repeat bool
	err    error
}

func (f *fakeQueue) DequeuePayment(_ context.Context) (views.PaymentEnvelope, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return views.PaymentEnvelope{}, false, f.err
	}
	if len(f.items) == 0 {
		return views.PaymentEnvelope{}, false, nil
	}
	env := f.items[0]
	if !f.repeat {
		f.items = f.items[1:]
	}
	return env, true, nil
}

type processorFunc func(ctx context.Context, env views.PaymentEnvelope) error

func (f processorFunc) Process(ctx context.Context, env views.PaymentEnvelope) error {
	return f(ctx, env)
}

// fakePaymentRepo keeps records in memory. createErr forces Create to fail.
// inserted records the Completed flag of every row handed to Create.
type fakePaymentRepo struct {
	mu        sync.Mutex
	payments  map[string]models.Payment
	inserted  []bool
	createErr error
}

var _ repositories.PaymentRepository = (*fakePaymentRepo)(nil)

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: map[string]models.Payment{}}
}

func (f *fakePaymentRepo) Create(ctx context.Context, _ database.Executor, payment models.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.inserted = append(f.inserted, payment.Completed)
	if _, ok := f.payments[payment.PaymentID]; !ok {
		f.payments[payment.PaymentID] = payment
	}
	return nil
}

func (f *fakePaymentRepo) MarkCompleted(ctx context.Context, _ database.Executor, paymentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok {
		return repositories.ErrPaymentNotFound
	}
	p.Completed = true
	f.payments[paymentID] = p
	return nil
}

func (f *fakePaymentRepo) FindByID(_ context.Context, _ database.Executor, paymentID string) (models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok {
		return models.Payment{}, errors.New("no rows")
	}
	return p, nil
}

func (f *fakePaymentRepo) completed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, p := range f.payments {
		if p.Completed {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fakePaymentRepo) insertedCompleted() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.inserted...)
}

// failingLocks fails every release with err and counts the calls.
type failingLocks struct {
	err           error
	orderReleases int
	slotReleases  int
}

func (f *failingLocks) CompletePayment(context.Context, string) error {
	f.orderReleases++
	return f.err
}

func (f *failingLocks) ReleaseSlot(context.Context, string) error {
	f.slotReleases++
	return f.err
}
