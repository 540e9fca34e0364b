package paymentqueue

import (
	"context"
	"strconv"
	"time"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg/kvstore"
	"go.uber.org/zap"
)

// ActiveOrders is the dedup gate. Set membership is the lock.
type ActiveOrders struct {
	logger *zap.Logger
	store  kvstore.Store
	keys   Keys
	now    func() time.Time
}

func NewActiveOrders(logger *zap.Logger, store kvstore.Store, keys Keys) *ActiveOrders {
	return &ActiveOrders{logger: logger, store: store, keys: keys, now: time.Now}
}

// TryAcquire adds id to the set. Only the caller that actually added the member wins.
func (a *ActiveOrders) TryAcquire(ctx context.Context, id string) (bool, error) {
	added, err := a.store.SetAdd(ctx, a.keys.ActiveSet, id)
	if err != nil || !added {
		return false, err
	}
	stamp := strconv.FormatInt(a.now().UnixNano(), 10)
	if err = a.store.SetKey(ctx, a.keys.activeSince(id), stamp); err != nil {
		// Without a timestamp the sweep would treat the lock as stale, so give it back.
		if rmErr := a.store.SetRemove(ctx, a.keys.ActiveSet, id); rmErr != nil {
			a.logger.Error("active_order_rollback_failed", zap.String("member", id), zap.Error(rmErr))
		}
		return false, err
	}
	return true, nil
}

// Release removes id from the set and drops its companion keys. Releasing a non-member is a no-op.
func (a *ActiveOrders) Release(ctx context.Context, id string) error {
	if err := a.store.SetRemove(ctx, a.keys.ActiveSet, id); err != nil {
		return err
	}
	return a.store.DeleteKey(ctx, a.keys.activeSince(id), a.keys.envelope(id))
}

// IsActive is advisory. Only TryAcquire's result may guard a mutation.
func (a *ActiveOrders) IsActive(ctx context.Context, id string) (bool, error) {
	return a.store.SetIsMember(ctx, a.keys.ActiveSet, id)
}

// Count returns the number of members in flight, slot holds included.
func (a *ActiveOrders) Count(ctx context.Context) (int64, error) {
	return a.store.SetSize(ctx, a.keys.ActiveSet)
}

// since returns when id was acquired. ok is false when no valid timestamp exists.
func (a *ActiveOrders) since(ctx context.Context, id string) (time.Time, bool, error) {
	raw, ok, err := a.store.GetKey(ctx, a.keys.activeSince(id))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		a.logger.Warn("active_since_unparseable", zap.String("member", id), zap.String("value", raw))
		return time.Time{}, false, nil
	}
	return time.Unix(0, nanos), true, nil
}
