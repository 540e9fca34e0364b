package paymentqueue

import (
	"context"
	"time"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/kvstore"
	"go.uber.org/zap"
)

const DefaultStaleAfter = 30 * time.Minute

// SweepResult reports what one sweep did.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Reclaimed int `json:"reclaimed"`
	Purged    int `json:"purged"` // queue entries removed together with their reclaimed lock
}

// Sweeper force-releases active-order entries older than StaleAfter.
// It does not schedule itself.
type Sweeper struct {
	logger     *zap.Logger
	store      kvstore.Store
	keys       Keys
	queue      *Queue
	active     *ActiveOrders
	staleAfter time.Duration
	now        func() time.Time
}

func NewSweeper(logger *zap.Logger, queue *Queue, staleAfter time.Duration) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Sweeper{
		logger:     logger,
		store:      queue.store,
		keys:       queue.cfg.Keys,
		queue:      queue,
		active:     queue.active,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Sweep reclaims every member whose timestamp is missing or older than StaleAfter.
// A reclaimed order's queued envelope is removed from the list first, so a later
// enqueue of the same order cannot coexist with the abandoned entry.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	members, err := s.store.SetMembers(ctx, s.keys.ActiveSet)
	if err != nil {
		return res, err
	}

	now := s.now()
	for _, member := range members {
		res.Scanned++
		since, ok, err := s.active.since(ctx, member)
		if err != nil {
			return res, err
		}
		if ok && now.Sub(since) <= s.staleAfter {
			continue
		}

		n, err := s.queue.purgeQueued(ctx, member)
		if err != nil {
			return res, err
		}
		res.Purged += int(n)
		if err = s.active.Release(ctx, member); err != nil {
			return res, err
		}
		res.Reclaimed++
		reclaimedTotal.Inc()

		fields := []zap.Field{
			zap.String("member", member),
			zap.String("state", string(pkg.PaymentStateStaleReclaimed)),
			zap.Bool("purged_from_queue", n > 0),
		}
		if ok {
			fields = append(fields, zap.Duration("age", now.Sub(since)))
		}
		s.logger.Warn("active_order_reclaimed", fields...)
	}
	s.logger.Info("cleanup_sweep_done", zap.Int("scanned", res.Scanned), zap.Int("reclaimed", res.Reclaimed), zap.Int("purged", res.Purged))
	return res, nil
}
