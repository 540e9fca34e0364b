// Package kvstore is the thin key-value store client used by the payment queue.
//
// Every operation is a single atomic Redis command. No multi-key transactions are
// issued, so callers get no cross-key consistency. Failures are returned wrapped in
// pkg.ErrStoreUnavailable and are never retried here; retry policy belongs to callers.
package kvstore

import (
	"context"
	"time"
)

// Store is the set of primitives the payment queue needs from the key-value store.
type Store interface {
	// ListPush appends value at the tail of the list.
	ListPush(ctx context.Context, key, value string) error
	// ListPop removes and returns the head of the list. ok is false when the list is empty.
	ListPop(ctx context.Context, key string) (value string, ok bool, err error)
	ListLength(ctx context.Context, key string) (int64, error)
	// ListRemove removes every occurrence of value and returns how many were removed.
	ListRemove(ctx context.Context, key, value string) (int64, error)

	// SetAdd reports true only when member was not already present.
	SetAdd(ctx context.Context, key, member string) (bool, error)
	SetRemove(ctx context.Context, key, member string) error
	SetIsMember(ctx context.Context, key, member string) (bool, error)
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetSize(ctx context.Context, key string) (int64, error)

	// GetKey returns ok=false when the key does not exist.
	GetKey(ctx context.Context, key string) (value string, ok bool, err error)
	SetKey(ctx context.Context, key, value string) error
	DeleteKey(ctx context.Context, keys ...string) error

	// IncrWithExpiry increments a counter and refreshes its time to live.
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
