package discount

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Usage is a code's usage counter after a change.
type Usage struct {
	Count int
	Limit *int
}

// Exhausted reports whether no further use is possible.
func (u Usage) Exhausted() bool {
	return u.Limit != nil && u.Count >= *u.Limit
}

// UsageStore performs the conditional counter updates.
type UsageStore interface {
	// IncrementUsage adds one use unless the limit is already reached, in
	// which case it returns ok=false and no error.
	IncrementUsage(ctx context.Context, id uuid.UUID) (u Usage, ok bool, err error)
	// DecrementUsage gives one use back, never going below zero.
	DecrementUsage(ctx context.Context, id uuid.UUID) error
}

// UsageCounter consumes and releases code uses. Consume belongs in the same
// transaction that commits the order it is consumed for.
type UsageCounter struct {
	store UsageStore
}

// NewUsageCounter creates a UsageCounter backed by store.
func NewUsageCounter(store UsageStore) *UsageCounter {
	return &UsageCounter{store: store}
}

// Consume takes one use of the code. A lost race for the last use yields
// ErrUsageLimitReached, never a storage error.
func (c *UsageCounter) Consume(ctx context.Context, id uuid.UUID) (Usage, error) {
	u, ok, err := c.store.IncrementUsage(ctx, id)
	if err != nil {
		return Usage{}, errors.Wrap(err, "increment usage")
	}
	if !ok {
		return Usage{}, ErrUsageLimitReached
	}
	return u, nil
}

// Release returns a use consumed by a canceled order.
func (c *UsageCounter) Release(ctx context.Context, id uuid.UUID) error {
	if err := c.store.DecrementUsage(ctx, id); err != nil {
		return errors.Wrap(err, "decrement usage")
	}
	return nil
}
