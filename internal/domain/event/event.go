// Package event describes notifications emitted by settlement operations.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names a notification.
type Type string

const (
	OrderPlaced          Type = "order.placed"
	OrderStatusChanged   Type = "order.status_changed"
	PaymentStatusChanged Type = "order.payment_status_changed"
	// PaymentRefundRequired reports money captured for a canceled order.
	PaymentRefundRequired Type = "order.payment_refund_required"
	DiscountLimitReached Type = "discount.limit_reached"
)

// Event is a fire-and-forget notification about a committed change.
type Event struct {
	Type       Type
	OrderID    uuid.UUID
	DiscountID uuid.UUID
	ActorID    uuid.UUID
	Previous   string
	Current    string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Notifier delivers events. Implementations must not block the caller for
// long and their failures never undo the change that produced the event.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) {}
