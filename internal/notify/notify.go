// Package notify delivers order and discount events to the log and to an
// optional outbound webhook.
package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/cameroon-mark/internal/domain/event"
)

// Sender delivers a single event and reports failure.
type Sender interface {
	Send(ctx context.Context, e event.Event) error
}

// Log writes every event to the logger carried by the context.
type Log struct{}

var _ event.Notifier = Log{}

// Notify implements event.Notifier.
func (Log) Notify(ctx context.Context, e event.Event) {
	fields := []zap.Field{
		zap.String("type", string(e.Type)),
		zap.Time("occurred_at", e.OccurredAt),
	}
	if e.OrderID != uuid.Nil {
		fields = append(fields, zap.Stringer("order_id", e.OrderID))
	}
	if e.DiscountID != uuid.Nil {
		fields = append(fields, zap.Stringer("discount_id", e.DiscountID))
	}
	if e.Previous != "" || e.Current != "" {
		fields = append(fields, zap.String("previous", e.Previous), zap.String("current", e.Current))
	}
	for k, v := range e.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}
	zctx.From(ctx).Info("Event", fields...)
}

// Multi fans an event out to several notifiers in order.
type Multi []event.Notifier

// Notify implements event.Notifier.
func (m Multi) Notify(ctx context.Context, e event.Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}
