package order

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/xenking/cameroon-mark/internal/domain/order"

type telemetry struct {
	tracer      trace.Tracer
	placed      metric.Int64Counter
	redemptions metric.Int64Counter
	transitions metric.Int64Counter
	conflicts   metric.Int64Counter
}

func newTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) *telemetry {
	meter := mp.Meter(instrumentationName)
	return &telemetry{
		tracer: tp.Tracer(instrumentationName),
		placed: counter(meter, "market.orders.placed",
			"Orders committed at checkout."),
		redemptions: counter(meter, "market.discount.redemptions",
			"Discount code uses consumed by committed orders."),
		transitions: counter(meter, "market.orders.transitions",
			"Committed order status changes."),
		conflicts: counter(meter, "market.orders.conflicts",
			"Operations rejected by a lost race, a stale version or an illegal transition."),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return metricnoop.Int64Counter{}
	}
	return c
}

func (t *telemetry) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "order."+op)
}

func (t *telemetry) conflict(ctx context.Context, op string) {
	t.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (t *telemetry) transition(ctx context.Context, axis, to string) {
	t.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("axis", axis),
		attribute.String("to", to),
	))
}

// end closes span, recording err when set.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
