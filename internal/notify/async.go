package notify

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cameroon-mark/internal/domain/event"
)

// Async hands events to a pool of workers so slow receivers never delay
// the request that produced the event. Events are dropped when the queue is
// full.
type Async struct {
	sender  Sender
	queue   chan queued
	workers int
	timeout time.Duration
}

type queued struct {
	event event.Event
	lg    *zap.Logger
}

var _ event.Notifier = (*Async)(nil)

// NewAsync creates an Async with the given pool size and queue capacity.
// Each delivery is bounded by timeout, five seconds when unset.
func NewAsync(sender Sender, workers, capacity int, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{
		sender:  sender,
		queue:   make(chan queued, max(capacity, 1)),
		workers: max(workers, 1),
		timeout: timeout,
	}
}

// Notify enqueues e without blocking.
func (a *Async) Notify(ctx context.Context, e event.Event) {
	select {
	case a.queue <- queued{event: e, lg: zctx.From(ctx)}:
	default:
		zctx.From(ctx).Warn("Notification queue full, event dropped", zap.String("type", string(e.Type)))
	}
}

// Run delivers queued events until ctx is done, then drains what is left
// with a fresh deadline per event.
func (a *Async) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for range a.workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case q := <-a.queue:
					a.deliver(context.WithoutCancel(gctx), q)
				}
			}
		})
	}
	err := g.Wait()

	for {
		select {
		case q := <-a.queue:
			a.deliver(context.WithoutCancel(ctx), q)
		default:
			return err
		}
	}
}

func (a *Async) deliver(ctx context.Context, q queued) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.sender.Send(ctx, q.event); err != nil {
		q.lg.Warn("Event delivery failed",
			zap.String("type", string(q.event.Type)),
			zap.Error(err),
		)
	}
}
