package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StaleCanceler cancels orders left pending and unpaid.
type StaleCanceler interface {
	CancelStale(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

// Sweeper periodically cancels stale orders on a cron schedule.
type Sweeper struct {
	orders   StaleCanceler
	schedule cron.Schedule
	ttl      time.Duration
	batch    int
}

// NewSweeper parses spec (standard five-field cron or a descriptor such as
// "@every 5m").
func NewSweeper(orders StaleCanceler, spec string, ttl time.Duration, batch int) (*Sweeper, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "parse sweep schedule %q", spec)
	}
	return &Sweeper{
		orders:   orders,
		schedule: schedule,
		ttl:      ttl,
		batch:    max(batch, 1),
	}, nil
}

// Sweep runs one pass. A full batch is followed by another pass until
// fewer than batch orders were canceled.
func (s *Sweeper) Sweep(ctx context.Context) {
	lg := zctx.From(ctx)
	total := 0
	for ctx.Err() == nil {
		n, err := s.orders.CancelStale(ctx, s.ttl, s.batch)
		total += n
		if err != nil {
			lg.Error("Stale order sweep failed", zap.Error(err), zap.Int("canceled", total))
			return
		}
		if n < s.batch {
			break
		}
	}
	if total > 0 {
		lg.Info("Canceled stale orders", zap.Int("count", total), zap.Duration("ttl", s.ttl))
	}
}

// Run schedules Sweep until ctx is done. Runs never overlap.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.Sweep(ctx) }))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
