package analytics

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
)

// Service answers seller analytics requests.
type Service struct {
	repo  Repository
	authz *auth.Authorizer
	now   func() time.Time
}

// NewService creates an analytics Service.
func NewService(repo Repository, authz *auth.Authorizer) *Service {
	return &Service{
		repo:  repo,
		authz: authz,
		now:   time.Now,
	}
}

// resolve fills an open range and checks its bounds. An open end means now,
// an open start means DefaultWindow before the end.
func (s *Service) resolve(r Range) (Range, error) {
	if r.To.IsZero() {
		r.To = s.now()
	}
	if r.From.IsZero() {
		r.From = r.To.Add(-DefaultWindow)
	}
	r.From, r.To = r.From.UTC(), r.To.UTC()

	var fs apperr.FieldSet
	fs.Check(r.From.Before(r.To), "from", "must be before to")
	fs.Check(r.To.Sub(r.From) <= MaxWindow, "to", "range must not exceed 366 days")
	return r, fs.Err()
}

// Sales reports the seller's sales over r.
func (s *Service) Sales(ctx context.Context, p auth.Principal, sellerID uuid.UUID, r Range) (*SalesReport, error) {
	if err := s.authz.Analytics(p, sellerID); err != nil {
		return nil, err
	}
	r, err := s.resolve(r)
	if err != nil {
		return nil, err
	}

	report := &SalesReport{Range: r}
	var months []Month
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report.Totals, err = s.repo.SalesTotals(gctx, sellerID, r)
		return errors.Wrap(err, "sales totals")
	})
	g.Go(func() (err error) {
		months, err = s.repo.MonthlySales(gctx, sellerID, r)
		return errors.Wrap(err, "monthly sales")
	})
	g.Go(func() (err error) {
		report.TopProducts, err = s.repo.TopProducts(gctx, sellerID, r, TopProducts)
		return errors.Wrap(err, "top products")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if report.Totals.Orders > 0 {
		report.AverageOrder = report.Totals.Revenue.
			Div(decimal.NewFromInt(int64(report.Totals.Orders))).
			Round(discount.MoneyScale)
	}
	report.Months = fillMonths(r, months)
	return report, nil
}

// Discounts reports how each of the seller's codes performed over r.
func (s *Service) Discounts(ctx context.Context, p auth.Principal, sellerID uuid.UUID, r Range) ([]CodeUsage, error) {
	if err := s.authz.Analytics(p, sellerID); err != nil {
		return nil, err
	}
	r, err := s.resolve(r)
	if err != nil {
		return nil, err
	}
	usage, err := s.repo.CodeUsage(ctx, sellerID, r)
	if err != nil {
		return nil, errors.Wrap(err, "code usage")
	}
	return usage, nil
}

// fillMonths returns one entry per calendar month touched by r, taking the
// figures from got and zero for months without orders.
func fillMonths(r Range, got []Month) []Month {
	byStart := make(map[time.Time]Month, len(got))
	for _, m := range got {
		byStart[monthStart(m.Start)] = m
	}
	var out []Month
	// To is exclusive.
	last := monthStart(r.To.Add(-time.Nanosecond))
	for m := monthStart(r.From); !m.After(last); m = m.AddDate(0, 1, 0) {
		month, ok := byStart[m]
		if !ok {
			month = Month{Revenue: decimal.Zero}
		}
		month.Start = m
		out = append(out, month)
	}
	return out
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
