// Package analytics reports a seller's sales and discount code performance
// from the orders placed with them. Canceled orders are left out.
package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/discount"
)

const (
	// DefaultWindow is the period reported when the range is left open.
	DefaultWindow = 30 * 24 * time.Hour
	// MaxWindow bounds a single report.
	MaxWindow = 366 * 24 * time.Hour
	// TopProducts is how many best sellers a report lists.
	TopProducts = 10
)

// Range is the half-open period [From, To) of order creation times.
type Range struct {
	From time.Time
	To   time.Time
}

// Totals are the seller's figures over a range. Revenue is the value of the
// seller's order lines before discounts and refunds.
type Totals struct {
	Orders   int
	Units    int
	Revenue  decimal.Decimal
	Discount decimal.Decimal
}

// Month is one calendar month (UTC) of sales.
type Month struct {
	Start   time.Time
	Orders  int
	Revenue decimal.Decimal
}

// Label returns the month as YYYY-MM.
func (m Month) Label() string {
	return m.Start.Format("2006-01")
}

// ProductSales are the sales of one product.
type ProductSales struct {
	ProductID uuid.UUID
	Title     string
	Units     int
	Revenue   decimal.Decimal
}

// SalesReport summarizes a seller's sales over Range.
type SalesReport struct {
	Range        Range
	Totals       Totals
	AverageOrder decimal.Decimal
	Months       []Month
	TopProducts  []ProductSales
}

// CodeUsage is how one discount code performed over a range.
type CodeUsage struct {
	CodeID     uuid.UUID
	Code       string
	Kind       discount.Kind
	Active     bool
	UsageCount int
	UsageLimit *int
	// Orders, Discount and Revenue cover orders placed in the range.
	Orders   int
	Discount decimal.Decimal
	Revenue  decimal.Decimal
}

// Remaining returns the uses left, or -1 for an unlimited code.
func (c CodeUsage) Remaining() int {
	if c.UsageLimit == nil {
		return -1
	}
	return max(*c.UsageLimit-c.UsageCount, 0)
}

// Repository runs the read-only aggregate queries.
type Repository interface {
	SalesTotals(ctx context.Context, sellerID uuid.UUID, r Range) (Totals, error)
	// MonthlySales returns the months with at least one order, oldest first.
	MonthlySales(ctx context.Context, sellerID uuid.UUID, r Range) ([]Month, error)
	// TopProducts returns the best selling products by revenue.
	TopProducts(ctx context.Context, sellerID uuid.UUID, r Range, limit int) ([]ProductSales, error)
	// CodeUsage returns every code of the seller, most discount given first.
	CodeUsage(ctx context.Context, sellerID uuid.UUID, r Range) ([]CodeUsage, error)
}
