// Package discount validates discount codes against carts, computes their
// monetary effect and accounts for their usage.
package discount

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage takes value percent off the subtotal.
	KindPercentage Kind = "percentage"
	// KindFixedAmount takes a fixed amount off, never more than the subtotal.
	KindFixedAmount Kind = "fixed_amount"
	// KindBuyXGetY discounts the cheapest Y of every X+Y eligible units.
	KindBuyXGetY Kind = "buy_x_get_y"
	// KindFreeShipping waives shipping and takes nothing off the subtotal.
	KindFreeShipping Kind = "free_shipping"
	// KindBundled discounts every complete set of the restricted products.
	KindBundled Kind = "bundled"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPercentage, KindFixedAmount, KindBuyXGetY, KindFreeShipping, KindBundled:
		return true
	default:
		return false
	}
}

var (
	ErrCodeNotFound      = apperr.New(apperr.NotFound, "discount code not found")
	ErrCodeInactive      = apperr.New(apperr.Invalid, "discount code is not active")
	ErrCodeNotStarted    = apperr.New(apperr.Invalid, "discount code is not valid yet")
	ErrCodeExpired       = apperr.New(apperr.Invalid, "discount code has expired")
	ErrUsageLimitReached = apperr.New(apperr.Conflict, "discount code has reached its usage limit")
	// ErrUsageBelowCount is returned by Repository.Replace when the new
	// usage limit is below the stored usage count.
	ErrUsageBelowCount   = apperr.New(apperr.Invalid, "usage limit is below the current usage count")
	ErrMinimumNotMet     = apperr.New(apperr.Invalid, "order subtotal is below the code's minimum purchase amount")
	ErrNotApplicable     = apperr.New(apperr.Invalid, "discount code does not apply to any item in the cart")
	ErrUnsupportedKind   = apperr.New(apperr.Invalid, "unsupported discount kind")
	ErrCodeExists        = apperr.New(apperr.Conflict, "discount code already exists")
)

// Code is a seller's discount code.
type Code struct {
	ID          uuid.UUID
	SellerID    uuid.UUID
	CampaignID  *uuid.UUID
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	Description string
	MinPurchase decimal.NullDecimal
	MaxDiscount decimal.NullDecimal
	UsageLimit  *int
	UsageCount  int
	BuyQuantity int
	GetQuantity int
	ProductIDs  []uuid.UUID
	CategoryIDs []uuid.UUID
	StartsAt    time.Time
	EndsAt      time.Time
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Restricted reports whether the code only applies to some products or categories.
func (c *Code) Restricted() bool {
	return len(c.ProductIDs) > 0 || len(c.CategoryIDs) > 0
}

// Eligible reports whether line falls inside the code's restriction sets.
// Every line is eligible for an unrestricted code.
func (c *Code) Eligible(line Line) bool {
	if !c.Restricted() {
		return true
	}
	return slices.Contains(c.ProductIDs, line.ProductID) ||
		slices.Contains(c.CategoryIDs, line.CategoryID)
}

// Line is a cart line priced at checkout time.
type Line struct {
	ProductID  uuid.UUID
	CategoryID uuid.UUID
	UnitPrice  decimal.Decimal
	Quantity   int
}

// Total returns UnitPrice * Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the set of lines a code is applied to.
type Cart []Line

// Subtotal returns the sum of line totals.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c {
		sum = sum.Add(l.Total())
	}
	return sum
}

// Candidate is a proposed use of a code.
type Candidate struct {
	SellerID uuid.UUID
	Code     string
	Subtotal decimal.Decimal
	Lines    Cart
}

// Finder looks a code up within a seller's namespace.
type Finder interface {
	// FindByCode returns ErrCodeNotFound when the seller has no such code.
	FindByCode(ctx context.Context, sellerID uuid.UUID, code string) (*Code, error)
}

// NormalizeCode returns the stored form of a user-typed code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
