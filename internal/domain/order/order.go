// Package order implements checkout and the order lifecycle: discount
// settlement at checkout, fulfilment and payment status transitions,
// cancellation compensation and refunds.
package order

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
)

var (
	ErrNotFound          = apperr.New(apperr.NotFound, "order not found")
	ErrInvalidTransition = apperr.New(apperr.Conflict, "status transition is not allowed")
	ErrVersionConflict   = apperr.New(apperr.Conflict, "order was modified concurrently, reload and retry")
	// ErrPaidAfterCancel is returned when a payment is captured for an order
	// that was already canceled. The money has to be refunded.
	ErrPaidAfterCancel = apperr.New(apperr.Conflict, "order was canceled before the payment arrived, a refund is required")
	ErrAmountMismatch  = apperr.New(apperr.Invalid, "paid amount does not match the order total")
)

// PaymentMethod is how the buyer pays.
type PaymentMethod string

const (
	PaymentMTN    PaymentMethod = "mtn"
	PaymentOrange PaymentMethod = "orange"
	PaymentOther  PaymentMethod = "other"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMTN, PaymentOrange, PaymentOther:
		return true
	default:
		return false
	}
}

// Address is where an order ships to.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Country    string
	Phone      string
}

// Item is an order line with its price frozen at checkout.
type Item struct {
	ProductID uuid.UUID
	SellerID  uuid.UUID
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total returns UnitPrice * Quantity.
func (i Item) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a placed order. Amounts are frozen at creation.
type Order struct {
	ID               uuid.UUID
	BuyerID          uuid.UUID
	Items            []Item
	Subtotal         decimal.Decimal
	DiscountAmount   decimal.Decimal
	Total            decimal.Decimal
	DiscountCodeID   *uuid.UUID
	DiscountCode     string
	FreeShipping     bool
	Status           Status
	PaymentStatus    PaymentStatus
	PaymentMethod    PaymentMethod
	PaymentReference string
	RefundedAmount   decimal.Decimal
	Shipping         Address
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SellerIDs returns the distinct sellers of the order's items.
func (o *Order) SellerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.Items))
	for _, it := range o.Items {
		if !slices.Contains(ids, it.SellerID) {
			ids = append(ids, it.SellerID)
		}
	}
	return ids
}

// Access is the ownership view used for authorization.
func (o *Order) Access() auth.OrderAccess {
	return auth.OrderAccess{
		BuyerID:   o.BuyerID,
		SellerIDs: o.SellerIDs(),
		Pending:   o.Status == StatusPending,
	}
}

// Filter narrows order listings.
type Filter struct {
	Status *Status
	Limit  int
	Offset int
}

// PaymentUpdate is a conditional change of the payment axis.
type PaymentUpdate struct {
	OrderID         uuid.UUID
	Status          PaymentStatus
	Reference       string
	RefundedAmount  decimal.Decimal
	ExpectedVersion int
}

// Repository persists orders.
type Repository interface {
	// Create inserts the order with its items.
	Create(ctx context.Context, o *Order) error
	// Get returns the order with its items or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	// List returns the orders visible in scope, newest first.
	List(ctx context.Context, scope auth.OrderScope, f Filter) ([]Order, error)
	// UpdateStatus sets status and bumps the version if the stored version
	// still equals expectedVersion.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, expectedVersion int) (bool, error)
	// UpdatePayment applies u if the stored version still equals
	// u.ExpectedVersion, bumping the version.
	UpdatePayment(ctx context.Context, u PaymentUpdate) (bool, error)
	// ListStale returns orders still pending whose payment is pending or
	// failed that were created before the cutoff.
	ListStale(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

// Transactor runs fn in a database transaction carried by the context.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
