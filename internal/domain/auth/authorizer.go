// Package auth identifies callers and decides what they may do.
package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
)

var (
	// ErrForbidden is returned when an identified caller lacks permission.
	ErrForbidden = apperr.New(apperr.Forbidden, "not allowed to perform this action")
	// ErrUnauthenticated is returned when no caller identity is available.
	ErrUnauthenticated = apperr.New(apperr.Unauthorized, "authentication required")
)

// Principal is an authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.Role != nil
}

// Action is something a caller may do to an existing order.
type Action uint8

const (
	ActionView Action = iota
	// ActionAdvance moves an order forward along the fulfilment path.
	ActionAdvance
	ActionCancel
	ActionRefund
)

// OrderAccess is the ownership view of an order used for decisions.
type OrderAccess struct {
	BuyerID   uuid.UUID
	SellerIDs []uuid.UUID
	// Pending reports whether the order is still in the pending status.
	Pending bool
}

// ScopeKind selects which orders a listing may return.
type ScopeKind uint8

const (
	ScopeNone ScopeKind = iota
	ScopeBuyer
	ScopeSeller
	ScopeAll
)

// OrderScope restricts order listings to what the caller may see.
type OrderScope struct {
	Kind   ScopeKind
	UserID uuid.UUID
}

// Authorizer is the single place where role and ownership rules live.
type Authorizer struct{}

// NewAuthorizer returns an Authorizer.
func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// Order checks that p may perform action on an order with the given access.
func (*Authorizer) Order(p Principal, access OrderAccess, action Action) error {
	if p.Role == nil {
		return ErrUnauthenticated
	}
	if !p.Role.mayOnOrder(p.UserID, access, action) {
		return ErrForbidden
	}
	return nil
}

// OrderScope returns the listing scope for p.
func (*Authorizer) OrderScope(p Principal) (OrderScope, error) {
	if p.Role == nil {
		return OrderScope{}, ErrUnauthenticated
	}
	scope, ok := p.Role.orderScope(p.UserID)
	if !ok {
		return OrderScope{}, ErrForbidden
	}
	return scope, nil
}

// Checkout checks that p may place orders.
func (*Authorizer) Checkout(p Principal) error {
	if p.Role == nil {
		return ErrUnauthenticated
	}
	if !p.Role.mayPlaceOrders() {
		return ErrForbidden
	}
	return nil
}

// Discounts checks that p may manage codes and campaigns owned by sellerID.
func (*Authorizer) Discounts(p Principal, sellerID uuid.UUID) error {
	return sellerOwned(p, sellerID)
}

// Catalog checks that p may list and edit products of sellerID.
func (*Authorizer) Catalog(p Principal, sellerID uuid.UUID) error {
	return sellerOwned(p, sellerID)
}

// Analytics checks that p may read sales figures of sellerID.
func (*Authorizer) Analytics(p Principal, sellerID uuid.UUID) error {
	return sellerOwned(p, sellerID)
}

func sellerOwned(p Principal, sellerID uuid.UUID) error {
	if p.Role == nil {
		return ErrUnauthenticated
	}
	if !p.Role.maySell() {
		return ErrForbidden
	}
	if p.Role != Admin && p.UserID != sellerID {
		return ErrForbidden
	}
	return nil
}

// Admin checks that p is an administrator.
func (*Authorizer) Admin(p Principal) error {
	if p.Role == nil {
		return ErrUnauthenticated
	}
	if !p.Role.mayAdminister() {
		return ErrForbidden
	}
	return nil
}
