package auth

import (
	"slices"

	"github.com/google/uuid"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
)

// Role is the closed set of marketplace roles. The interface is sealed by its
// unexported methods: every role carries its own policy, so a new role does
// not compile until each decision below is made for it.
type Role interface {
	String() string

	orderScope(self uuid.UUID) (OrderScope, bool)
	mayOnOrder(self uuid.UUID, access OrderAccess, action Action) bool
	maySell() bool
	mayPlaceOrders() bool
	mayAdminister() bool
}

var (
	// Customer buys products.
	Customer Role = customer{}
	// Seller lists products and runs discount codes and campaigns.
	Seller Role = seller{}
	// PendingSeller registered as a seller and awaits admin approval.
	PendingSeller Role = pendingSeller{}
	// Admin operates the marketplace.
	Admin Role = admin{}
)

// ErrUnknownRole is returned by ParseRole for values outside the closed set.
var ErrUnknownRole = apperr.New(apperr.Invalid, "unknown role")

// ParseRole maps the stored role name to its Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "customer":
		return Customer, nil
	case "seller":
		return Seller, nil
	case "pending_seller":
		return PendingSeller, nil
	case "admin":
		return Admin, nil
	default:
		return nil, ErrUnknownRole
	}
}

type customer struct{}

func (customer) String() string { return "customer" }

func (customer) orderScope(self uuid.UUID) (OrderScope, bool) {
	return OrderScope{Kind: ScopeBuyer, UserID: self}, true
}

func (customer) mayOnOrder(self uuid.UUID, access OrderAccess, action Action) bool {
	if access.BuyerID != self {
		return false
	}
	switch action {
	case ActionView:
		return true
	case ActionCancel:
		return access.Pending
	default:
		return false
	}
}

func (customer) maySell() bool        { return false }
func (customer) mayPlaceOrders() bool { return true }
func (customer) mayAdminister() bool  { return false }

type seller struct{}

func (seller) String() string { return "seller" }

func (seller) orderScope(self uuid.UUID) (OrderScope, bool) {
	return OrderScope{Kind: ScopeSeller, UserID: self}, true
}

func (seller) mayOnOrder(self uuid.UUID, access OrderAccess, action Action) bool {
	if slices.Contains(access.SellerIDs, self) {
		return action != ActionRefund
	}
	// A seller may also be the buyer of someone else's goods.
	return customer{}.mayOnOrder(self, access, action)
}

func (seller) maySell() bool        { return true }
func (seller) mayPlaceOrders() bool { return true }
func (seller) mayAdminister() bool  { return false }

type pendingSeller struct{}

func (pendingSeller) String() string { return "pending_seller" }

func (pendingSeller) orderScope(uuid.UUID) (OrderScope, bool) { return OrderScope{}, false }

func (pendingSeller) mayOnOrder(uuid.UUID, OrderAccess, Action) bool { return false }

func (pendingSeller) maySell() bool        { return false }
func (pendingSeller) mayPlaceOrders() bool { return false }
func (pendingSeller) mayAdminister() bool  { return false }

type admin struct{}

func (admin) String() string { return "admin" }

func (admin) orderScope(uuid.UUID) (OrderScope, bool) {
	return OrderScope{Kind: ScopeAll}, true
}

func (admin) mayOnOrder(uuid.UUID, OrderAccess, Action) bool { return true }

func (admin) maySell() bool        { return true }
func (admin) mayPlaceOrders() bool { return true }
func (admin) mayAdminister() bool  { return true }
