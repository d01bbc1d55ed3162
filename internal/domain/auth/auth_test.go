package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, r := range []Role{Customer, Seller, PendingSeller, Admin} {
		got, err := ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	_, err := ParseRole("superuser")
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestAuthorizer_Order(t *testing.T) {
	buyer := uuid.New()
	owner := uuid.New()
	otherSeller := uuid.New()
	adminID := uuid.New()

	pending := OrderAccess{BuyerID: buyer, SellerIDs: []uuid.UUID{owner}, Pending: true}
	processing := OrderAccess{BuyerID: buyer, SellerIDs: []uuid.UUID{owner}}

	tests := []struct {
		name    string
		p       Principal
		access  OrderAccess
		action  Action
		allowed bool
	}{
		{"buyer views own order", Principal{buyer, Customer}, processing, ActionView, true},
		{"buyer cancels pending order", Principal{buyer, Customer}, pending, ActionCancel, true},
		{"buyer cannot cancel processing order", Principal{buyer, Customer}, processing, ActionCancel, false},
		{"buyer cannot advance", Principal{buyer, Customer}, pending, ActionAdvance, false},
		{"stranger cannot view", Principal{uuid.New(), Customer}, pending, ActionView, false},
		{"owning seller advances", Principal{owner, Seller}, processing, ActionAdvance, true},
		{"owning seller cancels processing", Principal{owner, Seller}, processing, ActionCancel, true},
		{"owning seller cannot refund", Principal{owner, Seller}, processing, ActionRefund, false},
		{"other seller cannot advance", Principal{otherSeller, Seller}, processing, ActionAdvance, false},
		{"pending seller cannot view", Principal{owner, PendingSeller}, processing, ActionView, false},
		{"admin refunds", Principal{adminID, Admin}, processing, ActionRefund, true},
		{"admin advances", Principal{adminID, Admin}, pending, ActionAdvance, true},
	}
	a := NewAuthorizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Order(tt.p, tt.access, tt.action)
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrForbidden)
		})
	}
}

func TestAuthorizer_OrderScope(t *testing.T) {
	a := NewAuthorizer()
	id := uuid.New()

	scope, err := a.OrderScope(Principal{UserID: id, Role: Customer})
	require.NoError(t, err)
	assert.Equal(t, OrderScope{Kind: ScopeBuyer, UserID: id}, scope)

	scope, err = a.OrderScope(Principal{UserID: id, Role: Seller})
	require.NoError(t, err)
	assert.Equal(t, ScopeSeller, scope.Kind)

	scope, err = a.OrderScope(Principal{UserID: id, Role: Admin})
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, scope.Kind)

	_, err = a.OrderScope(Principal{UserID: id, Role: PendingSeller})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = a.OrderScope(Principal{})
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthorizer_Discounts(t *testing.T) {
	a := NewAuthorizer()
	sellerID := uuid.New()

	require.NoError(t, a.Discounts(Principal{UserID: sellerID, Role: Seller}, sellerID))
	require.NoError(t, a.Discounts(Principal{UserID: uuid.New(), Role: Admin}, sellerID))
	require.ErrorIs(t, a.Discounts(Principal{UserID: uuid.New(), Role: Seller}, sellerID), ErrForbidden)
	require.ErrorIs(t, a.Discounts(Principal{UserID: sellerID, Role: Customer}, sellerID), ErrForbidden)
	require.ErrorIs(t, a.Discounts(Principal{UserID: sellerID, Role: PendingSeller}, sellerID), ErrForbidden)
}

func TestAuthorizer_SellerOwned(t *testing.T) {
	a := NewAuthorizer()
	sellerID := uuid.New()

	tests := []struct {
		name string
		p    Principal
		want error
	}{
		{"owner", Principal{sellerID, Seller}, nil},
		{"admin", Principal{uuid.New(), Admin}, nil},
		{"other seller", Principal{uuid.New(), Seller}, ErrForbidden},
		{"customer", Principal{sellerID, Customer}, ErrForbidden},
		{"pending seller", Principal{sellerID, PendingSeller}, ErrForbidden},
		{"anonymous", Principal{}, ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, check := range []func(Principal, uuid.UUID) error{a.Catalog, a.Analytics} {
				err := check(tt.p, sellerID)
				if tt.want == nil {
					assert.NoError(t, err)
					continue
				}
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestTokens_RoundTrip(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tokens := NewTokens([]byte("test-secret"), time.Hour, "cameroon-mark")
	tokens.now = func() time.Time { return fixedNow }

	want := Principal{UserID: uuid.New(), Role: Seller}
	token, exp, err := tokens.Issue(want)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(time.Hour), exp)

	got, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTokens_Rejects(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tokens := NewTokens([]byte("test-secret"), time.Hour, "cameroon-mark")
	tokens.now = func() time.Time { return fixedNow }

	token, _, err := tokens.Issue(Principal{UserID: uuid.New(), Role: Customer})
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := NewTokens([]byte("test-secret"), time.Hour, "cameroon-mark")
		later.now = func() time.Time { return fixedNow.Add(2 * time.Hour) }
		_, err := later.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokens([]byte("another-secret"), time.Hour, "cameroon-mark")
		other.now = tokens.now
		_, err := other.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokens([]byte("test-secret"), time.Hour, "someone-else")
		other.now = tokens.now
		_, err := other.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Verify("not.a.token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
