package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/analytics"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/campaign"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
	"github.com/xenking/cameroon-mark/internal/domain/order"
	"github.com/xenking/cameroon-mark/internal/domain/product"
	"github.com/xenking/cameroon-mark/internal/domain/user"
)

type fakeUsers struct {
	register func(user.Registration) (*user.Session, error)
	login    func(email, password string) (*user.Session, error)
	approve  func(auth.Principal, uuid.UUID) (*user.User, error)
}

func (f *fakeUsers) Register(_ context.Context, r user.Registration) (*user.Session, error) {
	return f.register(r)
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*user.Session, error) {
	return f.login(email, password)
}

func (f *fakeUsers) ApproveSeller(_ context.Context, p auth.Principal, id uuid.UUID) (*user.User, error) {
	return f.approve(p, id)
}

type fakeProducts struct {
	items  []product.Product
	err    error
	create func(auth.Principal, product.Draft) (*product.Product, error)
	update func(auth.Principal, uuid.UUID, product.Draft) (*product.Product, error)
}

func (f *fakeProducts) List(context.Context) ([]product.Product, error) {
	return f.items, f.err
}

func (f *fakeProducts) GetByID(_ context.Context, id uuid.UUID) (*product.Product, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			return &f.items[i], nil
		}
	}
	return nil, product.ErrNotFound
}

func (f *fakeProducts) Create(_ context.Context, p auth.Principal, d product.Draft) (*product.Product, error) {
	return f.create(p, d)
}

func (f *fakeProducts) Update(_ context.Context, p auth.Principal, id uuid.UUID, d product.Draft) (*product.Product, error) {
	return f.update(p, id, d)
}

type fakeAnalytics struct {
	sales     func(auth.Principal, uuid.UUID, analytics.Range) (*analytics.SalesReport, error)
	discounts func(auth.Principal, uuid.UUID, analytics.Range) ([]analytics.CodeUsage, error)
}

func (f *fakeAnalytics) Sales(_ context.Context, p auth.Principal, sellerID uuid.UUID, r analytics.Range) (*analytics.SalesReport, error) {
	return f.sales(p, sellerID, r)
}

func (f *fakeAnalytics) Discounts(_ context.Context, p auth.Principal, sellerID uuid.UUID, r analytics.Range) ([]analytics.CodeUsage, error) {
	return f.discounts(p, sellerID, r)
}

type fakeDiscounts struct {
	create     func(auth.Principal, discount.Draft) (*discount.Code, error)
	update     func(auth.Principal, uuid.UUID, discount.Draft) (*discount.Code, error)
	deactivate func(auth.Principal, uuid.UUID) error
	get        func(auth.Principal, uuid.UUID) (*discount.Code, error)
	list       func(auth.Principal, uuid.UUID) ([]discount.Code, error)
	generate   func(auth.Principal, uuid.UUID, int) (string, error)
}

func (f *fakeDiscounts) Create(_ context.Context, p auth.Principal, d discount.Draft) (*discount.Code, error) {
	return f.create(p, d)
}

func (f *fakeDiscounts) Update(_ context.Context, p auth.Principal, id uuid.UUID, d discount.Draft) (*discount.Code, error) {
	return f.update(p, id, d)
}

func (f *fakeDiscounts) Deactivate(_ context.Context, p auth.Principal, id uuid.UUID) error {
	return f.deactivate(p, id)
}

func (f *fakeDiscounts) Get(_ context.Context, p auth.Principal, id uuid.UUID) (*discount.Code, error) {
	return f.get(p, id)
}

func (f *fakeDiscounts) List(_ context.Context, p auth.Principal, sellerID uuid.UUID) ([]discount.Code, error) {
	return f.list(p, sellerID)
}

func (f *fakeDiscounts) Generate(_ context.Context, p auth.Principal, sellerID uuid.UUID, length int) (string, error) {
	return f.generate(p, sellerID, length)
}

type fakeCampaigns struct {
	create func(auth.Principal, campaign.Draft) (*campaign.Created, error)
	get    func(auth.Principal, uuid.UUID) (*campaign.Campaign, error)
	list   func(auth.Principal, uuid.UUID, bool) ([]campaign.Campaign, error)
}

func (f *fakeCampaigns) Create(_ context.Context, p auth.Principal, d campaign.Draft) (*campaign.Created, error) {
	return f.create(p, d)
}

func (f *fakeCampaigns) Get(_ context.Context, p auth.Principal, id uuid.UUID) (*campaign.Campaign, error) {
	return f.get(p, id)
}

func (f *fakeCampaigns) List(_ context.Context, p auth.Principal, sellerID uuid.UUID, activeOnly bool) ([]campaign.Campaign, error) {
	return f.list(p, sellerID, activeOnly)
}

type fakeOrders struct {
	quote   func(auth.Principal, order.QuoteRequest) (*order.Quote, error)
	place   func(auth.Principal, order.PlaceOrderRequest) (*order.Order, error)
	get     func(auth.Principal, uuid.UUID) (*order.Order, error)
	list    func(auth.Principal, order.Filter) ([]order.Order, error)
	status  func(auth.Principal, uuid.UUID, order.Status, *int) (*order.Order, error)
	cancel  func(auth.Principal, uuid.UUID, *int) (*order.Order, error)
	confirm func(uuid.UUID, string, decimal.NullDecimal) (*order.Order, error)
	failPay func(uuid.UUID, string) (*order.Order, error)
	refund  func(auth.Principal, uuid.UUID, decimal.Decimal) (*order.Order, error)
}

func (f *fakeOrders) Quote(_ context.Context, p auth.Principal, req order.QuoteRequest) (*order.Quote, error) {
	return f.quote(p, req)
}

func (f *fakeOrders) PlaceOrder(_ context.Context, p auth.Principal, req order.PlaceOrderRequest) (*order.Order, error) {
	return f.place(p, req)
}

func (f *fakeOrders) Get(_ context.Context, p auth.Principal, id uuid.UUID) (*order.Order, error) {
	return f.get(p, id)
}

func (f *fakeOrders) List(_ context.Context, p auth.Principal, filter order.Filter) ([]order.Order, error) {
	return f.list(p, filter)
}

func (f *fakeOrders) UpdateStatus(_ context.Context, p auth.Principal, id uuid.UUID, target order.Status, v *int) (*order.Order, error) {
	return f.status(p, id, target, v)
}

func (f *fakeOrders) Cancel(_ context.Context, p auth.Principal, id uuid.UUID, v *int) (*order.Order, error) {
	return f.cancel(p, id, v)
}

func (f *fakeOrders) ConfirmPayment(_ context.Context, id uuid.UUID, ref string, amount decimal.NullDecimal) (*order.Order, error) {
	return f.confirm(id, ref, amount)
}

func (f *fakeOrders) FailPayment(_ context.Context, id uuid.UUID, ref string) (*order.Order, error) {
	return f.failPay(id, ref)
}

func (f *fakeOrders) Refund(_ context.Context, p auth.Principal, id uuid.UUID, amount decimal.Decimal) (*order.Order, error) {
	return f.refund(p, id, amount)
}

// fakeTokens accepts "<role>:<uuid>" tokens.
type fakeTokens struct{}

func (fakeTokens) Verify(token string) (auth.Principal, error) {
	for _, role := range []auth.Role{auth.Customer, auth.Seller, auth.PendingSeller, auth.Admin} {
		prefix := role.String() + ":"
		if len(token) > len(prefix) && token[:len(prefix)] == prefix {
			id, err := uuid.Parse(token[len(prefix):])
			if err != nil {
				return auth.Principal{}, auth.ErrInvalidToken
			}
			return auth.Principal{UserID: id, Role: role}, nil
		}
	}
	return auth.Principal{}, auth.ErrInvalidToken
}
