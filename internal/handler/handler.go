// Package handler exposes the marketplace over HTTP: a chi router under
// /api, JSON bodies encoded with jx, and a {success, message, data}
// envelope around every response.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/analytics"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/campaign"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
	"github.com/xenking/cameroon-mark/internal/domain/order"
	"github.com/xenking/cameroon-mark/internal/domain/product"
	"github.com/xenking/cameroon-mark/internal/domain/user"
	"github.com/xenking/cameroon-mark/pkg/httpmiddleware"
)

// Users registers and authenticates accounts.
type Users interface {
	Register(ctx context.Context, r user.Registration) (*user.Session, error)
	Login(ctx context.Context, email, password string) (*user.Session, error)
	ApproveSeller(ctx context.Context, p auth.Principal, id uuid.UUID) (*user.User, error)
}

// Products serves the catalog and seller listings.
type Products interface {
	List(ctx context.Context) ([]product.Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error)
	Create(ctx context.Context, p auth.Principal, d product.Draft) (*product.Product, error)
	Update(ctx context.Context, p auth.Principal, id uuid.UUID, d product.Draft) (*product.Product, error)
}

// Analytics reports seller sales.
type Analytics interface {
	Sales(ctx context.Context, p auth.Principal, sellerID uuid.UUID, r analytics.Range) (*analytics.SalesReport, error)
	Discounts(ctx context.Context, p auth.Principal, sellerID uuid.UUID, r analytics.Range) ([]analytics.CodeUsage, error)
}

// Discounts manages seller discount codes.
type Discounts interface {
	Create(ctx context.Context, p auth.Principal, d discount.Draft) (*discount.Code, error)
	Update(ctx context.Context, p auth.Principal, id uuid.UUID, d discount.Draft) (*discount.Code, error)
	Deactivate(ctx context.Context, p auth.Principal, id uuid.UUID) error
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*discount.Code, error)
	List(ctx context.Context, p auth.Principal, sellerID uuid.UUID) ([]discount.Code, error)
	Generate(ctx context.Context, p auth.Principal, sellerID uuid.UUID, length int) (string, error)
}

// Campaigns manages seller campaigns.
type Campaigns interface {
	Create(ctx context.Context, p auth.Principal, d campaign.Draft) (*campaign.Created, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*campaign.Campaign, error)
	List(ctx context.Context, p auth.Principal, sellerID uuid.UUID, activeOnly bool) ([]campaign.Campaign, error)
}

// Orders runs checkout and the order lifecycle.
type Orders interface {
	Quote(ctx context.Context, p auth.Principal, req order.QuoteRequest) (*order.Quote, error)
	PlaceOrder(ctx context.Context, p auth.Principal, req order.PlaceOrderRequest) (*order.Order, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*order.Order, error)
	List(ctx context.Context, p auth.Principal, f order.Filter) ([]order.Order, error)
	UpdateStatus(ctx context.Context, p auth.Principal, id uuid.UUID, target order.Status, expectedVersion *int) (*order.Order, error)
	Cancel(ctx context.Context, p auth.Principal, id uuid.UUID, expectedVersion *int) (*order.Order, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, reference string, amount decimal.NullDecimal) (*order.Order, error)
	FailPayment(ctx context.Context, id uuid.UUID, reference string) (*order.Order, error)
	Refund(ctx context.Context, p auth.Principal, id uuid.UUID, amount decimal.Decimal) (*order.Order, error)
}

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Probes serves the health endpoints.
type Probes interface {
	Livez(w http.ResponseWriter, r *http.Request)
	Readyz(w http.ResponseWriter, r *http.Request)
}

// Config holds non-dependency settings.
type Config struct {
	// PaymentWebhookSecret verifies payment provider callbacks. Callbacks
	// are rejected while it is empty.
	PaymentWebhookSecret string
	// MaxBodyBytes caps request bodies; 1 MiB when zero.
	MaxBodyBytes int64
}

// Deps are the services behind the handlers.
type Deps struct {
	Users     Users
	Products  Products
	Discounts Discounts
	Campaigns Campaigns
	Orders    Orders
	Analytics Analytics
	Tokens    TokenVerifier
	Probes    Probes
}

// Handler serves the API.
type Handler struct {
	Deps
	webhookSecret []byte
	maxBody       int64
	now           func() time.Time
}

// New creates a Handler.
func New(deps Deps, cfg Config) *Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handler{
		Deps:          deps,
		webhookSecret: []byte(cfg.PaymentWebhookSecret),
		maxBody:       maxBody,
		now:           time.Now,
	}
}

// Router builds the route tree. Middlewares in mw run inside the router, so
// they can see the matched route pattern.
func (h *Handler) Router(mw ...httpmiddleware.Middleware) http.Handler {
	r := chi.NewRouter()
	for _, m := range mw {
		r.Use(m)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, r, errMethodNotAllowed)
	})

	if h.Probes != nil {
		r.Get("/livez", h.Probes.Livez)
		r.Get("/readyz", h.Probes.Readyz)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Get("/{id}", h.getProduct)
			r.Put("/{id}", h.updateProduct)
		})

		r.Route("/discounts", func(r chi.Router) {
			r.Post("/", h.createDiscount)
			r.Get("/", h.listDiscounts)
			r.Get("/generate", h.generateDiscount)
			r.Post("/validate", h.validateDiscount)
			r.Get("/{id}", h.getDiscount)
			r.Put("/{id}", h.updateDiscount)
			r.Delete("/{id}", h.deactivateDiscount)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.createCampaign)
			r.Get("/", h.listCampaigns)
			r.Get("/{id}", h.getCampaign)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Patch("/{id}/status", h.updateOrderStatus)
			r.Post("/{id}/cancel", h.cancelOrder)
			r.Post("/{id}/refunds", h.refundOrder)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/sales", h.salesReport)
			r.Get("/discounts", h.discountReport)
		})

		r.Post("/payments/webhook", h.paymentWebhook)
		r.Post("/admin/sellers/{id}/approve", h.approveSeller)
	})
	return r
}
