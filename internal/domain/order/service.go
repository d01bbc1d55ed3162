package order

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
	"github.com/xenking/cameroon-mark/internal/domain/event"
	"github.com/xenking/cameroon-mark/internal/domain/product"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Discounts resolves a code for a candidate purchase without consuming it.
type Discounts interface {
	Validate(ctx context.Context, c discount.Candidate) (*discount.Code, error)
}

// Usage consumes and releases code uses inside the caller's transaction.
type Usage interface {
	Consume(ctx context.Context, id uuid.UUID) (discount.Usage, error)
	Release(ctx context.Context, id uuid.UUID) error
}

// LineRequest is a requested cart line.
type LineRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// QuoteRequest prices a cart with an optional discount code.
type QuoteRequest struct {
	Items        []LineRequest
	DiscountCode string
	// DiscountSellerID names the seller whose code DiscountCode is. It may be
	// omitted when every item comes from one seller.
	DiscountSellerID uuid.UUID
}

// Validate reports every invalid field of r.
func (r QuoteRequest) Validate() error {
	var fs apperr.FieldSet
	r.check(&fs)
	return fs.Err()
}

func (r QuoteRequest) check(fs *apperr.FieldSet) {
	fs.Check(len(r.Items) > 0, "items", "must not be empty")
	for i, it := range r.Items {
		fs.Check(it.ProductID != uuid.Nil, fmt.Sprintf("items[%d].product_id", i), "is required")
		fs.Check(it.Quantity >= 1, fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
	}
}

// PlaceOrderRequest is a checkout.
type PlaceOrderRequest struct {
	QuoteRequest
	PaymentMethod PaymentMethod
	Shipping      Address
}

// Validate reports every invalid field of r.
func (r PlaceOrderRequest) Validate() error {
	var fs apperr.FieldSet
	r.check(&fs)
	fs.Check(r.PaymentMethod.Valid(), "payment_method", "must be one of mtn, orange, other")
	fs.Check(strings.TrimSpace(r.Shipping.Line1) != "", "shipping_address.line1", "is required")
	fs.Check(strings.TrimSpace(r.Shipping.City) != "", "shipping_address.city", "is required")
	fs.Check(strings.TrimSpace(r.Shipping.Country) != "", "shipping_address.country", "is required")
	return fs.Err()
}

// Quote is a priced cart.
type Quote struct {
	Items          []Item
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	FreeShipping   bool
	// Code is the validated discount code, nil when none was given.
	Code *discount.Code
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the event notifier. Events are dropped by default.
func WithNotifier(n event.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithApplicator replaces the default discount applicator.
func WithApplicator(a *discount.Applicator) Option {
	return func(s *Service) { s.applicator = a }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// Service places orders and drives their lifecycle.
type Service struct {
	orders     Repository
	products   product.Inventory
	codes      Discounts
	usage      Usage
	tx         Transactor
	authz      *auth.Authorizer
	applicator *discount.Applicator
	notifier   event.Notifier

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tel            *telemetry

	now func() time.Time
}

// NewService creates an order Service.
func NewService(
	orders Repository,
	products product.Inventory,
	codes Discounts,
	usage Usage,
	tx Transactor,
	authz *auth.Authorizer,
	opts ...Option,
) *Service {
	s := &Service{
		orders:         orders,
		products:       products,
		codes:          codes,
		usage:          usage,
		tx:             tx,
		authz:          authz,
		applicator:     discount.NewApplicator(),
		notifier:       event.Discard{},
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tel = newTelemetry(s.meterProvider, s.tracerProvider)
	return s
}

// Quote prices a cart and validates its discount code. Usage is not consumed.
func (s *Service) Quote(ctx context.Context, p auth.Principal, req QuoteRequest) (_ *Quote, err error) {
	ctx, span := s.tel.start(ctx, "Quote")
	defer func() { end(span, err) }()

	if err := s.authz.Checkout(p); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.price(ctx, req)
}

// PlaceOrder prices the cart, then reserves stock, stores the order and
// consumes one use of the discount code in a single transaction.
func (s *Service) PlaceOrder(ctx context.Context, p auth.Principal, req PlaceOrderRequest) (_ *Order, err error) {
	ctx, span := s.tel.start(ctx, "PlaceOrder")
	defer func() { end(span, err) }()

	if err := s.authz.Checkout(p); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	q, err := s.price(ctx, req.QuoteRequest)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:             uuid.New(),
		BuyerID:        p.UserID,
		Items:          q.Items,
		Subtotal:       q.Subtotal,
		DiscountAmount: q.DiscountAmount,
		Total:          q.Total,
		FreeShipping:   q.FreeShipping,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		PaymentMethod:  req.PaymentMethod,
		RefundedAmount: decimal.Zero,
		Shipping:       req.Shipping,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if q.Code != nil {
		id := q.Code.ID
		o.DiscountCodeID = &id
		o.DiscountCode = q.Code.Code
	}

	var usage discount.Usage
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.products.ReserveStock(ctx, reservations(o.Items)); err != nil {
			if errors.Is(err, product.ErrInsufficientStock) {
				return product.ErrInsufficientStock
			}
			return errors.Wrap(err, "reserve stock")
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if o.DiscountCodeID == nil {
			return nil
		}
		u, err := s.usage.Consume(ctx, *o.DiscountCodeID)
		if err != nil {
			return err
		}
		usage = u
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.Conflict {
			s.tel.conflict(ctx, "place_order")
		}
		return nil, err
	}

	s.tel.placed.Add(ctx, 1)
	s.notifier.Notify(ctx, event.Event{
		Type:       event.OrderPlaced,
		OrderID:    o.ID,
		ActorID:    p.UserID,
		Current:    string(o.Status),
		OccurredAt: now,
		Metadata: map[string]string{
			"total":    o.Total.StringFixed(discount.MoneyScale),
			"discount": o.DiscountAmount.StringFixed(discount.MoneyScale),
		},
	})
	if o.DiscountCodeID != nil {
		s.tel.redemptions.Add(ctx, 1)
		if usage.Exhausted() {
			s.notifier.Notify(ctx, event.Event{
				Type:       event.DiscountLimitReached,
				OrderID:    o.ID,
				DiscountID: *o.DiscountCodeID,
				OccurredAt: now,
				Metadata: map[string]string{
					"code":        o.DiscountCode,
					"usage_count": fmt.Sprint(usage.Count),
				},
			})
		}
	}
	return o, nil
}

func (s *Service) price(ctx context.Context, req QuoteRequest) (*Quote, error) {
	lines := mergeLines(req.Items)
	ids := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	found, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[uuid.UUID]product.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	var fs apperr.FieldSet
	q := &Quote{Subtotal: decimal.Zero, DiscountAmount: decimal.Zero}
	for i, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			fs.Add(fmt.Sprintf("items[%d].product_id", i), "product not found")
			continue
		}
		it := Item{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Title:     p.Title,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		}
		q.Items = append(q.Items, it)
		q.Subtotal = q.Subtotal.Add(it.Total())
	}
	if err := fs.Err(); err != nil {
		return nil, err
	}

	if code := discount.NormalizeCode(req.DiscountCode); code != "" {
		sellerID, err := discountSeller(q.Items, req.DiscountSellerID)
		if err != nil {
			return nil, err
		}
		var cart discount.Cart
		for _, it := range q.Items {
			if it.SellerID != sellerID {
				continue
			}
			cart = append(cart, discount.Line{
				ProductID:  it.ProductID,
				CategoryID: byID[it.ProductID].CategoryID,
				UnitPrice:  it.UnitPrice,
				Quantity:   it.Quantity,
			})
		}

		dc, err := s.codes.Validate(ctx, discount.Candidate{
			SellerID: sellerID,
			Code:     code,
			Subtotal: cart.Subtotal(),
			Lines:    cart,
		})
		if err != nil {
			return nil, err
		}
		if len(cart) == 0 {
			return nil, discount.ErrNotApplicable
		}
		d, err := s.applicator.Apply(dc, cart)
		if err != nil {
			return nil, err
		}
		q.Code = dc
		q.DiscountAmount = d.Amount
		q.FreeShipping = d.FreeShipping
	}

	q.Total = q.Subtotal.Sub(q.DiscountAmount)
	if q.Total.IsNegative() {
		q.Total = decimal.Zero
	}
	q.Total = q.Total.Round(discount.MoneyScale)
	q.Subtotal = q.Subtotal.Round(discount.MoneyScale)
	return q, nil
}

// discountSeller picks the seller whose code namespace the code is looked up
// in: the explicit one, or the only seller in the cart.
func discountSeller(items []Item, explicit uuid.UUID) (uuid.UUID, error) {
	if explicit != uuid.Nil {
		return explicit, nil
	}
	var sellers []uuid.UUID
	for _, it := range items {
		if !slices.Contains(sellers, it.SellerID) {
			sellers = append(sellers, it.SellerID)
		}
	}
	if len(sellers) == 1 {
		return sellers[0], nil
	}
	var fs apperr.FieldSet
	fs.Add("discount_seller_id", "is required when the cart holds items from several sellers")
	return uuid.Nil, fs.Err()
}

// mergeLines folds repeated products into one line, keeping first-seen order.
func mergeLines(in []LineRequest) []LineRequest {
	out := make([]LineRequest, 0, len(in))
	idx := make(map[uuid.UUID]int, len(in))
	for _, l := range in {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

func reservations(items []Item) []product.Reservation {
	out := make([]product.Reservation, len(items))
	for i, it := range items {
		out[i] = product.Reservation{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

// Get returns an order visible to the caller. Orders the caller may not view
// are reported as missing.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Order, error) {
	return s.load(ctx, p, id)
}

func (s *Service) load(ctx context.Context, p auth.Principal, id uuid.UUID) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if err := s.authz.Order(p, o.Access(), auth.ActionView); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// List returns the orders the caller may see: buyers their own, sellers
// those containing their items, admins all.
func (s *Service) List(ctx context.Context, p auth.Principal, f Filter) ([]Order, error) {
	scope, err := s.authz.OrderScope(p)
	if err != nil {
		return nil, err
	}
	if f.Status != nil && !f.Status.Valid() {
		var fs apperr.FieldSet
		fs.Add("status", "unknown order status")
		return nil, fs.Err()
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	f.Limit = min(f.Limit, maxListLimit)
	f.Offset = max(f.Offset, 0)

	orders, err := s.orders.List(ctx, scope, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus moves the order along the fulfilment axis. When
// expectedVersion is set the change only applies to that version.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id uuid.UUID, target Status, expectedVersion *int) (_ *Order, err error) {
	ctx, span := s.tel.start(ctx, "UpdateStatus")
	defer func() { end(span, err) }()

	if !target.Valid() {
		var fs apperr.FieldSet
		fs.Add("status", "unknown order status")
		return nil, fs.Err()
	}
	o, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	action := auth.ActionAdvance
	if target == StatusCanceled {
		action = auth.ActionCancel
	}
	if err := s.authz.Order(p, o.Access(), action); err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != o.Version {
		s.tel.conflict(ctx, "update_status")
		return nil, ErrVersionConflict
	}
	if err := s.transition(ctx, o, target, p.UserID); err != nil {
		return nil, err
	}
	return o, nil
}

// Cancel cancels the order, restoring stock and the discount code use.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id uuid.UUID, expectedVersion *int) (*Order, error) {
	return s.UpdateStatus(ctx, p, id, StatusCanceled, expectedVersion)
}

func (s *Service) transition(ctx context.Context, o *Order, target Status, actor uuid.UUID) error {
	if !o.Status.CanTransition(target) {
		s.tel.conflict(ctx, "transition")
		return ErrInvalidTransition
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		ok, err := s.orders.UpdateStatus(ctx, o.ID, target, o.Version)
		if err != nil {
			return errors.Wrap(err, "update status")
		}
		if !ok {
			return ErrVersionConflict
		}
		if target != StatusCanceled {
			return nil
		}
		if err := s.products.ReleaseStock(ctx, reservations(o.Items)); err != nil {
			return errors.Wrap(err, "release stock")
		}
		if o.DiscountCodeID != nil {
			if err := s.usage.Release(ctx, *o.DiscountCodeID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			s.tel.conflict(ctx, "transition")
		}
		return err
	}

	prev := o.Status
	o.Status = target
	o.Version++
	o.UpdatedAt = s.now()
	s.tel.transition(ctx, "fulfilment", string(target))
	s.notifier.Notify(ctx, event.Event{
		Type:       event.OrderStatusChanged,
		OrderID:    o.ID,
		ActorID:    actor,
		Previous:   string(prev),
		Current:    string(target),
		OccurredAt: o.UpdatedAt,
	})
	return nil
}

// ConfirmPayment marks the order paid. Redelivery of the same confirmation
// is a no-op. When amount is set it must equal the order total. A payment
// for a canceled order emits PaymentRefundRequired and fails with
// ErrPaidAfterCancel.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, reference string, amount decimal.NullDecimal) (*Order, error) {
	return s.settlePayment(ctx, id, PaymentPaid, reference, amount)
}

// FailPayment marks the order's payment failed. Stock and the code use stay
// reserved until the stale sweep cancels the order.
func (s *Service) FailPayment(ctx context.Context, id uuid.UUID, reference string) (*Order, error) {
	return s.settlePayment(ctx, id, PaymentFailed, reference, decimal.NullDecimal{})
}

func (s *Service) settlePayment(ctx context.Context, id uuid.UUID, target PaymentStatus, reference string, amount decimal.NullDecimal) (_ *Order, err error) {
	ctx, span := s.tel.start(ctx, "SettlePayment")
	defer func() { end(span, err) }()

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.PaymentStatus == target && o.PaymentReference == reference {
		return o, nil
	}
	if target == PaymentPaid && o.Status == StatusCanceled {
		captured := o.Total
		if amount.Valid {
			captured = amount.Decimal
		}
		s.tel.conflict(ctx, "payment")
		s.notifier.Notify(ctx, event.Event{
			Type:       event.PaymentRefundRequired,
			OrderID:    o.ID,
			Previous:   string(o.PaymentStatus),
			Current:    string(PaymentPaid),
			OccurredAt: s.now(),
			Metadata: map[string]string{
				"reference": reference,
				"amount":    captured.StringFixed(discount.MoneyScale),
			},
		})
		return nil, ErrPaidAfterCancel
	}
	if target == PaymentPaid && amount.Valid && !amount.Decimal.Equal(o.Total) {
		s.tel.conflict(ctx, "payment")
		return nil, ErrAmountMismatch
	}
	if o.Status == StatusCanceled || !o.PaymentStatus.CanTransition(target) {
		s.tel.conflict(ctx, "payment")
		return nil, ErrInvalidTransition
	}
	if err := s.updatePayment(ctx, o, target, reference, o.RefundedAmount, uuid.Nil); err != nil {
		return nil, err
	}
	return o, nil
}

// Refund records a full or partial refund of a paid order.
func (s *Service) Refund(ctx context.Context, p auth.Principal, id uuid.UUID, amount decimal.Decimal) (_ *Order, err error) {
	ctx, span := s.tel.start(ctx, "Refund")
	defer func() { end(span, err) }()

	o, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Order(p, o.Access(), auth.ActionRefund); err != nil {
		return nil, err
	}

	var fs apperr.FieldSet
	fs.Check(amount.IsPositive(), "amount", "must be positive")
	fs.Check(amount.Equal(amount.Round(discount.MoneyScale)), "amount", "must have at most 2 decimal places")
	fs.Check(amount.LessThanOrEqual(o.Total.Sub(o.RefundedAmount)), "amount", "exceeds the refundable amount")
	if err := fs.Err(); err != nil {
		return nil, err
	}

	refunded := o.RefundedAmount.Add(amount)
	target := PaymentPartiallyRefunded
	if refunded.Equal(o.Total) {
		target = PaymentRefunded
	}
	if !o.PaymentStatus.CanTransition(target) {
		s.tel.conflict(ctx, "refund")
		return nil, ErrInvalidTransition
	}
	if err := s.updatePayment(ctx, o, target, o.PaymentReference, refunded, p.UserID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) updatePayment(ctx context.Context, o *Order, target PaymentStatus, reference string, refunded decimal.Decimal, actor uuid.UUID) error {
	ok, err := s.orders.UpdatePayment(ctx, PaymentUpdate{
		OrderID:         o.ID,
		Status:          target,
		Reference:       reference,
		RefundedAmount:  refunded,
		ExpectedVersion: o.Version,
	})
	if err != nil {
		return errors.Wrap(err, "update payment")
	}
	if !ok {
		s.tel.conflict(ctx, "payment")
		return ErrVersionConflict
	}

	prev := o.PaymentStatus
	o.PaymentStatus = target
	o.PaymentReference = reference
	o.RefundedAmount = refunded
	o.Version++
	o.UpdatedAt = s.now()
	s.tel.transition(ctx, "payment", string(target))
	s.notifier.Notify(ctx, event.Event{
		Type:       event.PaymentStatusChanged,
		OrderID:    o.ID,
		ActorID:    actor,
		Previous:   string(prev),
		Current:    string(target),
		OccurredAt: o.UpdatedAt,
		Metadata: map[string]string{
			"reference":       reference,
			"refunded_amount": refunded.StringFixed(discount.MoneyScale),
		},
	})
	return nil
}

// CancelStale cancels up to limit orders that stayed pending without a
// successful payment for longer than ttl, returning how many were canceled.
// Orders that change concurrently are skipped.
func (s *Service) CancelStale(ctx context.Context, ttl time.Duration, limit int) (_ int, err error) {
	ctx, span := s.tel.start(ctx, "CancelStale")
	defer func() { end(span, err) }()

	ids, err := s.orders.ListStale(ctx, s.now().Add(-ttl), limit)
	if err != nil {
		return 0, errors.Wrap(err, "list stale orders")
	}
	canceled := 0
	for _, id := range ids {
		o, err := s.orders.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return canceled, errors.Wrap(err, "get order")
		}
		if !o.stale() {
			continue
		}
		if err := s.transition(ctx, o, StatusCanceled, uuid.Nil); err != nil {
			if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return canceled, errors.Wrapf(err, "cancel order %s", id)
		}
		canceled++
	}
	return canceled, nil
}
