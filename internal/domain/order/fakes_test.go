package order

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
	"github.com/xenking/cameroon-mark/internal/domain/event"
	"github.com/xenking/cameroon-mark/internal/domain/product"
)

// memDB is an in-memory store shared by the fake repositories. Transactions
// are serialized and roll back by restoring a snapshot.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products map[uuid.UUID]product.Product
	orders   map[uuid.UUID]Order
	codes    map[uuid.UUID]discount.Code
}

func newMemDB() *memDB {
	return &memDB{
		products: make(map[uuid.UUID]product.Product),
		orders:   make(map[uuid.UUID]Order),
		codes:    make(map[uuid.UUID]discount.Code),
	}
}

func (db *memDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	products := maps.Clone(db.products)
	orders := maps.Clone(db.orders)
	codes := maps.Clone(db.codes)
	db.mu.Unlock()

	if err := fn(ctx); err != nil {
		db.mu.Lock()
		db.products, db.orders, db.codes = products, orders, codes
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *memDB) addProduct(p product.Product) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.products[p.ID] = p
}

func (db *memDB) stock(id uuid.UUID) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.products[id].Stock
}

func (db *memDB) addCode(c discount.Code) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.codes[c.ID] = c
}

func (db *memDB) usage(id uuid.UUID) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.codes[id].UsageCount
}

func (db *memDB) orderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.orders)
}

func (db *memDB) backdate(id uuid.UUID, at time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.orders[id]
	o.CreatedAt = at
	db.orders[id] = o
}

type productRepo struct{ *memDB }

func (r productRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r productRepo) ReserveStock(_ context.Context, items []product.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		p := r.products[it.ProductID]
		if p.Stock < it.Quantity {
			return product.ErrInsufficientStock
		}
		p.Stock -= it.Quantity
		r.products[it.ProductID] = p
	}
	return nil
}

func (r productRepo) ReleaseStock(_ context.Context, items []product.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		p := r.products[it.ProductID]
		p.Stock += it.Quantity
		r.products[it.ProductID] = p
	}
	return nil
}

type orderRepo struct{ *memDB }

func (r orderRepo) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = *o
	return nil
}

func (r orderRepo) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r orderRepo) List(_ context.Context, scope auth.OrderScope, f Filter) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		switch scope.Kind {
		case auth.ScopeBuyer:
			if o.BuyerID != scope.UserID {
				continue
			}
		case auth.ScopeSeller:
			if !slices.Contains(o.SellerIDs(), scope.UserID) {
				continue
			}
		case auth.ScopeAll:
		default:
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (r orderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status, expectedVersion int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Version != expectedVersion {
		return false, nil
	}
	o.Status = status
	o.Version++
	r.orders[id] = o
	return true, nil
}

func (r orderRepo) UpdatePayment(_ context.Context, u PaymentUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[u.OrderID]
	if !ok || o.Version != u.ExpectedVersion {
		return false, nil
	}
	o.PaymentStatus = u.Status
	o.PaymentReference = u.Reference
	o.RefundedAmount = u.RefundedAmount
	o.Version++
	r.orders[u.OrderID] = o
	return true, nil
}

func (r orderRepo) ListStale(_ context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for _, o := range r.orders {
		if o.stale() && o.CreatedAt.Before(before) {
			out = append(out, o.ID)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type codeRepo struct{ *memDB }

func (r codeRepo) FindByCode(_ context.Context, sellerID uuid.UUID, code string) (*discount.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.SellerID == sellerID && c.Code == code {
			return &c, nil
		}
	}
	return nil, discount.ErrCodeNotFound
}

func (r codeRepo) IncrementUsage(_ context.Context, id uuid.UUID) (discount.Usage, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.codes[id]
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return discount.Usage{}, false, nil
	}
	c.UsageCount++
	r.codes[id] = c
	return discount.Usage{Count: c.UsageCount, Limit: c.UsageLimit}, true, nil
}

func (r codeRepo) DecrementUsage(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.codes[id]
	if c.UsageCount > 0 {
		c.UsageCount--
	}
	r.codes[id] = c
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e event.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) ofType(t event.Type) []event.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []event.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
