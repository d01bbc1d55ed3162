package product

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
)

var (
	fixedNow = time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)
	sellerID = uuid.MustParse("5e11e400-0000-4000-8000-000000000001")
	category = uuid.MustParse("ca7e0000-0000-4000-8000-000000000001")
)

type memRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]Product
	// onUpdate runs under the lock before the stock check.
	onUpdate func(stored *Product)
}

func newMemRepo(items ...Product) *memRepo {
	r := &memRepo{items: make(map[uuid.UUID]Product)}
	for _, p := range items {
		r.items[p.ID] = p
	}
	return r
}

func (r *memRepo) List(context.Context) ([]Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Product
	for _, p := range r.items {
		out = append(out, p)
	}
	return out, nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *memRepo) GetByIDs(context.Context, []uuid.UUID) ([]Product, error) { return nil, nil }

func (r *memRepo) ReserveStock(context.Context, []Reservation) error { return nil }

func (r *memRepo) ReleaseStock(context.Context, []Reservation) error { return nil }

func (r *memRepo) Create(_ context.Context, p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.ID] = *p
	return nil
}

func (r *memRepo) Update(_ context.Context, p *Product, stockDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[p.ID]
	if !ok {
		return ErrNotFound
	}
	if r.onUpdate != nil {
		r.onUpdate(&stored)
	}
	if stored.Stock+stockDelta < 0 {
		return ErrInsufficientStock
	}
	p.Stock = stored.Stock + stockDelta
	r.items[p.ID] = *p
	return nil
}

func newTestService(items ...Product) (*Service, *memRepo) {
	repo := newMemRepo(items...)
	svc := NewService(repo, auth.NewAuthorizer())
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func seller() auth.Principal { return auth.Principal{UserID: sellerID, Role: auth.Seller} }

func validDraft() Draft {
	return Draft{
		SellerID:   sellerID,
		CategoryID: category,
		Title:      "  Ndop cloth  ",
		Price:      decimal.RequireFromString("15000"),
		Stock:      12,
	}
}

func listed() Product {
	return Product{
		ID:         uuid.New(),
		SellerID:   sellerID,
		CategoryID: category,
		Title:      "Penja pepper",
		Price:      decimal.RequireFromString("2500"),
		Stock:      10,
		CreatedAt:  fixedNow.Add(-24 * time.Hour),
		UpdatedAt:  fixedNow.Add(-24 * time.Hour),
	}
}

func fieldNames(err error) []string {
	var names []string
	for _, f := range apperr.FieldsOf(err) {
		names = append(names, f.Name)
	}
	return names
}

func TestDraft_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Draft)
		fields []string
	}{
		{name: "valid", mutate: func(*Draft) {}},
		{name: "short title", mutate: func(d *Draft) { d.Title = " ab " }, fields: []string{"title"}},
		{name: "zero price", mutate: func(d *Draft) { d.Price = decimal.Zero }, fields: []string{"price"}},
		{name: "fractional cents", mutate: func(d *Draft) { d.Price = decimal.RequireFromString("1.005") }, fields: []string{"price"}},
		{name: "negative stock", mutate: func(d *Draft) { d.Stock = -1 }, fields: []string{"stock"}},
		{
			name:   "missing references",
			mutate: func(d *Draft) { d.CategoryID, d.SellerID = uuid.Nil, uuid.Nil },
			fields: []string{"category_id", "seller_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)
			err := d.Validate()
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, apperr.Invalid, apperr.KindOf(err))
			assert.ElementsMatch(t, tt.fields, fieldNames(err))
		})
	}
}

func TestService_Create(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, seller(), validDraft())
	require.NoError(t, err)
	assert.Equal(t, "Ndop cloth", p.Title)
	assert.Equal(t, fixedNow, p.CreatedAt)
	assert.Contains(t, repo.items, p.ID)

	_, err = svc.Create(ctx, auth.Principal{UserID: uuid.New(), Role: auth.Seller}, validDraft())
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.Create(ctx, auth.Principal{UserID: sellerID, Role: auth.Customer}, validDraft())
	require.ErrorIs(t, err, auth.ErrForbidden)

	admin := auth.Principal{UserID: uuid.New(), Role: auth.Admin}
	p, err = svc.Create(ctx, admin, validDraft())
	require.NoError(t, err)
	assert.Equal(t, sellerID, p.SellerID)
}

func TestService_UpdateAppliesStockChange(t *testing.T) {
	existing := listed()
	svc, repo := newTestService(existing)
	ctx := context.Background()

	// Three units are sold while the seller edits the listing.
	repo.onUpdate = func(stored *Product) { stored.Stock -= 3 }

	d := validDraft()
	d.Title = "Penja white pepper"
	d.Stock = 15
	d.SellerID = uuid.New()
	p, err := svc.Update(ctx, seller(), existing.ID, d)
	require.NoError(t, err)
	assert.Equal(t, 12, p.Stock, "restock of 5 on top of 7 left")
	assert.Equal(t, sellerID, p.SellerID)
	assert.Equal(t, existing.CreatedAt, p.CreatedAt)
	assert.Equal(t, fixedNow, p.UpdatedAt)
	assert.Equal(t, "Penja white pepper", repo.items[existing.ID].Title)
}

func TestService_UpdateCannotUndersell(t *testing.T) {
	existing := listed()
	svc, repo := newTestService(existing)
	repo.onUpdate = func(stored *Product) { stored.Stock = 1 }

	d := validDraft()
	d.Stock = 0
	_, err := svc.Update(context.Background(), seller(), existing.ID, d)
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "Penja pepper", repo.items[existing.ID].Title)
}

func TestService_UpdateOwnership(t *testing.T) {
	existing := listed()
	svc, _ := newTestService(existing)
	ctx := context.Background()

	_, err := svc.Update(ctx, auth.Principal{UserID: uuid.New(), Role: auth.Seller}, existing.ID, validDraft())
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.Update(ctx, seller(), uuid.New(), validDraft())
	require.ErrorIs(t, err, ErrNotFound)

	d := validDraft()
	d.Price = decimal.RequireFromString("-1")
	_, err = svc.Update(ctx, seller(), existing.ID, d)
	assert.Equal(t, []string{"price"}, fieldNames(err))
}
