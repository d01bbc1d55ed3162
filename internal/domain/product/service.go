package product

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
)

const (
	minTitleLength = 3
	maxTitleLength = 100
)

// Draft is the seller's input for a listing.
type Draft struct {
	SellerID   uuid.UUID
	CategoryID uuid.UUID
	Title      string
	Price      decimal.Decimal
	Stock      int
	ImageURL   string
}

// Validate reports every invalid field of d.
func (d Draft) Validate() error {
	var fs apperr.FieldSet
	n := utf8.RuneCountInString(strings.TrimSpace(d.Title))
	fs.Check(n >= minTitleLength && n <= maxTitleLength, "title", "must be between 3 and 100 characters")
	fs.Check(d.Price.IsPositive(), "price", "must be positive")
	fs.Check(d.Price.Exponent() >= -2, "price", "must have at most 2 decimal places")
	fs.Check(d.Stock >= 0, "stock", "must not be negative")
	fs.Check(d.CategoryID != uuid.Nil, "category_id", "is required")
	fs.Check(d.SellerID != uuid.Nil, "seller_id", "is required")
	return fs.Err()
}

// Service serves the catalog and lets sellers maintain their listings.
type Service struct {
	products Repository
	authz    *auth.Authorizer
	now      func() time.Time
}

// NewService creates a product Service.
func NewService(products Repository, authz *auth.Authorizer) *Service {
	return &Service{
		products: products,
		authz:    authz,
		now:      time.Now,
	}
}

// List returns the catalog, newest first.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	list, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return list, nil
}

// GetByID returns a single product.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get product")
	}
	return p, nil
}

// Create lists a new product for d.SellerID.
func (s *Service) Create(ctx context.Context, p auth.Principal, d Draft) (*Product, error) {
	if err := s.authz.Catalog(p, d.SellerID); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	out := &Product{
		ID:         uuid.New(),
		SellerID:   d.SellerID,
		CategoryID: d.CategoryID,
		Title:      strings.TrimSpace(d.Title),
		Price:      d.Price,
		Stock:      d.Stock,
		ImageURL:   d.ImageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.products.Create(ctx, out); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return out, nil
}

// Update replaces the listing fields of a product. The stock in d is
// applied as the change from the stock read here, so units reserved by
// checkouts in the meantime stay reserved.
func (s *Service) Update(ctx context.Context, p auth.Principal, id uuid.UUID, d Draft) (*Product, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Catalog(p, existing.SellerID); err != nil {
		return nil, err
	}
	d.SellerID = existing.SellerID
	if err := d.Validate(); err != nil {
		return nil, err
	}

	out := *existing
	out.CategoryID = d.CategoryID
	out.Title = strings.TrimSpace(d.Title)
	out.Price = d.Price
	out.ImageURL = d.ImageURL
	out.UpdatedAt = s.now()
	if err := s.products.Update(ctx, &out, d.Stock-existing.Stock); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInsufficientStock) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update product")
	}
	return &out, nil
}
