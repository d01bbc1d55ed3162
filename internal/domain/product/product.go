package product

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = apperr.New(apperr.NotFound, "product not found")
	// ErrInsufficientStock is returned when a reservation exceeds the stock.
	ErrInsufficientStock = apperr.New(apperr.Conflict, "insufficient stock")
)

// Product is a catalog item listed by a seller.
type Product struct {
	ID         uuid.UUID
	SellerID   uuid.UUID
	CategoryID uuid.UUID
	Title      string
	Price      decimal.Decimal
	Stock      int
	ImageURL   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Reservation takes Quantity units of a product out of stock.
type Reservation struct {
	ProductID uuid.UUID
	Quantity  int
}

// Inventory is the part of the catalog checkout works with.
type Inventory interface {
	// GetByIDs returns the products that exist; missing ids are skipped.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	// ReserveStock decrements stock for every reservation and returns
	// ErrInsufficientStock when any product runs short. It is meant to run
	// inside the checkout transaction so a shortage rolls everything back.
	ReserveStock(ctx context.Context, items []Reservation) error
	// ReleaseStock returns reserved units to stock.
	ReleaseStock(ctx context.Context, items []Reservation) error
}

// Repository is the product catalog with stock accounting.
type Repository interface {
	Inventory
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	Create(ctx context.Context, p *Product) error
	// Update overwrites the listing fields of p and adds stockDelta to the
	// stored stock, loading the result into p.Stock. It returns
	// ErrInsufficientStock when the stock would drop below zero.
	Update(ctx context.Context, p *Product, stockDelta int) error
}
