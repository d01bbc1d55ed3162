// Package campaign groups a seller's discount codes under a promotion with
// its own validity window.
package campaign

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
)

// Type classifies a campaign.
type Type string

const (
	TypeFlashSale     Type = "flash_sale"
	TypeProductLaunch Type = "product_launch"
	TypeSeasonal      Type = "seasonal"
	TypeClearance     Type = "clearance"
	TypeBundleDeal    Type = "bundle_deal"
	TypeLoyalty       Type = "loyalty"
	TypeCustom        Type = "custom"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeFlashSale, TypeProductLaunch, TypeSeasonal, TypeClearance,
		TypeBundleDeal, TypeLoyalty, TypeCustom:
		return true
	default:
		return false
	}
}

// ErrNotFound is returned when a campaign does not exist or is not visible.
var ErrNotFound = apperr.New(apperr.NotFound, "campaign not found")

// Campaign is a seller promotion.
type Campaign struct {
	ID          uuid.UUID
	SellerID    uuid.UUID
	Name        string
	Description string
	Type        Type
	StartsAt    time.Time
	EndsAt      time.Time
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Running reports whether the campaign is active and now lies in its window.
func (c *Campaign) Running(now time.Time) bool {
	return c.Active && !now.Before(c.StartsAt) && !now.After(c.EndsAt)
}

// Repository persists campaigns.
type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*Campaign, error)
	// ListBySeller returns the seller's campaigns, newest first.
	ListBySeller(ctx context.Context, sellerID uuid.UUID, activeOnly bool) ([]Campaign, error)
}

// Transactor runs fn in a database transaction carried by the context.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
