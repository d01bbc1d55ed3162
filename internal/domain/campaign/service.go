package campaign

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
)

// Codes creates discount codes. *discount.Service satisfies it.
type Codes interface {
	Create(ctx context.Context, p auth.Principal, d discount.Draft) (*discount.Code, error)
}

// Draft is the input for a new campaign.
type Draft struct {
	SellerID    uuid.UUID
	Name        string
	Description string
	Type        Type
	StartsAt    time.Time
	EndsAt      time.Time
	Active      bool
	// Discount, when set, is created together with the campaign and
	// inherits its seller, dates and active flag.
	Discount *discount.Draft
}

// Validate reports every invalid field of d.
func (d Draft) Validate() error {
	var fs apperr.FieldSet
	fs.Check(strings.TrimSpace(d.Name) != "", "name", "must not be empty")
	fs.Check(d.Type.Valid(), "campaign_type", "unknown campaign type")
	fs.Check(d.SellerID != uuid.Nil, "seller_id", "is required")
	fs.Check(d.EndsAt.After(d.StartsAt), "end_date", "must be after start_date")
	return fs.Err()
}

// Created is a new campaign with the code created alongside it, if any.
type Created struct {
	Campaign *Campaign
	Code     *discount.Code
}

// Service manages seller campaigns.
type Service struct {
	campaigns Repository
	codes     Codes
	tx        Transactor
	authz     *auth.Authorizer
	now       func() time.Time
}

// NewService creates a campaign Service.
func NewService(campaigns Repository, codes Codes, tx Transactor, authz *auth.Authorizer) *Service {
	return &Service{
		campaigns: campaigns,
		codes:     codes,
		tx:        tx,
		authz:     authz,
		now:       time.Now,
	}
}

// Create stores a campaign and its optional discount code in one transaction.
func (s *Service) Create(ctx context.Context, p auth.Principal, d Draft) (*Created, error) {
	if err := s.authz.Discounts(p, d.SellerID); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	c := &Campaign{
		ID:          uuid.New(),
		SellerID:    d.SellerID,
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Type:        d.Type,
		StartsAt:    d.StartsAt,
		EndsAt:      d.EndsAt,
		Active:      d.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	out := &Created{Campaign: c}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.campaigns.Create(ctx, c); err != nil {
			return errors.Wrap(err, "create campaign")
		}
		if d.Discount == nil {
			return nil
		}
		code := *d.Discount
		code.SellerID = c.SellerID
		code.CampaignID = &c.ID
		code.StartsAt = c.StartsAt
		code.EndsAt = c.EndsAt
		code.Active = c.Active

		created, err := s.codes.Create(ctx, p, code)
		if err != nil {
			return err
		}
		out.Code = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a campaign the caller manages.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Campaign, error) {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get campaign")
	}
	if err := s.authz.Discounts(p, c.SellerID); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns the seller's campaigns. With activeOnly, only campaigns that
// are switched on and currently running are returned.
func (s *Service) List(ctx context.Context, p auth.Principal, sellerID uuid.UUID, activeOnly bool) ([]Campaign, error) {
	if err := s.authz.Discounts(p, sellerID); err != nil {
		return nil, err
	}
	list, err := s.campaigns.ListBySeller(ctx, sellerID, activeOnly)
	if err != nil {
		return nil, errors.Wrap(err, "list campaigns")
	}
	if !activeOnly {
		return list, nil
	}
	now := s.now()
	running := list[:0]
	for _, c := range list {
		if c.Running(now) {
			running = append(running, c)
		}
	}
	return running, nil
}
