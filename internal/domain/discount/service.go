package discount

import (
	"context"
	"crypto/rand"
	"io"
	"math/big"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
)

const (
	// DefaultGeneratedLength is the length of generated codes.
	DefaultGeneratedLength = 8
	maxCodeLength          = 32
	generateAttempts       = 5
	codeAlphabet           = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ErrCampaignMismatch is returned when a code does not fit its campaign.
var ErrCampaignMismatch = apperr.New(apperr.Invalid, "discount code must belong to the seller's campaign and lie within its dates")

// Repository persists discount codes.
type Repository interface {
	Finder
	UsageStore
	// Create stores a new code; ErrCodeExists when the seller already has it.
	Create(ctx context.Context, c *Code) error
	// Replace overwrites every editable field of an existing code and loads
	// the stored usage count into c. The write is refused with
	// ErrUsageBelowCount when c.UsageLimit is below that count.
	Replace(ctx context.Context, c *Code) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Code, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Code, error)
	Exists(ctx context.Context, sellerID uuid.UUID, code string) (bool, error)
}

// CampaignWindow is the part of a campaign a code must fit into.
type CampaignWindow struct {
	SellerID uuid.UUID
	StartsAt time.Time
	EndsAt   time.Time
}

// Campaigns resolves campaign windows.
type Campaigns interface {
	Window(ctx context.Context, id uuid.UUID) (CampaignWindow, error)
}

// Draft is the full editable state of a code. Updates replace every field.
type Draft struct {
	SellerID    uuid.UUID
	CampaignID  *uuid.UUID
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	Description string
	MinPurchase decimal.NullDecimal
	MaxDiscount decimal.NullDecimal
	UsageLimit  *int
	BuyQuantity int
	GetQuantity int
	ProductIDs  []uuid.UUID
	CategoryIDs []uuid.UUID
	StartsAt    time.Time
	EndsAt      time.Time
	Active      bool
}

// Validate reports every invalid field of d.
func (d Draft) Validate() error {
	var fs apperr.FieldSet
	code := NormalizeCode(d.Code)
	fs.Check(code != "", "code", "must not be empty")
	fs.Check(len(code) <= maxCodeLength, "code", "must be at most 32 characters")
	fs.Check(validCodeChars(code), "code", "must contain only letters, digits, '-' or '_'")
	fs.Check(d.Kind.Valid(), "discount_type", "unknown discount type")
	fs.Check(d.SellerID != uuid.Nil, "seller_id", "is required")
	fs.Check(d.EndsAt.After(d.StartsAt), "end_date", "must be after start_date")

	switch d.Kind {
	case KindFreeShipping:
		fs.Check(!d.Value.IsNegative(), "value", "must not be negative")
	case KindPercentage, KindBuyXGetY, KindBundled:
		fs.Check(d.Value.IsPositive() && d.Value.LessThanOrEqual(hundred), "value", "must be within (0, 100]")
	default:
		fs.Check(d.Value.IsPositive(), "value", "must be positive")
	}
	if d.Kind == KindBuyXGetY {
		fs.Check(d.BuyQuantity >= 1, "buy_quantity", "must be at least 1")
		fs.Check(d.GetQuantity >= 1, "get_quantity", "must be at least 1")
	}
	if d.Kind == KindBundled {
		fs.Check(len(d.ProductIDs) >= 2, "products", "a bundle needs at least two products")
	}
	if d.UsageLimit != nil {
		fs.Check(*d.UsageLimit >= 1, "usage_limit", "must be at least 1")
	}
	if d.MinPurchase.Valid {
		fs.Check(!d.MinPurchase.Decimal.IsNegative(), "min_purchase_amount", "must not be negative")
	}
	if d.MaxDiscount.Valid {
		fs.Check(d.MaxDiscount.Decimal.IsPositive(), "max_discount_amount", "must be positive")
	}
	return fs.Err()
}

func validCodeChars(code string) bool {
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Service manages sellers' discount codes.
type Service struct {
	codes     Repository
	campaigns Campaigns
	authz     *auth.Authorizer
	now       func() time.Time
	entropy   io.Reader
}

// NewService creates a discount code Service.
func NewService(codes Repository, campaigns Campaigns, authz *auth.Authorizer) *Service {
	return &Service{
		codes:     codes,
		campaigns: campaigns,
		authz:     authz,
		now:       time.Now,
		entropy:   rand.Reader,
	}
}

// Create stores a new code owned by d.SellerID.
func (s *Service) Create(ctx context.Context, p auth.Principal, d Draft) (*Code, error) {
	if err := s.authz.Discounts(p, d.SellerID); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkCampaign(ctx, d); err != nil {
		return nil, err
	}

	now := s.now()
	c := fromDraft(d)
	c.ID = uuid.New()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.codes.Create(ctx, c); err != nil {
		if errors.Is(err, ErrCodeExists) {
			return nil, ErrCodeExists
		}
		return nil, errors.Wrap(err, "create discount code")
	}
	return c, nil
}

// Update replaces every editable field of the code. Usage counters and
// ownership are kept.
func (s *Service) Update(ctx context.Context, p auth.Principal, id uuid.UUID, d Draft) (*Code, error) {
	existing, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	d.SellerID = existing.SellerID
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.UsageLimit != nil && *d.UsageLimit < existing.UsageCount {
		return nil, usageLimitTooLow()
	}
	if err := s.checkCampaign(ctx, d); err != nil {
		return nil, err
	}

	c := fromDraft(d)
	c.ID = existing.ID
	c.UsageCount = existing.UsageCount
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now()
	// Checkouts may have used the code since it was read; the store
	// rechecks the limit against its own count.
	if err := s.codes.Replace(ctx, c); err != nil {
		switch {
		case errors.Is(err, ErrUsageBelowCount):
			return nil, usageLimitTooLow()
		case errors.Is(err, ErrCodeExists), errors.Is(err, ErrCodeNotFound):
			return nil, err
		}
		return nil, errors.Wrap(err, "replace discount code")
	}
	return c, nil
}

func usageLimitTooLow() error {
	var fs apperr.FieldSet
	fs.Add("usage_limit", "must not be below the current usage count")
	return fs.Err()
}

// Deactivate switches a code off. Codes are never deleted.
func (s *Service) Deactivate(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}
	if err := s.codes.Deactivate(ctx, id); err != nil {
		return errors.Wrap(err, "deactivate discount code")
	}
	return nil
}

// Get returns a code the caller manages. Codes of other sellers are reported
// as missing.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Code, error) {
	c, err := s.codes.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, errors.Wrap(err, "get discount code")
	}
	if err := s.authz.Discounts(p, c.SellerID); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns the seller's codes.
func (s *Service) List(ctx context.Context, p auth.Principal, sellerID uuid.UUID) ([]Code, error) {
	if err := s.authz.Discounts(p, sellerID); err != nil {
		return nil, err
	}
	codes, err := s.codes.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, errors.Wrap(err, "list discount codes")
	}
	return codes, nil
}

// Generate returns a random code not yet used by the seller.
func (s *Service) Generate(ctx context.Context, p auth.Principal, sellerID uuid.UUID, length int) (string, error) {
	if err := s.authz.Discounts(p, sellerID); err != nil {
		return "", err
	}
	if length <= 0 {
		length = DefaultGeneratedLength
	}
	if length > maxCodeLength {
		var fs apperr.FieldSet
		fs.Add("length", "must be at most 32")
		return "", fs.Err()
	}

	for range generateAttempts {
		code, err := randomCode(s.entropy, length)
		if err != nil {
			return "", errors.Wrap(err, "generate code")
		}
		exists, err := s.codes.Exists(ctx, sellerID, code)
		if err != nil {
			return "", errors.Wrap(err, "check generated code")
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.Errorf("no unique code after %d attempts", generateAttempts)
}

func (s *Service) checkCampaign(ctx context.Context, d Draft) error {
	if d.CampaignID == nil {
		return nil
	}
	w, err := s.campaigns.Window(ctx, *d.CampaignID)
	if err != nil {
		return err
	}
	if w.SellerID != d.SellerID || d.StartsAt.Before(w.StartsAt) || d.EndsAt.After(w.EndsAt) {
		return ErrCampaignMismatch
	}
	return nil
}

func fromDraft(d Draft) *Code {
	return &Code{
		SellerID:    d.SellerID,
		CampaignID:  d.CampaignID,
		Code:        NormalizeCode(d.Code),
		Kind:        d.Kind,
		Value:       d.Value,
		Description: d.Description,
		MinPurchase: d.MinPurchase,
		MaxDiscount: d.MaxDiscount,
		UsageLimit:  d.UsageLimit,
		BuyQuantity: d.BuyQuantity,
		GetQuantity: d.GetQuantity,
		ProductIDs:  d.ProductIDs,
		CategoryIDs: d.CategoryIDs,
		StartsAt:    d.StartsAt,
		EndsAt:      d.EndsAt,
		Active:      d.Active,
	}
}

// randomCode draws each character uniformly from codeAlphabet.
func randomCode(src io.Reader, length int) (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(src, size)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
