package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator checks whether a code may be used for a candidate purchase.
// It never changes usage counts, so it is safe to call any number of times.
type Validator struct {
	codes Finder
	now   func() time.Time
}

// NewValidator creates a Validator backed by codes.
func NewValidator(codes Finder) *Validator {
	return &Validator{codes: codes, now: time.Now}
}

// Validate looks the code up in the seller's namespace and runs every check.
func (v *Validator) Validate(ctx context.Context, c Candidate) (*Code, error) {
	code, err := v.codes.FindByCode(ctx, c.SellerID, NormalizeCode(c.Code))
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, errors.Wrap(err, "lookup discount code")
	}
	if err := Check(code, c, v.now()); err != nil {
		return nil, err
	}
	return code, nil
}

// Check runs the eligibility checks in order and reports the first failure.
// The validity window is inclusive at both ends.
func Check(code *Code, c Candidate, now time.Time) error {
	if !code.Active {
		return ErrCodeInactive
	}
	if now.Before(code.StartsAt) {
		return ErrCodeNotStarted
	}
	if now.After(code.EndsAt) {
		return ErrCodeExpired
	}
	if code.UsageLimit != nil && code.UsageCount >= *code.UsageLimit {
		return ErrUsageLimitReached
	}
	if code.MinPurchase.Valid && c.Subtotal.LessThan(code.MinPurchase.Decimal) {
		return ErrMinimumNotMet
	}
	if code.Restricted() && !anyEligible(code, c.Lines) {
		return ErrNotApplicable
	}
	return nil
}

func anyEligible(code *Code, lines Cart) bool {
	for _, l := range lines {
		if code.Eligible(l) {
			return true
		}
	}
	return false
}
