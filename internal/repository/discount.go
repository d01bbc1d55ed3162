package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/cameroon-mark/internal/domain/discount"
)

const (
	discountColumns = `id, seller_id, campaign_id, code, kind, value, description,
		min_purchase_amount, max_discount_amount, usage_limit, usage_count,
		buy_quantity, get_quantity, product_ids, category_ids,
		start_date, end_date, is_active, created_at, updated_at`

	findDiscountByCodeSQL = `SELECT ` + discountColumns + ` FROM discount_codes
		WHERE seller_id = $1 AND code = $2`

	getDiscountSQL = `SELECT ` + discountColumns + ` FROM discount_codes WHERE id = $1`

	listDiscountsSQL = `SELECT ` + discountColumns + ` FROM discount_codes
		WHERE seller_id = $1 ORDER BY created_at DESC, id`

	discountExistsSQL = `SELECT EXISTS (SELECT 1 FROM discount_codes WHERE seller_id = $1 AND code = $2)`

	insertDiscountSQL = `INSERT INTO discount_codes (` + discountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	replaceDiscountSQL = `UPDATE discount_codes SET
		campaign_id = $2, code = $3, kind = $4, value = $5, description = $6,
		min_purchase_amount = $7, max_discount_amount = $8, usage_limit = $9,
		buy_quantity = $10, get_quantity = $11, product_ids = $12, category_ids = $13,
		start_date = $14, end_date = $15, is_active = $16, updated_at = $17
		WHERE id = $1 AND ($9::int IS NULL OR usage_count <= $9::int)
		RETURNING usage_count`

	discountIDExistsSQL = `SELECT EXISTS (SELECT 1 FROM discount_codes WHERE id = $1)`

	deactivateDiscountSQL = `UPDATE discount_codes SET is_active = FALSE, updated_at = now() WHERE id = $1`

	// The row is only touched while a use is left, so concurrent checkouts
	// can never push usage_count past usage_limit.
	incrementUsageSQL = `UPDATE discount_codes SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)
		RETURNING usage_count, usage_limit`

	decrementUsageSQL = `UPDATE discount_codes SET usage_count = GREATEST(usage_count - 1, 0), updated_at = now()
		WHERE id = $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	db *DB
}

// NewDiscountRepository returns a DiscountRepository on db.
func NewDiscountRepository(db *DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// FindByCode looks a code up in the seller's namespace. The code must
// already be normalized.
func (r *DiscountRepository) FindByCode(ctx context.Context, sellerID uuid.UUID, code string) (*discount.Code, error) {
	return r.one(ctx, findDiscountByCodeSQL, sellerID, code)
}

// Get returns a code by id.
func (r *DiscountRepository) Get(ctx context.Context, id uuid.UUID) (*discount.Code, error) {
	return r.one(ctx, getDiscountSQL, id)
}

func (r *DiscountRepository) one(ctx context.Context, sql string, args ...any) (*discount.Code, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying discount code: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrCodeNotFound
		}
		return nil, fmt.Errorf("scanning discount code: %w", err)
	}
	return &c, nil
}

// ListBySeller returns the seller's codes, newest first.
func (r *DiscountRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]discount.Code, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listDiscountsSQL, sellerID)
	if err != nil {
		return nil, fmt.Errorf("listing discount codes: %w", err)
	}
	return pgx.CollectRows(rows, scanDiscount)
}

// Exists reports whether the seller already has code.
func (r *DiscountRepository) Exists(ctx context.Context, sellerID uuid.UUID, code string) (bool, error) {
	var exists bool
	if err := r.db.conn(ctx).QueryRow(ctx, discountExistsSQL, sellerID, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking discount code: %w", err)
	}
	return exists, nil
}

// Create inserts c. A duplicate code for the seller yields discount.ErrCodeExists.
func (r *DiscountRepository) Create(ctx context.Context, c *discount.Code) error {
	_, err := r.db.conn(ctx).Exec(ctx, insertDiscountSQL,
		c.ID, c.SellerID, c.CampaignID, c.Code, string(c.Kind), c.Value, c.Description,
		c.MinPurchase, c.MaxDiscount, c.UsageLimit, c.UsageCount,
		c.BuyQuantity, c.GetQuantity, nonNil(c.ProductIDs), nonNil(c.CategoryIDs),
		c.StartsAt, c.EndsAt, c.Active, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return discount.ErrCodeExists
		}
		return fmt.Errorf("inserting discount code %s: %w", c.Code, err)
	}
	return nil
}

// Replace overwrites the editable fields of c. Usage, ownership and
// creation time are left untouched.
func (r *DiscountRepository) Replace(ctx context.Context, c *discount.Code) error {
	conn := r.db.conn(ctx)
	err := conn.QueryRow(ctx, replaceDiscountSQL,
		c.ID, c.CampaignID, c.Code, string(c.Kind), c.Value, c.Description,
		c.MinPurchase, c.MaxDiscount, c.UsageLimit,
		c.BuyQuantity, c.GetQuantity, nonNil(c.ProductIDs), nonNil(c.CategoryIDs),
		c.StartsAt, c.EndsAt, c.Active, c.UpdatedAt,
	).Scan(&c.UsageCount)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return discount.ErrCodeExists
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("replacing discount code %s: %w", c.ID, err)
	}

	// No row matched: either the code is gone or its usage passed the limit.
	var exists bool
	if err := conn.QueryRow(ctx, discountIDExistsSQL, c.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking discount code %s: %w", c.ID, err)
	}
	if exists {
		return discount.ErrUsageBelowCount
	}
	return discount.ErrCodeNotFound
}

// Deactivate switches the code off.
func (r *DiscountRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.conn(ctx).Exec(ctx, deactivateDiscountSQL, id)
	if err != nil {
		return fmt.Errorf("deactivating discount code %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrCodeNotFound
	}
	return nil
}

// IncrementUsage takes one use if any is left.
func (r *DiscountRepository) IncrementUsage(ctx context.Context, id uuid.UUID) (discount.Usage, bool, error) {
	var u discount.Usage
	err := r.db.conn(ctx).QueryRow(ctx, incrementUsageSQL, id).Scan(&u.Count, &u.Limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discount.Usage{}, false, nil
		}
		return discount.Usage{}, false, fmt.Errorf("incrementing usage of %s: %w", id, err)
	}
	return u, true, nil
}

// DecrementUsage gives one use back, never below zero.
func (r *DiscountRepository) DecrementUsage(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.conn(ctx).Exec(ctx, decrementUsageSQL, id); err != nil {
		return fmt.Errorf("decrementing usage of %s: %w", id, err)
	}
	return nil
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func scanDiscount(row pgx.CollectableRow) (discount.Code, error) {
	var (
		c    discount.Code
		kind string
	)
	err := row.Scan(
		&c.ID, &c.SellerID, &c.CampaignID, &c.Code, &kind, &c.Value, &c.Description,
		&c.MinPurchase, &c.MaxDiscount, &c.UsageLimit, &c.UsageCount,
		&c.BuyQuantity, &c.GetQuantity, &c.ProductIDs, &c.CategoryIDs,
		&c.StartsAt, &c.EndsAt, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Kind = discount.Kind(kind)
	return c, err
}
