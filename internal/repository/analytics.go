package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/cameroon-mark/internal/domain/analytics"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
)

// Every query takes $1 seller, $2 range start and $3 range end (exclusive).
const (
	sellerLinesFrom = ` FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE i.seller_id = $1 AND o.created_at >= $2 AND o.created_at < $3 AND o.status <> 'canceled'`

	salesTotalsSQL = `SELECT count(DISTINCT o.id), COALESCE(sum(i.quantity), 0),
		COALESCE(sum(i.unit_price * i.quantity), 0),
		(SELECT COALESCE(sum(d.discount_amount), 0) FROM orders d
			JOIN discount_codes c ON c.id = d.discount_code_id
			WHERE c.seller_id = $1 AND d.created_at >= $2 AND d.created_at < $3 AND d.status <> 'canceled')` +
		sellerLinesFrom

	monthlySalesSQL = `SELECT date_trunc('month', o.created_at AT TIME ZONE 'UTC') AS month,
		count(DISTINCT o.id), sum(i.unit_price * i.quantity)` +
		sellerLinesFrom + `
		GROUP BY month ORDER BY month`

	// Titles come from the order lines, so renamed products keep the title
	// they were sold under.
	topProductsSQL = `SELECT i.product_id, min(i.title), sum(i.quantity), sum(i.unit_price * i.quantity) AS revenue` +
		sellerLinesFrom + `
		GROUP BY i.product_id ORDER BY revenue DESC, i.product_id LIMIT $4`

	codeUsageSQL = `SELECT c.id, c.code, c.kind, c.is_active, c.usage_count, c.usage_limit,
		count(o.id), COALESCE(sum(o.discount_amount), 0) AS given, COALESCE(sum(o.total_amount), 0)
		FROM discount_codes c
		LEFT JOIN orders o ON o.discount_code_id = c.id
			AND o.created_at >= $2 AND o.created_at < $3 AND o.status <> 'canceled'
		WHERE c.seller_id = $1
		GROUP BY c.id
		ORDER BY given DESC, c.code`
)

var _ analytics.Repository = (*AnalyticsRepository)(nil)

// AnalyticsRepository implements analytics.Repository with aggregate queries
// over orders, order_items and discount_codes.
type AnalyticsRepository struct {
	db *DB
}

// NewAnalyticsRepository returns an AnalyticsRepository on db.
func NewAnalyticsRepository(db *DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func (r *AnalyticsRepository) SalesTotals(ctx context.Context, sellerID uuid.UUID, rng analytics.Range) (analytics.Totals, error) {
	var t analytics.Totals
	err := r.db.conn(ctx).QueryRow(ctx, salesTotalsSQL, sellerID, rng.From, rng.To).
		Scan(&t.Orders, &t.Units, &t.Revenue, &t.Discount)
	if err != nil {
		return t, fmt.Errorf("querying sales totals: %w", err)
	}
	return t, nil
}

func (r *AnalyticsRepository) MonthlySales(ctx context.Context, sellerID uuid.UUID, rng analytics.Range) ([]analytics.Month, error) {
	rows, err := r.db.conn(ctx).Query(ctx, monthlySalesSQL, sellerID, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("querying monthly sales: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.Month, error) {
		var m analytics.Month
		err := row.Scan(&m.Start, &m.Orders, &m.Revenue)
		return m, err
	})
}

func (r *AnalyticsRepository) TopProducts(ctx context.Context, sellerID uuid.UUID, rng analytics.Range, limit int) ([]analytics.ProductSales, error) {
	rows, err := r.db.conn(ctx).Query(ctx, topProductsSQL, sellerID, rng.From, rng.To, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.ProductSales, error) {
		var p analytics.ProductSales
		err := row.Scan(&p.ProductID, &p.Title, &p.Units, &p.Revenue)
		return p, err
	})
}

func (r *AnalyticsRepository) CodeUsage(ctx context.Context, sellerID uuid.UUID, rng analytics.Range) ([]analytics.CodeUsage, error) {
	rows, err := r.db.conn(ctx).Query(ctx, codeUsageSQL, sellerID, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("querying code usage: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.CodeUsage, error) {
		var (
			u    analytics.CodeUsage
			kind string
		)
		err := row.Scan(&u.CodeID, &u.Code, &kind, &u.Active, &u.UsageCount, &u.UsageLimit,
			&u.Orders, &u.Discount, &u.Revenue)
		u.Kind = discount.Kind(kind)
		return u, err
	})
}
