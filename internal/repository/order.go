package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/order"
)

const (
	orderColumns = `id, buyer_id, subtotal, discount_amount, total_amount, discount_code_id, discount_code,
		free_shipping, status, payment_status, payment_method, payment_reference, refunded_amount,
		ship_name, ship_line1, ship_line2, ship_city, ship_postal_code, ship_country, ship_phone,
		version, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, line_no, product_id, seller_id, title, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	orderItemsSQL = `SELECT order_id, product_id, seller_id, title, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`

	// $1 scope kind, $2 scope user, $3 status filter or NULL.
	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders o
		WHERE ($1::text = 'all'
			OR ($1::text = 'buyer' AND o.buyer_id = $2)
			OR ($1::text = 'seller' AND EXISTS (
				SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.seller_id = $2)))
		AND ($3::text IS NULL OR o.status = $3)
		ORDER BY o.created_at DESC, o.id
		LIMIT $4 OFFSET $5`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3`

	updateOrderPaymentSQL = `UPDATE orders SET payment_status = $2, payment_reference = $3, refunded_amount = $4,
		version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $5`

	listStaleOrdersSQL = `SELECT id FROM orders
		WHERE status = 'pending' AND payment_status IN ('pending', 'failed') AND created_at < $1
		ORDER BY created_at LIMIT $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository on db.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order header and its items in one batch. It is meant to
// run inside RunInTx together with the stock and usage changes.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	s := o.Shipping
	b := &pgx.Batch{}
	b.Queue(insertOrderSQL,
		o.ID, o.BuyerID, o.Subtotal, o.DiscountAmount, o.Total, o.DiscountCodeID, o.DiscountCode,
		o.FreeShipping, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod),
		o.PaymentReference, o.RefundedAmount,
		s.Name, s.Line1, s.Line2, s.City, s.PostalCode, s.Country, s.Phone,
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	for i, it := range o.Items {
		b.Queue(insertOrderItemSQL, o.ID, i+1, it.ProductID, it.SellerID, it.Title, it.Quantity, it.UnitPrice)
	}

	br := r.db.conn(ctx).SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("creating order %s: %w", o.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("creating order %s: %w", o.ID, err)
	}
	return nil
}

// Get returns an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	orders := []order.Order{o}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns the orders visible in scope, newest first.
func (r *OrderRepository) List(ctx context.Context, scope auth.OrderScope, f order.Filter) ([]order.Order, error) {
	var kind string
	switch scope.Kind {
	case auth.ScopeBuyer:
		kind = "buyer"
	case auth.ScopeSeller:
		kind = "seller"
	case auth.ScopeAll:
		kind = "all"
	default:
		return nil, nil
	}
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	rows, err := r.db.conn(ctx).Query(ctx, listOrdersSQL, kind, scope.UserID, status, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.db.conn(ctx).Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID uuid.UUID
			it      order.Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.SellerID, &it.Title, &it.Quantity, &it.UnitPrice); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	return nil
}

// UpdateStatus sets the fulfilment status if the version still matches.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status order.Status, expectedVersion int) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, updateOrderStatusSQL, id, string(status), expectedVersion)
	if err != nil {
		return false, fmt.Errorf("updating status of order %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePayment applies u if the version still matches.
func (r *OrderRepository) UpdatePayment(ctx context.Context, u order.PaymentUpdate) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, updateOrderPaymentSQL,
		u.OrderID, string(u.Status), u.Reference, u.RefundedAmount, u.ExpectedVersion)
	if err != nil {
		return false, fmt.Errorf("updating payment of order %s: %w", u.OrderID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListStale returns pending orders whose payment is pending or failed,
// created before the cutoff, oldest first.
func (r *OrderRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listStaleOrdersSQL, before, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stale orders: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                       order.Order
		status, payment, method string
	)
	s := &o.Shipping
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.Subtotal, &o.DiscountAmount, &o.Total, &o.DiscountCodeID, &o.DiscountCode,
		&o.FreeShipping, &status, &payment, &method, &o.PaymentReference, &o.RefundedAmount,
		&s.Name, &s.Line1, &s.Line2, &s.City, &s.PostalCode, &s.Country, &s.Phone,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(payment)
	o.PaymentMethod = order.PaymentMethod(method)
	return o, err
}
