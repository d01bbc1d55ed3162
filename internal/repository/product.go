package repository

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/cameroon-mark/internal/domain/product"
)

const (
	productColumns = `id, seller_id, category_id, title, price, stock, image_url, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	reserveStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	releaseStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertProductSQL = createProductSQL + ` ON CONFLICT (id) DO NOTHING`

	// Stock moves by a delta so reservations made since the caller read the
	// product are kept.
	updateProductSQL = `UPDATE products SET
		category_id = $2, title = $3, price = $4, image_url = $5,
		stock = stock + $6, updated_at = $7
		WHERE id = $1 AND stock + $6 >= 0
		RETURNING stock`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository on db.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns the catalog, newest first.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %s: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %s: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ReserveStock decrements stock with one conditional update per product.
// Rows are locked in id order so concurrent checkouts cannot deadlock.
func (r *ProductRepository) ReserveStock(ctx context.Context, items []product.Reservation) error {
	q := r.db.conn(ctx)
	for _, it := range sortedReservations(items) {
		tag, err := q.Exec(ctx, reserveStockSQL, it.ProductID, it.Quantity)
		if err != nil {
			return fmt.Errorf("reserving stock of %s: %w", it.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return product.ErrInsufficientStock
		}
	}
	return nil
}

// ReleaseStock returns reserved units to stock.
func (r *ProductRepository) ReleaseStock(ctx context.Context, items []product.Reservation) error {
	q := r.db.conn(ctx)
	for _, it := range sortedReservations(items) {
		if _, err := q.Exec(ctx, releaseStockSQL, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("releasing stock of %s: %w", it.ProductID, err)
		}
	}
	return nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.db.conn(ctx).Exec(ctx, createProductSQL,
		p.ID, p.SellerID, p.CategoryID, p.Title, p.Price, p.Stock, p.ImageURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating product %s: %w", p.ID, err)
	}
	return nil
}

// Update overwrites the listing fields and shifts stock by stockDelta.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product, stockDelta int) error {
	conn := r.db.conn(ctx)
	err := conn.QueryRow(ctx, updateProductSQL,
		p.ID, p.CategoryID, p.Title, p.Price, p.ImageURL, stockDelta, p.UpdatedAt,
	).Scan(&p.Stock)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("updating product %s: %w", p.ID, err)
	}

	var exists bool
	if err := conn.QueryRow(ctx, productExistsSQL, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %s: %w", p.ID, err)
	}
	if exists {
		return product.ErrInsufficientStock
	}
	return product.ErrNotFound
}

// CreateIfAbsent inserts p unless a product with its id exists.
func (r *ProductRepository) CreateIfAbsent(ctx context.Context, p *product.Product) error {
	_, err := r.db.conn(ctx).Exec(ctx, insertProductSQL,
		p.ID, p.SellerID, p.CategoryID, p.Title, p.Price, p.Stock, p.ImageURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting product %s: %w", p.ID, err)
	}
	return nil
}

func sortedReservations(items []product.Reservation) []product.Reservation {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b product.Reservation) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return sorted
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.SellerID, &p.CategoryID, &p.Title, &p.Price, &p.Stock,
		&p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
