package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/user"
)

const (
	userColumns = `id, email, password_hash, name, location, phone, role, created_at, updated_at`

	insertUserSQL = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	getUserByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	swapUserRoleSQL = `UPDATE users SET role = $3, updated_at = now() WHERE id = $1 AND role = $2`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db *DB
}

// NewUserRepository returns a UserRepository on db.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts u.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.db.conn(ctx).Exec(ctx, insertUserSQL,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Location, u.Phone, u.Role.String(), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetByID returns a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.one(ctx, getUserByIDSQL, id)
}

// GetByEmail returns the user registered under email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.one(ctx, getUserByEmailSQL, email)
}

func (r *UserRepository) one(ctx context.Context, sql string, arg any) (*user.User, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// SwapRole changes the role from one value to another in a single statement.
func (r *UserRepository) SwapRole(ctx context.Context, id uuid.UUID, from, to auth.Role) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, swapUserRoleSQL, id, from.String(), to.String())
	if err != nil {
		return false, fmt.Errorf("changing role of user %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u    user.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Location, &u.Phone,
		&role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return user.User{}, err
	}
	r, err := auth.ParseRole(role)
	if err != nil {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Role = r
	return u, nil
}
