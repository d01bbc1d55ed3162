// Package user registers and authenticates marketplace accounts.
package user

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
)

var (
	ErrNotFound           = apperr.New(apperr.NotFound, "user not found")
	ErrEmailTaken         = apperr.New(apperr.Conflict, "email is already registered")
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "invalid email or password")
	ErrNotPendingSeller   = apperr.New(apperr.Conflict, "user is not awaiting seller approval")
)

// User is a marketplace account.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash []byte
	Name         string
	Location     string
	Phone        string
	Role         auth.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the identity u acts as.
func (u *User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Role: u.Role}
}

// Repository persists users.
type Repository interface {
	// Create returns ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// SwapRole sets the role to to only if it currently is from.
	SwapRole(ctx context.Context, id uuid.UUID, from, to auth.Role) (bool, error)
}
