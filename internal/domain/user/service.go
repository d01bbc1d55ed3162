package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
)

const minPasswordLength = 8

// Registration is a sign-up request. Role may be customer or seller; sellers
// start out pending until an admin approves them.
type Registration struct {
	Email    string
	Password string
	Name     string
	Location string
	Phone    string
	Role     string
}

// Validate reports every invalid field of r.
func (r Registration) Validate() error {
	var fs apperr.FieldSet
	_, err := mail.ParseAddress(strings.TrimSpace(r.Email))
	fs.Check(err == nil, "email", "must be a valid email address")
	fs.Check(len(r.Password) >= minPasswordLength, "password", "must be at least 8 characters")
	fs.Check(len(r.Password) <= 72, "password", "must be at most 72 bytes")
	fs.Check(strings.TrimSpace(r.Name) != "", "name", "must not be empty")
	fs.Check(r.Role == "" || r.Role == "customer" || r.Role == "seller", "role", "must be customer or seller")
	return fs.Err()
}

// Session is an issued bearer token.
type Session struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}

// Service registers users and issues tokens.
type Service struct {
	users  Repository
	tokens *auth.Tokens
	authz  *auth.Authorizer
	cost   int
	now    func() time.Time
}

// NewService creates a user Service hashing passwords with bcrypt at cost.
func NewService(users Repository, tokens *auth.Tokens, authz *auth.Authorizer, cost int) *Service {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		users:  users,
		tokens: tokens,
		authz:  authz,
		cost:   cost,
		now:    time.Now,
	}
}

// Register creates an account and signs the new user in.
func (s *Service) Register(ctx context.Context, r Registration) (*Session, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	role := auth.Customer
	if r.Role == "seller" {
		role = auth.PendingSeller
	}
	now := s.now()
	u := &User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(r.Email)),
		PasswordHash: hash,
		Name:         strings.TrimSpace(r.Name),
		Location:     r.Location,
		Phone:        r.Phone,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, errors.Wrap(err, "create user")
	}
	return s.session(u)
}

// Login verifies the credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "get user")
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// ApproveSeller promotes a pending seller to seller.
func (s *Service) ApproveSeller(ctx context.Context, p auth.Principal, id uuid.UUID) (*User, error) {
	if err := s.authz.Admin(p); err != nil {
		return nil, err
	}
	ok, err := s.users.SwapRole(ctx, id, auth.PendingSeller, auth.Seller)
	if err != nil {
		return nil, errors.Wrap(err, "approve seller")
	}
	if !ok {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotPendingSeller
	}
	return s.users.GetByID(ctx, id)
}

func (s *Service) session(u *User) (*Session, error) {
	token, exp, err := s.tokens.Issue(u.Principal())
	if err != nil {
		return nil, errors.Wrap(err, "issue token")
	}
	return &Session{User: u, Token: token, ExpiresAt: exp}, nil
}
