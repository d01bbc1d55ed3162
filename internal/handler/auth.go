package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/user"
)

// authenticate attaches the bearer token's principal to the request. A
// request without Authorization stays anonymous and services refuse what
// it may not do; a malformed or expired token is rejected outright.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			h.fail(w, r, auth.ErrInvalidToken)
			return
		}
		p, err := h.Tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.Stringer("user_id", p.UserID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var reg user.Registration
	err := h.decodeObject(r, false, func(d *jx.Decoder, key string, b *body) (err error) {
		switch key {
		case "email":
			reg.Email, err = b.str(d, key)
		case "password":
			reg.Password, err = b.str(d, key)
		case "name":
			reg.Name, err = b.str(d, key)
		case "location":
			reg.Location, err = b.str(d, key)
		case "phone":
			reg.Phone, err = b.str(d, key)
		case "role":
			reg.Role, err = b.str(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.Users.Register(r.Context(), reg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "User registered successfully", func(e *jx.Encoder) { encodeSession(e, s) })
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var email, password string
	err := h.decodeObject(r, false, func(d *jx.Decoder, key string, b *body) (err error) {
		switch key {
		case "email":
			email, err = b.str(d, key)
		case "password":
			password, err = b.str(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.Users.Login(r.Context(), email, password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Login successful", func(e *jx.Encoder) { encodeSession(e, s) })
}

func (h *Handler) approveSeller(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, user.ErrNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.Users.ApproveSeller(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Seller approved", func(e *jx.Encoder) { encodeUser(e, u) })
}
