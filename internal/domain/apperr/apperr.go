// Package apperr defines the error taxonomy shared by every domain package.
//
// Domain packages declare their sentinels as *Error values and return them
// (optionally wrapped with go-faster/errors). Transport layers recover the
// Kind with KindOf and decide what to expose.
package apperr

import (
	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
)

// Kind classifies an error by who is at fault and how the caller should react.
type Kind uint8

const (
	// Internal is a persistence or transport fault. Details are never exposed.
	Internal Kind = iota
	// Invalid is a malformed request or a failed business precondition.
	Invalid
	// NotFound means the entity is absent or not visible to the caller.
	NotFound
	// Conflict covers lost races, illegal transitions and stale versions.
	Conflict
	// Forbidden means the caller is known but not allowed to act.
	Forbidden
	// Unauthorized means the caller could not be identified.
	Unauthorized
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Forbidden:
		return "forbidden"
	case Unauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error is a classified domain error with a message that is safe to show.
type Error struct {
	Kind    Kind
	Message string
	// Fields carries per-field detail for Invalid errors built by Fields.
	Fields []validate.FieldError
}

// New returns a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + (&validate.Error{Fields: e.Fields}).Error()
}

// Unwrap exposes field detail as *validate.Error.
func (e *Error) Unwrap() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return &validate.Error{Fields: e.Fields}
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the user-facing message for err. Internal errors get a
// generic message so that driver or network details never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "internal server error"
}

// FieldsOf returns field-level detail attached to err, if any.
func FieldsOf(err error) []validate.FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// FieldSet accumulates field validation failures.
type FieldSet struct {
	fields []validate.FieldError
}

// Add records a failure for the named field.
func (s *FieldSet) Add(name, message string) {
	s.fields = append(s.fields, validate.FieldError{Name: name, Error: errors.New(message)})
}

// Check records a failure when cond is false.
func (s *FieldSet) Check(cond bool, name, message string) {
	if !cond {
		s.Add(name, message)
	}
}

// Err returns an Invalid error listing every recorded field, or nil.
func (s *FieldSet) Err() error {
	if len(s.fields) == 0 {
		return nil
	}
	return &Error{Kind: Invalid, Message: "validation failed", Fields: s.fields}
}
