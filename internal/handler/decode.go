package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
)

// body reads and type-checks a JSON object request body. Values of the
// wrong JSON type are recorded in fields and skipped so that one response
// lists every bad field.
type body struct {
	fields apperr.FieldSet
	prefix string
}

func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	buf, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.New(apperr.Invalid, "request body too large")
		}
		return nil, errors.Wrap(err, "read body")
	}
	return buf, nil
}

// decodeObject calls fn for every key of the request body object. An empty
// body is treated as {} when optional is set.
func (h *Handler) decodeObject(r *http.Request, optional bool, fn func(d *jx.Decoder, key string, b *body) error) error {
	buf, err := h.readBody(r)
	if err != nil {
		return err
	}
	if len(buf) == 0 && optional {
		return nil
	}
	d := jx.DecodeBytes(buf)
	if d.Next() != jx.Object {
		return errBodyNotObject
	}
	b := &body{}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		return fn(d, key, b)
	}); err != nil {
		return errMalformedBody
	}
	return b.fields.Err()
}

func (b *body) name(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "." + key
}

// nested returns a body that prefixes field names with key.
func (b *body) nested(key string) *body {
	return &body{prefix: b.name(key)}
}

// merge copies nested field failures back into b.
func (b *body) merge(n *body) {
	for _, f := range apperr.FieldsOf(n.fields.Err()) {
		b.fields.Add(f.Name, f.Error.Error())
	}
}

func (b *body) mismatch(d *jx.Decoder, key, want string) error {
	b.fields.Add(b.name(key), "must be "+want)
	return d.Skip()
}

// null consumes a JSON null and reports whether one was present.
func null(d *jx.Decoder) (bool, error) {
	if d.Next() != jx.Null {
		return false, nil
	}
	return true, d.Null()
}

func (b *body) str(d *jx.Decoder, key string) (string, error) {
	if isNull, err := null(d); isNull || err != nil {
		return "", err
	}
	if d.Next() != jx.String {
		return "", b.mismatch(d, key, "a string")
	}
	return d.Str()
}

func (b *body) boolean(d *jx.Decoder, key string) (bool, error) {
	if d.Next() != jx.Bool {
		return false, b.mismatch(d, key, "a boolean")
	}
	return d.Bool()
}

func (b *body) integer(d *jx.Decoder, key string) (int, error) {
	if d.Next() != jx.Number {
		return 0, b.mismatch(d, key, "an integer")
	}
	n, err := d.Num()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		b.fields.Add(b.name(key), "must be an integer")
		return 0, nil
	}
	return v, nil
}

// optInt decodes an integer that may be null or absent.
func (b *body) optInt(d *jx.Decoder, key string) (*int, error) {
	if isNull, err := null(d); isNull || err != nil {
		return nil, err
	}
	v, err := b.integer(d, key)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// amount accepts both JSON numbers and numeric strings.
func (b *body) amount(d *jx.Decoder, key string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	default:
		return decimal.Zero, b.mismatch(d, key, "a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		b.fields.Add(b.name(key), "must be a number")
		return decimal.Zero, nil
	}
	return v, nil
}

func (b *body) optDecimal(d *jx.Decoder, key string) (decimal.NullDecimal, error) {
	if isNull, err := null(d); isNull || err != nil {
		return decimal.NullDecimal{}, err
	}
	v, err := b.amount(d, key)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: v, Valid: true}, nil
}

func (b *body) id(d *jx.Decoder, key string) (uuid.UUID, error) {
	s, err := b.str(d, key)
	if err != nil || s == "" {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		b.fields.Add(b.name(key), "must be a UUID")
		return uuid.Nil, nil
	}
	return id, nil
}

func (b *body) optUUID(d *jx.Decoder, key string) (*uuid.UUID, error) {
	id, err := b.id(d, key)
	if err != nil || id == uuid.Nil {
		return nil, err
	}
	return &id, nil
}

func (b *body) uuids(d *jx.Decoder, key string) ([]uuid.UUID, error) {
	if isNull, err := null(d); isNull || err != nil {
		return nil, err
	}
	if d.Next() != jx.Array {
		return nil, b.mismatch(d, key, "an array of UUIDs")
	}
	var ids []uuid.UUID
	i := 0
	err := d.Arr(func(d *jx.Decoder) error {
		id, err := b.id(d, key+"["+strconv.Itoa(i)+"]")
		i++
		if err != nil {
			return err
		}
		if id != uuid.Nil {
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func (b *body) timestamp(d *jx.Decoder, key string) (time.Time, error) {
	s, err := b.str(d, key)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		b.fields.Add(b.name(key), "must be an RFC 3339 timestamp")
		return time.Time{}, nil
	}
	return t, nil
}

// pathID parses the {id} URL parameter. A malformed id cannot name an
// existing entity, so it is reported as notFound.
func pathID(r *http.Request, notFound error) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, notFound
	}
	return id, nil
}

func queryUUID(r *http.Request, name string, fs *apperr.FieldSet) uuid.UUID {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		fs.Add(name, "must be a UUID")
		return uuid.Nil
	}
	return id
}

func queryInt(r *http.Request, name string, def int, fs *apperr.FieldSet) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		fs.Add(name, "must be a non-negative integer")
		return def
	}
	return v
}

func queryBool(r *http.Request, name string, fs *apperr.FieldSet) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		fs.Add(name, "must be a boolean")
		return false
	}
	return v
}

// queryTime parses an RFC 3339 timestamp or a YYYY-MM-DD date. With
// wholeDay, a date means the end of that day, so a date-only upper bound
// covers the day it names.
func queryTime(r *http.Request, name string, wholeDay bool, fs *apperr.FieldSet) time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		fs.Add(name, "must be a date or an RFC 3339 timestamp")
		return time.Time{}
	}
	if wholeDay {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
