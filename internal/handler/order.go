package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/order"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func decodeAddress(d *jx.Decoder, key string, b *body) (order.Address, error) {
	var a order.Address
	if d.Next() != jx.Object {
		return a, b.mismatch(d, key, "an object")
	}
	nested := b.nested(key)
	err := d.Obj(func(d *jx.Decoder, k string) (err error) {
		switch k {
		case "name":
			a.Name, err = nested.str(d, k)
		case "line1":
			a.Line1, err = nested.str(d, k)
		case "line2":
			a.Line2, err = nested.str(d, k)
		case "city":
			a.City, err = nested.str(d, k)
		case "postal_code":
			a.PostalCode, err = nested.str(d, k)
		case "country":
			a.Country, err = nested.str(d, k)
		case "phone":
			a.Phone, err = nested.str(d, k)
		default:
			err = d.Skip()
		}
		return err
	})
	b.merge(nested)
	return a, err
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceOrderRequest
	err := h.decodeObject(r, false, func(d *jx.Decoder, key string, b *body) error {
		if known, err := quoteField(&req.QuoteRequest, d, key, b); known {
			return err
		}
		switch key {
		case "payment_method":
			method, err := b.str(d, key)
			req.PaymentMethod = order.PaymentMethod(method)
			return err
		case "shipping_address":
			var err error
			req.Shipping, err = decodeAddress(d, key, b)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.PlaceOrder(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.ID.String())
	ok(w, http.StatusCreated, "Order placed", func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, order.ErrNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	var fs apperr.FieldSet
	f := order.Filter{
		Limit:  queryInt(r, "limit", defaultPageSize, &fs),
		Offset: queryInt(r, "offset", 0, &fs),
	}
	if f.Limit == 0 || f.Limit > maxPageSize {
		fs.Add("limit", "must be between 1 and 100")
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := order.Status(raw)
		fs.Check(s.Valid(), "status", "unknown order status")
		f.Status = &s
	}
	if err := fs.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	orders, err := h.Orders.List(r.Context(), principal(r), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okWith(w, http.StatusOK, "", encodeList(orders, encodeOrder), func(e *jx.Encoder) {
		e.Field("pagination", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				intField(e, "limit", f.Limit)
				intField(e, "offset", f.Offset)
				intField(e, "count", len(orders))
			})
		})
	})
}

// decodeVersion reads the optional optimistic-lock version from a body.
func (h *Handler) decodeVersion(r *http.Request, extra func(d *jx.Decoder, key string, b *body) (bool, error)) (*int, error) {
	var version *int
	err := h.decodeObject(r, true, func(d *jx.Decoder, key string, b *body) error {
		if key == "version" {
			var err error
			version, err = b.optInt(d, key)
			return err
		}
		if extra != nil {
			if known, err := extra(d, key, b); known {
				return err
			}
		}
		return d.Skip()
	})
	return version, err
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, order.ErrNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var target order.Status
	version, err := h.decodeVersion(r, func(d *jx.Decoder, key string, b *body) (bool, error) {
		if key != "status" {
			return false, nil
		}
		s, err := b.str(d, key)
		target = order.Status(s)
		return true, err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !target.Valid() {
		var fs apperr.FieldSet
		fs.Add("status", "unknown order status")
		h.fail(w, r, fs.Err())
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), principal(r), id, target, version)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Order status updated", func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, order.ErrNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	version, err := h.decodeVersion(r, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.Cancel(r.Context(), principal(r), id, version)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Order canceled", func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, order.ErrNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var (
		amount decimal.Decimal
		seen   bool
	)
	err = h.decodeObject(r, false, func(d *jx.Decoder, key string, b *body) error {
		if key != "amount" {
			return d.Skip()
		}
		seen = true
		var err error
		amount, err = b.amount(d, key)
		return err
	})
	if err == nil && !seen {
		var fs apperr.FieldSet
		fs.Add("amount", "is required")
		err = fs.Err()
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.Refund(r.Context(), principal(r), id, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Refund recorded", func(e *jx.Encoder) { encodeOrder(e, o) })
}
