package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
	"github.com/xenking/cameroon-mark/internal/domain/order"
)

// Codes default to active unless the body says otherwise.
func newDraft() discount.Draft {
	return discount.Draft{Active: true}
}

// draftField decodes one key of a discount draft. It reports false for keys
// that are not draft fields.
func draftField(dr *discount.Draft, d *jx.Decoder, key string, b *body) (bool, error) {
	var err error
	switch key {
	case "seller_id":
		dr.SellerID, err = b.id(d, key)
	case "campaign_id":
		dr.CampaignID, err = b.optUUID(d, key)
	case "code":
		dr.Code, err = b.str(d, key)
	case "discount_type":
		var kind string
		kind, err = b.str(d, key)
		dr.Kind = discount.Kind(kind)
	case "value":
		dr.Value, err = b.amount(d, key)
	case "description":
		dr.Description, err = b.str(d, key)
	case "min_purchase_amount":
		dr.MinPurchase, err = b.optDecimal(d, key)
	case "max_discount_amount":
		dr.MaxDiscount, err = b.optDecimal(d, key)
	case "usage_limit":
		dr.UsageLimit, err = b.optInt(d, key)
	case "buy_quantity":
		dr.BuyQuantity, err = b.integer(d, key)
	case "get_quantity":
		dr.GetQuantity, err = b.integer(d, key)
	case "product_ids":
		dr.ProductIDs, err = b.uuids(d, key)
	case "category_ids":
		dr.CategoryIDs, err = b.uuids(d, key)
	case "start_date":
		dr.StartsAt, err = b.timestamp(d, key)
	case "end_date":
		dr.EndsAt, err = b.timestamp(d, key)
	case "is_active":
		dr.Active, err = b.boolean(d, key)
	default:
		return false, nil
	}
	return true, err
}

func (h *Handler) decodeDraft(r *http.Request) (discount.Draft, error) {
	dr := newDraft()
	err := h.decodeObject(r, false, func(d *jx.Decoder, key string, b *body) error {
		known, err := draftField(&dr, d, key, b)
		if !known {
			return d.Skip()
		}
		return err
	})
	if dr.SellerID == uuid.Nil {
		dr.SellerID = principal(r).UserID
	}
	return dr, err
}

func (h *Handler) createDiscount(w http.ResponseWriter, r *http.Request) {
	dr, err := h.decodeDraft(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.Discounts.Create(r.Context(), principal(r), dr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "Discount code created", func(e *jx.Encoder) { encodeCode(e, c) })
}

func (h *Handler) updateDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, discount.ErrCodeNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dr, err := h.decodeDraft(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.Discounts.Update(r.Context(), principal(r), id, dr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Discount code updated", func(e *jx.Encoder) { encodeCode(e, c) })
}

func (h *Handler) deactivateDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, discount.ErrCodeNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Discounts.Deactivate(r.Context(), principal(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Discount code deactivated", nil)
}

func (h *Handler) getDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, discount.ErrCodeNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.Discounts.Get(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", func(e *jx.Encoder) { encodeCode(e, c) })
}

// sellerParam returns ?seller_id, defaulting to the caller.
func sellerParam(r *http.Request, fs *apperr.FieldSet) uuid.UUID {
	if id := queryUUID(r, "seller_id", fs); id != uuid.Nil {
		return id
	}
	return principal(r).UserID
}

func (h *Handler) listDiscounts(w http.ResponseWriter, r *http.Request) {
	var fs apperr.FieldSet
	sellerID := sellerParam(r, &fs)
	if err := fs.Err(); err != nil {
		h.fail(w, r, err)
		return
	}
	codes, err := h.Discounts.List(r.Context(), principal(r), sellerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", encodeList(codes, encodeCode))
}

func (h *Handler) generateDiscount(w http.ResponseWriter, r *http.Request) {
	var fs apperr.FieldSet
	sellerID := sellerParam(r, &fs)
	length := queryInt(r, "length", 0, &fs)
	if err := fs.Err(); err != nil {
		h.fail(w, r, err)
		return
	}
	code, err := h.Discounts.Generate(r.Context(), principal(r), sellerID, length)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) { strField(e, "code", code) })
	})
}

// decodeLines decodes the items array of a cart.
func decodeLines(d *jx.Decoder, key string, b *body) ([]order.LineRequest, error) {
	if d.Next() != jx.Array {
		return nil, b.mismatch(d, key, "an array")
	}
	var lines []order.LineRequest
	err := d.Arr(func(d *jx.Decoder) error {
		item := b.nested(key + "[" + strconv.Itoa(len(lines)) + "]")
		var line order.LineRequest
		if d.Next() != jx.Object {
			lines = append(lines, line)
			b.fields.Add(item.prefix, "must be an object")
			return d.Skip()
		}
		err := d.Obj(func(d *jx.Decoder, k string) (err error) {
			switch k {
			case "product_id":
				line.ProductID, err = item.id(d, k)
			case "quantity":
				line.Quantity, err = item.integer(d, k)
			default:
				err = d.Skip()
			}
			return err
		})
		b.merge(item)
		lines = append(lines, line)
		return err
	})
	return lines, err
}

func quoteField(q *order.QuoteRequest, d *jx.Decoder, key string, b *body) (bool, error) {
	var err error
	switch key {
	case "items":
		q.Items, err = decodeLines(d, key, b)
	case "discount_code":
		q.DiscountCode, err = b.str(d, key)
	case "discount_seller_id", "seller_id":
		q.DiscountSellerID, err = b.id(d, key)
	default:
		return false, nil
	}
	return true, err
}

// validateDiscount prices a cart with a code without placing an order.
func (h *Handler) validateDiscount(w http.ResponseWriter, r *http.Request) {
	var req order.QuoteRequest
	err := h.decodeObject(r, false, func(d *jx.Decoder, key string, b *body) error {
		known, err := quoteField(&req, d, key, b)
		if !known {
			return d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.Orders.Quote(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	message := "Cart priced"
	if q.Code != nil {
		message = "Discount code is valid"
	}
	ok(w, http.StatusOK, message, func(e *jx.Encoder) { encodeQuote(e, q) })
}
