package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/cameroon-mark/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", encodeList(products, encodeProduct))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, product.ErrNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", func(e *jx.Encoder) { encodeProduct(e, p) })
}

func (h *Handler) decodeProduct(r *http.Request) (product.Draft, error) {
	var dr product.Draft
	err := h.decodeObject(r, false, func(d *jx.Decoder, key string, b *body) (err error) {
		switch key {
		case "seller_id":
			dr.SellerID, err = b.id(d, key)
		case "category_id":
			dr.CategoryID, err = b.id(d, key)
		case "title":
			dr.Title, err = b.str(d, key)
		case "price":
			dr.Price, err = b.amount(d, key)
		case "stock":
			dr.Stock, err = b.integer(d, key)
		case "image_url":
			dr.ImageURL, err = b.str(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if dr.SellerID == uuid.Nil {
		dr.SellerID = principal(r).UserID
	}
	return dr, err
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	dr, err := h.decodeProduct(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.Products.Create(r.Context(), principal(r), dr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "Product created", func(e *jx.Encoder) { encodeProduct(e, p) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, product.ErrNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dr, err := h.decodeProduct(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.Products.Update(r.Context(), principal(r), id, dr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Product updated", func(e *jx.Encoder) { encodeProduct(e, p) })
}
