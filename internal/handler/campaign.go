package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/campaign"
)

func (h *Handler) createCampaign(w http.ResponseWriter, r *http.Request) {
	dr := campaign.Draft{Active: true}
	err := h.decodeObject(r, false, func(d *jx.Decoder, key string, b *body) (err error) {
		switch key {
		case "seller_id":
			dr.SellerID, err = b.id(d, key)
		case "name":
			dr.Name, err = b.str(d, key)
		case "description":
			dr.Description, err = b.str(d, key)
		case "campaign_type":
			var t string
			t, err = b.str(d, key)
			dr.Type = campaign.Type(t)
		case "start_date":
			dr.StartsAt, err = b.timestamp(d, key)
		case "end_date":
			dr.EndsAt, err = b.timestamp(d, key)
		case "is_active":
			dr.Active, err = b.boolean(d, key)
		case "discount":
			if isNull, nerr := null(d); isNull || nerr != nil {
				return nerr
			}
			if d.Next() != jx.Object {
				return b.mismatch(d, key, "an object")
			}
			nested := b.nested(key)
			code := newDraft()
			err = d.Obj(func(d *jx.Decoder, k string) error {
				known, err := draftField(&code, d, k, nested)
				if !known {
					return d.Skip()
				}
				return err
			})
			b.merge(nested)
			dr.Discount = &code
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if dr.SellerID == uuid.Nil {
		dr.SellerID = principal(r).UserID
	}

	created, err := h.Campaigns.Create(r.Context(), principal(r), dr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "Campaign created", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("campaign", func(e *jx.Encoder) { encodeCampaign(e, created.Campaign) })
			if created.Code != nil {
				e.Field("discount", func(e *jx.Encoder) { encodeCode(e, created.Code) })
			}
		})
	})
}

func (h *Handler) getCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, campaign.ErrNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.Campaigns.Get(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", func(e *jx.Encoder) { encodeCampaign(e, c) })
}

func (h *Handler) listCampaigns(w http.ResponseWriter, r *http.Request) {
	var fs apperr.FieldSet
	sellerID := sellerParam(r, &fs)
	activeOnly := queryBool(r, "active", &fs)
	if err := fs.Err(); err != nil {
		h.fail(w, r, err)
		return
	}
	campaigns, err := h.Campaigns.List(r.Context(), principal(r), sellerID, activeOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", encodeList(campaigns, encodeCampaign))
}
