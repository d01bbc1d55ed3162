package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/cameroon-mark/internal/domain/campaign"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
	"github.com/xenking/cameroon-mark/internal/domain/order"
	"github.com/xenking/cameroon-mark/internal/domain/product"
	"github.com/xenking/cameroon-mark/internal/domain/user"
)

// Money is encoded as a string with two decimals so clients never parse it
// into a float.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func strField(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func idField(e *jx.Encoder, name string, id uuid.UUID) {
	strField(e, name, id.String())
}

func timeField(e *jx.Encoder, name string, t time.Time) {
	strField(e, name, t.UTC().Format(time.RFC3339))
}

func moneyField(e *jx.Encoder, name string, d decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { money(e, d) })
}

func intField(e *jx.Encoder, name string, v int) {
	e.Field(name, func(e *jx.Encoder) { e.Int(v) })
}

func boolField(e *jx.Encoder, name string, v bool) {
	e.Field(name, func(e *jx.Encoder) { e.Bool(v) })
}

func idsField(e *jx.Encoder, name string, ids []uuid.UUID) {
	e.Field(name, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, id := range ids {
				e.Str(id.String())
			}
		})
	})
}

func encodeList[T any](items []T, enc func(e *jx.Encoder, v *T)) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range items {
				enc(e, &items[i])
			}
		})
	}
}

func encodeUser(e *jx.Encoder, u *user.User) {
	e.Obj(func(e *jx.Encoder) {
		idField(e, "id", u.ID)
		strField(e, "email", u.Email)
		strField(e, "name", u.Name)
		strField(e, "role", u.Role.String())
		strField(e, "location", u.Location)
		strField(e, "phone", u.Phone)
		timeField(e, "created_at", u.CreatedAt)
	})
}

func encodeSession(e *jx.Encoder, s *user.Session) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "token", s.Token)
		strField(e, "token_type", "Bearer")
		timeField(e, "expires_at", s.ExpiresAt)
		e.Field("user", func(e *jx.Encoder) { encodeUser(e, s.User) })
	})
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		idField(e, "id", p.ID)
		idField(e, "seller_id", p.SellerID)
		idField(e, "category_id", p.CategoryID)
		strField(e, "title", p.Title)
		moneyField(e, "price", p.Price)
		intField(e, "stock", p.Stock)
		if p.ImageURL != "" {
			strField(e, "image_url", p.ImageURL)
		}
		timeField(e, "created_at", p.CreatedAt)
		timeField(e, "updated_at", p.UpdatedAt)
	})
}

func encodeCode(e *jx.Encoder, c *discount.Code) {
	e.Obj(func(e *jx.Encoder) {
		idField(e, "id", c.ID)
		idField(e, "seller_id", c.SellerID)
		if c.CampaignID != nil {
			idField(e, "campaign_id", *c.CampaignID)
		}
		strField(e, "code", c.Code)
		strField(e, "discount_type", string(c.Kind))
		e.Field("value", func(e *jx.Encoder) { e.Str(c.Value.String()) })
		strField(e, "description", c.Description)
		if c.MinPurchase.Valid {
			moneyField(e, "min_purchase_amount", c.MinPurchase.Decimal)
		}
		if c.MaxDiscount.Valid {
			moneyField(e, "max_discount_amount", c.MaxDiscount.Decimal)
		}
		if c.UsageLimit != nil {
			intField(e, "usage_limit", *c.UsageLimit)
		}
		intField(e, "usage_count", c.UsageCount)
		if c.Kind == discount.KindBuyXGetY {
			intField(e, "buy_quantity", c.BuyQuantity)
			intField(e, "get_quantity", c.GetQuantity)
		}
		idsField(e, "product_ids", c.ProductIDs)
		idsField(e, "category_ids", c.CategoryIDs)
		timeField(e, "start_date", c.StartsAt)
		timeField(e, "end_date", c.EndsAt)
		boolField(e, "is_active", c.Active)
		timeField(e, "created_at", c.CreatedAt)
		timeField(e, "updated_at", c.UpdatedAt)
	})
}

func encodeCampaign(e *jx.Encoder, c *campaign.Campaign) {
	e.Obj(func(e *jx.Encoder) {
		idField(e, "id", c.ID)
		idField(e, "seller_id", c.SellerID)
		strField(e, "name", c.Name)
		strField(e, "description", c.Description)
		strField(e, "campaign_type", string(c.Type))
		timeField(e, "start_date", c.StartsAt)
		timeField(e, "end_date", c.EndsAt)
		boolField(e, "is_active", c.Active)
		timeField(e, "created_at", c.CreatedAt)
		timeField(e, "updated_at", c.UpdatedAt)
	})
}

func encodeItems(e *jx.Encoder, items []order.Item) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				idField(e, "product_id", it.ProductID)
				idField(e, "seller_id", it.SellerID)
				strField(e, "title", it.Title)
				intField(e, "quantity", it.Quantity)
				moneyField(e, "unit_price", it.UnitPrice)
				moneyField(e, "total", it.Total())
			})
		}
	})
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "name", a.Name)
		strField(e, "line1", a.Line1)
		if a.Line2 != "" {
			strField(e, "line2", a.Line2)
		}
		strField(e, "city", a.City)
		if a.PostalCode != "" {
			strField(e, "postal_code", a.PostalCode)
		}
		strField(e, "country", a.Country)
		if a.Phone != "" {
			strField(e, "phone", a.Phone)
		}
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		idField(e, "id", o.ID)
		idField(e, "buyer_id", o.BuyerID)
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, o.Items) })
		moneyField(e, "subtotal", o.Subtotal)
		moneyField(e, "discount_amount", o.DiscountAmount)
		moneyField(e, "total_amount", o.Total)
		if o.DiscountCodeID != nil {
			idField(e, "discount_code_id", *o.DiscountCodeID)
			strField(e, "discount_code", o.DiscountCode)
		}
		boolField(e, "free_shipping", o.FreeShipping)
		strField(e, "status", string(o.Status))
		strField(e, "payment_status", string(o.PaymentStatus))
		strField(e, "payment_method", string(o.PaymentMethod))
		if o.PaymentReference != "" {
			strField(e, "payment_reference", o.PaymentReference)
		}
		moneyField(e, "refunded_amount", o.RefundedAmount)
		e.Field("shipping_address", func(e *jx.Encoder) { encodeAddress(e, o.Shipping) })
		intField(e, "version", o.Version)
		timeField(e, "created_at", o.CreatedAt)
		timeField(e, "updated_at", o.UpdatedAt)
	})
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, q.Items) })
		moneyField(e, "subtotal", q.Subtotal)
		moneyField(e, "discount_amount", q.DiscountAmount)
		moneyField(e, "total_amount", q.Total)
		boolField(e, "free_shipping", q.FreeShipping)
		if q.Code != nil {
			e.Field("discount", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					idField(e, "id", q.Code.ID)
					strField(e, "code", q.Code.Code)
					strField(e, "discount_type", string(q.Code.Kind))
					idField(e, "seller_id", q.Code.SellerID)
				})
			})
		}
	})
}
