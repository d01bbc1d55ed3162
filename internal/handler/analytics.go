package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/cameroon-mark/internal/domain/analytics"
	"github.com/xenking/cameroon-mark/internal/domain/apperr"
)

// reportRange reads ?from and ?to. A date-only to includes that day.
func reportRange(r *http.Request, fs *apperr.FieldSet) analytics.Range {
	return analytics.Range{
		From: queryTime(r, "from", false, fs),
		To:   queryTime(r, "to", true, fs),
	}
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	var fs apperr.FieldSet
	sellerID := sellerParam(r, &fs)
	rng := reportRange(r, &fs)
	if err := fs.Err(); err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.Analytics.Sales(r.Context(), principal(r), sellerID, rng)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", func(e *jx.Encoder) { encodeSalesReport(e, report) })
}

func (h *Handler) discountReport(w http.ResponseWriter, r *http.Request) {
	var fs apperr.FieldSet
	sellerID := sellerParam(r, &fs)
	rng := reportRange(r, &fs)
	if err := fs.Err(); err != nil {
		h.fail(w, r, err)
		return
	}
	usage, err := h.Analytics.Discounts(r.Context(), principal(r), sellerID, rng)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", encodeList(usage, encodeCodeUsage))
}

func encodeSalesReport(e *jx.Encoder, s *analytics.SalesReport) {
	e.Obj(func(e *jx.Encoder) {
		timeField(e, "from", s.Range.From)
		timeField(e, "to", s.Range.To)
		e.Field("summary", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				intField(e, "total_orders", s.Totals.Orders)
				intField(e, "units_sold", s.Totals.Units)
				moneyField(e, "total_sales", s.Totals.Revenue)
				moneyField(e, "discount_given", s.Totals.Discount)
				moneyField(e, "average_order_value", s.AverageOrder)
			})
		})
		e.Field("monthly_sales", encodeList(s.Months, func(e *jx.Encoder, m *analytics.Month) {
			e.Obj(func(e *jx.Encoder) {
				strField(e, "month", m.Label())
				intField(e, "orders", m.Orders)
				moneyField(e, "sales", m.Revenue)
			})
		}))
		e.Field("top_products", encodeList(s.TopProducts, func(e *jx.Encoder, p *analytics.ProductSales) {
			e.Obj(func(e *jx.Encoder) {
				idField(e, "id", p.ProductID)
				strField(e, "title", p.Title)
				intField(e, "total_quantity", p.Units)
				moneyField(e, "total_revenue", p.Revenue)
			})
		}))
	})
}

func encodeCodeUsage(e *jx.Encoder, u *analytics.CodeUsage) {
	e.Obj(func(e *jx.Encoder) {
		idField(e, "id", u.CodeID)
		strField(e, "code", u.Code)
		strField(e, "discount_type", string(u.Kind))
		boolField(e, "is_active", u.Active)
		intField(e, "usage_count", u.UsageCount)
		if u.UsageLimit != nil {
			intField(e, "usage_limit", *u.UsageLimit)
			intField(e, "remaining_uses", u.Remaining())
		}
		intField(e, "orders", u.Orders)
		moneyField(e, "discount_given", u.Discount)
		moneyField(e, "revenue", u.Revenue)
	})
}
