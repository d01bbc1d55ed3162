package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/order"
)

// PaymentSignatureHeader carries the hex HMAC-SHA256 of the callback body.
const PaymentSignatureHeader = "X-Payment-Signature"

var errBadSignature = apperr.New(apperr.Unauthorized, "invalid payment signature")

// SignPayment returns the signature a provider sends for body.
func SignPayment(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *Handler) verifyPayment(signature string, body []byte) bool {
	if len(h.webhookSecret) == 0 {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.webhookSecret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// paymentWebhook receives payment outcomes from the provider. Repeated
// deliveries of the same outcome are answered with the current order.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	buf, err := h.readBody(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.verifyPayment(r.Header.Get(PaymentSignatureHeader), buf) {
		zctx.From(r.Context()).Warn("Rejected payment callback")
		h.fail(w, r, errBadSignature)
		return
	}

	var (
		orderID   uuid.UUID
		status    string
		reference string
		amount    decimal.NullDecimal
		b         body
	)
	d := jx.DecodeBytes(buf)
	if d.Next() != jx.Object {
		h.fail(w, r, errBodyNotObject)
		return
	}
	if err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "order_id":
			orderID, err = b.id(d, key)
		case "status":
			status, err = b.str(d, key)
		case "reference":
			reference, err = b.str(d, key)
		case "amount":
			amount, err = b.optDecimal(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		h.fail(w, r, errMalformedBody)
		return
	}
	b.fields.Check(orderID != uuid.Nil, "order_id", "is required")
	b.fields.Check(status == string(order.PaymentPaid) || status == string(order.PaymentFailed),
		"status", "must be paid or failed")
	if err := b.fields.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	var o *order.Order
	if status == string(order.PaymentPaid) {
		o, err = h.Orders.ConfirmPayment(r.Context(), orderID, reference, amount)
	} else {
		o, err = h.Orders.FailPayment(r.Context(), orderID, reference)
	}
	if err != nil {
		switch {
		case errors.Is(err, order.ErrPaidAfterCancel):
			zctx.From(r.Context()).Warn("Payment captured for canceled order",
				zap.Stringer("order_id", orderID),
				zap.String("reference", reference),
				zap.Stringer("amount", amount.Decimal),
			)
		case errors.Is(err, order.ErrAmountMismatch):
			zctx.From(r.Context()).Warn("Payment amount mismatch",
				zap.Stringer("order_id", orderID),
				zap.String("reference", reference),
				zap.Stringer("amount", amount.Decimal),
			)
		}
		h.fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Payment callback applied",
		zap.Stringer("order_id", o.ID),
		zap.String("payment_status", string(o.PaymentStatus)),
	)
	ok(w, http.StatusOK, "Payment status recorded", func(e *jx.Encoder) { encodeOrder(e, o) })
}
