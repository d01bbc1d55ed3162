package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/cameroon-mark/internal/domain/event"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is
// configured.
const SignatureHeader = "X-Market-Signature"

// Webhook posts events as JSON to a fixed URL.
type Webhook struct {
	url    string
	secret []byte
	client *http.Client
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithSecret signs every body with secret.
func WithSecret(secret string) WebhookOption {
	return func(w *Webhook) { w.secret = []byte(secret) }
}

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// NewWebhook creates a Webhook whose client is traced with tp and metered
// with mp.
func NewWebhook(url string, timeout time.Duration, mp metric.MeterProvider, tp trace.TracerProvider, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithMeterProvider(mp),
				otelhttp.WithTracerProvider(tp),
			),
		},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Send implements Sender. Any non-2xx response is an error.
func (w *Webhook) Send(ctx context.Context, e event.Event) error {
	body := encodeEvent(e)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if len(w.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post event")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func encodeEvent(ev event.Event) []byte {
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(string(ev.Type)) })
		e.Field("occurred_at", func(e *jx.Encoder) { e.Str(ev.OccurredAt.UTC().Format(time.RFC3339Nano)) })
		optionalID(e, "order_id", ev.OrderID)
		optionalID(e, "discount_id", ev.DiscountID)
		optionalID(e, "actor_id", ev.ActorID)
		if ev.Previous != "" {
			e.Field("previous", func(e *jx.Encoder) { e.Str(ev.Previous) })
		}
		if ev.Current != "" {
			e.Field("current", func(e *jx.Encoder) { e.Str(ev.Current) })
		}
		if len(ev.Metadata) > 0 {
			keys := make([]string, 0, len(ev.Metadata))
			for k := range ev.Metadata {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			e.Field("metadata", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					for _, k := range keys {
						e.Field(k, func(e *jx.Encoder) { e.Str(ev.Metadata[k]) })
					}
				})
			})
		}
	})
	return e.Bytes()
}

func optionalID(e *jx.Encoder, name string, id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	e.Field(name, func(e *jx.Encoder) { e.Str(id.String()) })
}
