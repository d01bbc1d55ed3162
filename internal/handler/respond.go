package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
)

var (
	errRouteNotFound    = apperr.New(apperr.NotFound, "route not found")
	errMethodNotAllowed = apperr.New(apperr.Invalid, "method not allowed")
	errMalformedBody    = apperr.New(apperr.Invalid, "malformed JSON body")
	errBodyNotObject    = apperr.New(apperr.Invalid, "request body must be a JSON object")
)

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.Invalid:
		return http.StatusBadRequest
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope. Internal errors are logged with their
// details and answered with a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	if err == errMethodNotAllowed {
		status = http.StatusMethodNotAllowed
	}
	if kind == apperr.Internal {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}

	fields := apperr.FieldsOf(err)
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("message", func(e *jx.Encoder) { e.Str(apperr.MessageOf(err)) })
		e.Field("code", func(e *jx.Encoder) { e.Str(kind.String()) })
		if len(fields) > 0 {
			e.Field("fields", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					for _, f := range fields {
						e.Field(f.Name, func(e *jx.Encoder) { e.Str(f.Error.Error()) })
					}
				})
			})
		}
	})
	write(w, status, e.Bytes())
}

// ok writes a success envelope. data may be nil.
func ok(w http.ResponseWriter, status int, message string, data func(e *jx.Encoder)) {
	okWith(w, status, message, data, nil)
}

func okWith(w http.ResponseWriter, status int, message string, data, extra func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
		if message != "" {
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		}
		if data != nil {
			e.Field("data", data)
		}
		if extra != nil {
			extra(e)
		}
	})
	write(w, status, e.Bytes())
}

func write(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
