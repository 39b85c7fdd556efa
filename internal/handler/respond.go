package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/cakekart/checkout-engine/internal/domain/cart"
	"github.com/cakekart/checkout-engine/internal/domain/checkout"
	"github.com/cakekart/checkout-engine/internal/domain/coupon"
	"github.com/cakekart/checkout-engine/internal/domain/order"
	"github.com/cakekart/checkout-engine/internal/domain/payment"
)

// writeJSON streams a JSON object built by fn to the response.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// writeError maps a domain error to its HTTP status and error envelope.
// Unrecognized errors become opaque 500s and are logged with their cause.
func (h *Handler) writeError(r *http.Request, w http.ResponseWriter, err error) {
	var (
		vErr *checkout.ValidationError
		bErr *coupon.BelowMinimumError
		lErr *order.LifecycleError
		gErr *payment.GatewayError
	)

	switch {
	case errors.As(err, &vErr):
		writeValidationError(w, vErr)

	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, order.ErrCheckoutIncomplete):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, coupon.ErrInvalidCode),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrLimitReached),
		errors.As(err, &bErr):
		writeErrorMessage(w, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, cart.ErrSessionNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrRecordNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())

	case errors.Is(err, checkout.ErrNotAtPaymentStep),
		errors.Is(err, order.ErrDuplicateInFlight),
		errors.Is(err, order.ErrAttemptFailed),
		errors.As(err, &lErr):
		writeErrorMessage(w, http.StatusConflict, err.Error())

	case errors.Is(err, payment.ErrVerificationFailed):
		writeErrorMessage(w, http.StatusPaymentRequired, err.Error())

	case errors.As(err, &gErr):
		writeErrorMessage(w, http.StatusBadGateway, err.Error())

	default:
		zctx.From(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeValidationError(w http.ResponseWriter, vErr *checkout.ValidationError) {
	writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusBadRequest) })
			e.Field("message", func(e *jx.Encoder) { e.Str(vErr.Error()) })
			e.Field("fields", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					for _, f := range vErr.Fields {
						e.Field(f.Field, func(e *jx.Encoder) { e.Str(f.Message) })
					}
				})
			})
		})
	})
}
