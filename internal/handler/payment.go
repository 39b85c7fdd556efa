package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/cakekart/checkout-engine/internal/domain/payment"
)

type createPaymentOrderRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

type verifyPaymentRequest struct {
	OrderID          string `json:"orderId" validate:"required"`
	SessionID        string `json:"sessionId"`
	GatewayOrderID   string `json:"gatewayOrderId" validate:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

type cancelPaymentRequest struct {
	GatewayOrderID string `json:"gatewayOrderId" validate:"required"`
}

type placeCODRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// CreatePaymentOrder opens the online payment branch: it snapshots the cart
// into a pending order and reserves the amount with the gateway. Requires an
// Idempotency-Key header; replays return the original gateway order.
func (h *Handler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	key, ok := idempotencyKey(w, r)
	if !ok {
		return
	}
	var req createPaymentOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	intent, err := h.orders.BeginOnlinePayment(r.Context(), req.SessionID, key)
	if err != nil {
		h.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(intent.Order.ID) })
			e.Field("orderNumber", func(e *jx.Encoder) { e.Str(intent.Order.OrderNumber) })
			e.Field("gatewayOrderId", func(e *jx.Encoder) { e.Str(intent.GatewayOrderID) })
			e.Field("amount", encodeDecimal(intent.Order.Total))
			e.Field("currency", func(e *jx.Encoder) { e.Str(intent.Currency) })
			e.Field("clientKey", func(e *jx.Encoder) { e.Str(intent.ClientKey) })
		})
	})
}

// VerifyPayment checks the reported completion signature server-side and
// confirms the order when it holds. A bad signature is a 402; the order
// stays pending.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.orders.VerifyPayment(r.Context(), req.OrderID, req.SessionID, payment.Completion{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		h.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("ok", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		})
	})
}

// CancelPayment records that the customer abandoned the hosted UI. The next
// attempt must create a fresh gateway order.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	var req cancelPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.orders.CancelAttempt(r.Context(), req.GatewayOrderID); err != nil {
		h.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("ok", func(e *jx.Encoder) { e.Bool(true) })
		})
	})
}

// PlaceCOD places a cash-on-delivery order. Requires an Idempotency-Key
// header; replays return the original order.
func (h *Handler) PlaceCOD(w http.ResponseWriter, r *http.Request) {
	key, ok := idempotencyKey(w, r)
	if !ok {
		return
	}
	var req placeCODRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.orders.PlaceCOD(r.Context(), req.SessionID, key)
	if err != nil {
		h.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func idempotencyKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Idempotency-Key header is required")
		return "", false
	}
	return key, true
}
