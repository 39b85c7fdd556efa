// Package handler exposes the cart, checkout, payment, and order services
// over HTTP. Request DTOs are validated at the boundary; domain errors are
// mapped to stable error envelopes in respond.go.
package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/cakekart/checkout-engine/internal/domain/cart"
	"github.com/cakekart/checkout-engine/internal/domain/order"
)

// Handler wires the domain services to the HTTP mux.
type Handler struct {
	carts    *cart.Service
	orders   *order.Service
	security *SecurityHandler
	validate *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(carts *cart.Service, orders *order.Service, security *SecurityHandler) *Handler {
	return &Handler{
		carts:    carts,
		orders:   orders,
		security: security,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes registers every API route on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/cart/{session}", h.GetCart)
	mux.HandleFunc("POST /api/cart/{session}/items", h.AddItem)
	mux.HandleFunc("PUT /api/cart/{session}/items/{productID}", h.UpdateItem)
	mux.HandleFunc("DELETE /api/cart/{session}/items/{productID}", h.RemoveItem)
	mux.HandleFunc("DELETE /api/cart/{session}", h.ClearCart)
	mux.HandleFunc("POST /api/cart/{session}/coupon", h.ApplyCoupon)
	mux.HandleFunc("DELETE /api/cart/{session}/coupon", h.RemoveCoupon)

	mux.HandleFunc("POST /api/checkout/{session}/address", h.SubmitAddress)
	mux.HandleFunc("POST /api/checkout/{session}/back", h.CheckoutBack)

	mux.HandleFunc("POST /api/payment/create-order", h.CreatePaymentOrder)
	mux.HandleFunc("POST /api/payment/verify", h.VerifyPayment)
	mux.HandleFunc("POST /api/payment/cancel", h.CancelPayment)
	mux.HandleFunc("POST /api/payment/cod", h.PlaceCOD)

	mux.HandleFunc("GET /api/orders", h.security.Require(ScopeAny, h.ListOrders))
	mux.HandleFunc("GET /api/orders/stats", h.security.Require(ScopeAdminOnly, h.OrderStats))
	mux.HandleFunc("GET /api/orders/{id}", h.security.Require(ScopeAny, h.GetOrder))
	mux.HandleFunc("PUT /api/orders/{id}", h.security.Require(ScopeAny, h.UpdateOrderStatus))

	return mux
}
