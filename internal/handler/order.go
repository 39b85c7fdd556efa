package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/cakekart/checkout-engine/internal/domain/auth"
	"github.com/cakekart/checkout-engine/internal/domain/order"
)

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListOrders returns all orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range orders {
						encodeOrder(e, &orders[i])
					}
				})
			})
		})
	})
}

// GetOrder returns a single order by ID.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// UpdateOrderStatus applies a requested transition. The acting role comes
// from the API key's scopes, so delivery keys can only advance fulfilment.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	to := order.Status(req.Status)
	if !to.Valid() {
		writeErrorMessage(w, http.StatusBadRequest, "unknown status "+req.Status)
		return
	}

	actor := order.ActorDelivery
	if key, ok := KeyFromContext(r.Context()); ok && key.HasScope(auth.ScopeAdmin) {
		actor = order.ActorAdmin
	}

	o, err := h.orders.Transition(r.Context(), r.PathValue("id"), to, actor)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// OrderStats returns per-status counts and realized revenue.
func (h *Handler) OrderStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.orders.Stats(r.Context())
	if err != nil {
		h.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("totalOrders", func(e *jx.Encoder) { e.Int(st.TotalOrders) })
			e.Field("byStatus", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					for _, s := range order.Statuses() {
						if n, ok := st.ByStatus[s]; ok {
							e.Field(string(s), func(e *jx.Encoder) { e.Int(n) })
						}
					}
				})
			})
			e.Field("realizedRevenue", encodeDecimal(st.RealizedRevenue))
			e.Field("demoRevenue", encodeDecimal(st.DemoRevenue))
		})
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(o.OrderNumber) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("price", encodeDecimal(it.Price))
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					})
				}
			})
		})
		e.Field("subtotal", encodeDecimal(o.Subtotal))
		e.Field("couponDiscount", encodeDecimal(o.CouponDiscount))
		if o.CouponCode != "" {
			e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("deliveryFee", encodeDecimal(o.DeliveryFee))
		e.Field("totalPrice", encodeDecimal(o.Total))
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("shippingAddress", func(e *jx.Encoder) { encodeAddress(e, o.ShippingAddress) })
		if o.DemoPayment {
			e.Field("demoPayment", func(e *jx.Encoder) { e.Bool(true) })
		}
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format("2006-01-02T15:04:05Z07:00")) })
	})
}
