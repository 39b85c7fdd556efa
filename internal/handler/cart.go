package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/cakekart/checkout-engine/internal/domain/cart"
	"github.com/cakekart/checkout-engine/internal/domain/checkout"
)

type addItemRequest struct {
	ProductID     string           `json:"productId" validate:"required"`
	Name          string           `json:"name" validate:"required"`
	UnitPrice     decimal.Decimal  `json:"unitPrice" validate:"required"`
	DiscountPrice *decimal.Decimal `json:"discountPrice"`
	Quantity      int              `json:"quantity" validate:"required,gte=1"`
	WeightLabel   string           `json:"weightLabel"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

// GetCart returns the session view including the current price quote. An
// unknown session reads as a fresh empty cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.carts.Get(r.Context(), r.PathValue("session"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	h.writeSession(r, w, sess)
}

// AddItem adds a line to the cart, merging by product ID.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.carts.AddItem(r.Context(), r.PathValue("session"), cart.Item{
		ProductID:     req.ProductID,
		Name:          req.Name,
		UnitPrice:     req.UnitPrice,
		DiscountPrice: req.DiscountPrice,
		Quantity:      req.Quantity,
		WeightLabel:   req.WeightLabel,
	})
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	h.writeSession(r, w, sess)
}

// UpdateItem sets the quantity of a line; zero or less removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.carts.UpdateQuantity(r.Context(),
		r.PathValue("session"), r.PathValue("productID"), req.Quantity)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	h.writeSession(r, w, sess)
}

// RemoveItem drops a line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sess, err := h.carts.RemoveItem(r.Context(),
		r.PathValue("session"), r.PathValue("productID"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	h.writeSession(r, w, sess)
}

// ClearCart empties the session but keeps it addressable.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.carts.Clear(r.Context(), r.PathValue("session"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	h.writeSession(r, w, sess)
}

// ApplyCoupon validates the code against the current subtotal and attaches
// it, replacing any prior coupon.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.carts.ApplyCoupon(r.Context(), r.PathValue("session"), req.Code)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	h.writeSession(r, w, sess)
}

// RemoveCoupon detaches the applied coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	sess, err := h.carts.RemoveCoupon(r.Context(), r.PathValue("session"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	h.writeSession(r, w, sess)
}

// SubmitAddress validates the shipping address and advances the checkout
// flow to the payment step.
func (h *Handler) SubmitAddress(w http.ResponseWriter, r *http.Request) {
	var addr checkout.Address
	if !h.decode(w, r, &addr) {
		return
	}

	sess, err := h.carts.SubmitAddress(r.Context(), r.PathValue("session"), addr)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	h.writeSession(r, w, sess)
}

// CheckoutBack returns the flow to the address step, keeping the captured
// address for editing.
func (h *Handler) CheckoutBack(w http.ResponseWriter, r *http.Request) {
	sess, err := h.carts.Back(r.Context(), r.PathValue("session"))
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	h.writeSession(r, w, sess)
}

// decode unmarshals the request body into dst and runs struct validation.
// It reports false after writing the error response itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return false
	}
	return true
}

// writeSession renders the session together with its live price quote.
func (h *Handler) writeSession(r *http.Request, w http.ResponseWriter, sess *cart.Session) {
	quote := h.orders.Quote(r.Context(), sess)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(sess.ID) })
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, it := range sess.Items {
						encodeCartItem(e, it)
					}
				})
			})
			if sess.Coupon != nil {
				e.Field("coupon", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("code", func(e *jx.Encoder) { e.Str(sess.Coupon.Code) })
						if sess.Coupon.Description != "" {
							e.Field("description", func(e *jx.Encoder) { e.Str(sess.Coupon.Description) })
						}
						e.Field("amount", encodeDecimal(sess.Coupon.Amount))
					})
				})
			}
			e.Field("checkout", func(e *jx.Encoder) { encodeCheckout(e, sess.Checkout) })
			e.Field("totalItems", func(e *jx.Encoder) { e.Int(sess.TotalItems()) })
			e.Field("subtotal", encodeDecimal(quote.Subtotal))
			e.Field("couponDiscount", encodeDecimal(quote.CouponDiscount))
			e.Field("deliveryFee", encodeDecimal(quote.DeliveryFee))
			e.Field("totalPrice", encodeDecimal(quote.Total))
		})
	})
}

func encodeCartItem(e *jx.Encoder, it cart.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
		e.Field("unitPrice", encodeDecimal(it.UnitPrice))
		if it.DiscountPrice != nil {
			e.Field("discountPrice", encodeDecimal(*it.DiscountPrice))
		}
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		if it.WeightLabel != "" {
			e.Field("weightLabel", func(e *jx.Encoder) { e.Str(it.WeightLabel) })
		}
	})
}

func encodeCheckout(e *jx.Encoder, f checkout.Flow) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("step", func(e *jx.Encoder) { e.Str(string(f.CurrentStep())) })
		if f.Address != nil {
			e.Field("address", func(e *jx.Encoder) { encodeAddress(e, *f.Address) })
		}
		if f.Method != "" {
			e.Field("method", func(e *jx.Encoder) { e.Str(string(f.Method)) })
		}
	})
}

func encodeAddress(e *jx.Encoder, a checkout.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("fullName", func(e *jx.Encoder) { e.Str(a.FullName) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
		e.Field("addressLine1", func(e *jx.Encoder) { e.Str(a.AddressLine1) })
		if a.AddressLine2 != "" {
			e.Field("addressLine2", func(e *jx.Encoder) { e.Str(a.AddressLine2) })
		}
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
		e.Field("pincode", func(e *jx.Encoder) { e.Str(a.Pincode) })
	})
}

// encodeDecimal renders money as a fixed two-decimal JSON number.
func encodeDecimal(d decimal.Decimal) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.RawStr(d.StringFixed(2))
	}
}
