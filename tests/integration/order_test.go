//go:build integration

package integration

import (
	"net/http"
	"testing"
)

// placeCODOrder walks a session through cart, address, and COD placement.
func placeCODOrder(t *testing.T, unitPrice float64) orderResponse {
	t.Helper()

	session := newSessionID()
	addItem(t, session, cartItemRequest{ProductID: "pineapple", Name: "Pineapple Cake", UnitPrice: unitPrice, Quantity: 1})
	submitAddress(t, session)

	resp := doRequest(t, http.MethodPost, "/api/payment/cod",
		map[string]string{"sessionId": session},
		map[string]string{"Idempotency-Key": newSessionID()},
	)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place COD: expected 200, got %d", resp.StatusCode)
	}
	return decodeJSON[orderResponse](t, resp)
}

func TestPlaceCOD(t *testing.T) {
	session := newSessionID()
	addItem(t, session, cartItemRequest{ProductID: "choco-loaded", Name: "Chocolate Overload Cake", UnitPrice: 1000, Quantity: 1})

	resp := doPost(t, "/api/cart/"+session+"/coupon", map[string]string{"code": "SAVE100"})
	resp.Body.Close()
	submitAddress(t, session)

	resp = doRequest(t, http.MethodPost, "/api/payment/cod",
		map[string]string{"sessionId": session},
		map[string]string{"Idempotency-Key": "cod-" + session},
	)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderResponse](t, resp)
	if o.Status != "pending" {
		t.Errorf("status: got %q, want %q", o.Status, "pending")
	}
	if o.PaymentMethod != "cod" {
		t.Errorf("payment method: got %q, want %q", o.PaymentMethod, "cod")
	}
	// 1000 - 100 coupon, free delivery.
	if o.TotalPrice != 900 {
		t.Errorf("total: got %v, want 900", o.TotalPrice)
	}
	if o.CouponCode != "SAVE100" {
		t.Errorf("coupon code: got %q, want %q", o.CouponCode, "SAVE100")
	}

	// The cart is consumed by a successful COD placement.
	cartResp := doGet(t, "/api/cart/"+session)
	c := decodeJSON[cartResponse](t, cartResp)
	cartResp.Body.Close()
	if len(c.Items) != 0 {
		t.Errorf("cart not cleared after COD placement: %d items", len(c.Items))
	}
}

func TestPlaceCOD_DuplicateKeyReplays(t *testing.T) {
	session := newSessionID()
	addItem(t, session, cartItemRequest{ProductID: "pineapple", Name: "Pineapple Cake", UnitPrice: 800, Quantity: 1})
	submitAddress(t, session)

	key := "dup-" + session
	resp := doRequest(t, http.MethodPost, "/api/payment/cod",
		map[string]string{"sessionId": session}, map[string]string{"Idempotency-Key": key})
	first := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	resp = doRequest(t, http.MethodPost, "/api/payment/cod",
		map[string]string{"sessionId": session}, map[string]string{"Idempotency-Key": key})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", resp.StatusCode)
	}
	second := decodeJSON[orderResponse](t, resp)
	if second.ID != first.ID {
		t.Errorf("replay created a new order: %q != %q", second.ID, first.ID)
	}
}

func TestPlaceCOD_MissingIdempotencyKey(t *testing.T) {
	resp := doPost(t, "/api/payment/cod", map[string]string{"sessionId": newSessionID()})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOnlinePayment_CancelThenRetryKeepsOneOrder(t *testing.T) {
	session := newSessionID()
	addItem(t, session, cartItemRequest{ProductID: "brownie-box", Name: "Brownie Box", UnitPrice: 300, Quantity: 1})
	submitAddress(t, session)

	resp := doRequest(t, http.MethodPost, "/api/payment/create-order",
		map[string]string{"sessionId": session},
		map[string]string{"Idempotency-Key": "pay-" + session},
	)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create-order: expected 200, got %d", resp.StatusCode)
	}
	first := decodeJSON[paymentIntentResponse](t, resp)
	resp.Body.Close()

	resp = doPost(t, "/api/payment/cancel", map[string]string{"gatewayOrderId": first.GatewayOrderID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// A retry with a fresh key gets a fresh gateway reference for the same
	// order instead of a duplicate.
	resp = doRequest(t, http.MethodPost, "/api/payment/create-order",
		map[string]string{"sessionId": session},
		map[string]string{"Idempotency-Key": "retry-" + session},
	)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry create-order: expected 200, got %d", resp.StatusCode)
	}
	second := decodeJSON[paymentIntentResponse](t, resp)
	resp.Body.Close()

	if second.OrderID != first.OrderID {
		t.Errorf("retry created a new order: %q != %q", second.OrderID, first.OrderID)
	}
	if second.GatewayOrderID == first.GatewayOrderID {
		t.Errorf("retry reused the cancelled gateway order %q", first.GatewayOrderID)
	}

	paymentID := "pay_" + randomHex(8)
	resp = doPost(t, "/api/payment/verify", map[string]string{
		"orderId":          second.OrderID,
		"sessionId":        session,
		"gatewayOrderId":   second.GatewayOrderID,
		"gatewayPaymentId": paymentID,
		"signature":        signCompletion(second.GatewayOrderID, paymentID),
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", resp.StatusCode)
	}
	v := decodeJSON[verifyResponse](t, resp)
	if v.Status != "confirmed" {
		t.Errorf("status after verify: got %q, want %q", v.Status, "confirmed")
	}
}

func TestOnlinePayment_VerifyConfirms(t *testing.T) {
	session := newSessionID()
	addItem(t, session, cartItemRequest{ProductID: "brownie-box", Name: "Brownie Box", UnitPrice: 300, Quantity: 1})
	submitAddress(t, session)

	resp := doRequest(t, http.MethodPost, "/api/payment/create-order",
		map[string]string{"sessionId": session},
		map[string]string{"Idempotency-Key": "pay-" + session},
	)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create-order: expected 200, got %d", resp.StatusCode)
	}
	intent := decodeJSON[paymentIntentResponse](t, resp)
	resp.Body.Close()

	// 300 + 49 delivery.
	if intent.Amount != 349 {
		t.Errorf("amount: got %v, want 349", intent.Amount)
	}
	if intent.Currency != "INR" {
		t.Errorf("currency: got %q, want %q", intent.Currency, "INR")
	}

	paymentID := "pay_" + randomHex(8)
	resp = doPost(t, "/api/payment/verify", map[string]string{
		"orderId":          intent.OrderID,
		"sessionId":        session,
		"gatewayOrderId":   intent.GatewayOrderID,
		"gatewayPaymentId": paymentID,
		"signature":        signCompletion(intent.GatewayOrderID, paymentID),
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", resp.StatusCode)
	}
	v := decodeJSON[verifyResponse](t, resp)
	if !v.OK || v.Status != "confirmed" {
		t.Errorf("verify result: %+v, want ok/confirmed", v)
	}

	cartResp := doGet(t, "/api/cart/"+session)
	c := decodeJSON[cartResponse](t, cartResp)
	cartResp.Body.Close()
	if len(c.Items) != 0 {
		t.Errorf("cart not cleared after verified payment: %d items", len(c.Items))
	}
}

func TestOnlinePayment_TamperedSignature(t *testing.T) {
	session := newSessionID()
	addItem(t, session, cartItemRequest{ProductID: "brownie-box", Name: "Brownie Box", UnitPrice: 300, Quantity: 1})
	submitAddress(t, session)

	resp := doRequest(t, http.MethodPost, "/api/payment/create-order",
		map[string]string{"sessionId": session},
		map[string]string{"Idempotency-Key": "tamper-" + session},
	)
	intent := decodeJSON[paymentIntentResponse](t, resp)
	resp.Body.Close()

	resp = doPost(t, "/api/payment/verify", map[string]string{
		"orderId":          intent.OrderID,
		"sessionId":        session,
		"gatewayOrderId":   intent.GatewayOrderID,
		"gatewayPaymentId": "pay_tampered",
		"signature":        signCompletion(intent.GatewayOrderID, "pay_other"),
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.StatusCode)
	}

	// The order stays pending and the cart survives for a retry.
	orderResp := doRequest(t, http.MethodGet, "/api/orders/"+intent.OrderID, nil,
		map[string]string{"X-API-Key": adminAPIKey})
	o := decodeJSON[orderResponse](t, orderResp)
	orderResp.Body.Close()
	if o.Status != "pending" {
		t.Errorf("status after tampered verify: got %q, want %q", o.Status, "pending")
	}

	cartResp := doGet(t, "/api/cart/"+session)
	c := decodeJSON[cartResponse](t, cartResp)
	cartResp.Body.Close()
	if len(c.Items) != 1 {
		t.Errorf("cart lost after failed verify: %d items", len(c.Items))
	}
}

func TestOrders_RequireAPIKey(t *testing.T) {
	resp := doGet(t, "/api/orders")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestOrders_WrongKey(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/orders", nil,
		map[string]string{"X-API-Key": "not-a-key"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestOrders_StatsAdminOnly(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/orders/stats", nil,
		map[string]string{"X-API-Key": deliveryAPIKey})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("delivery key on stats: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	placeCODOrder(t, 700)

	resp = doRequest(t, http.MethodGet, "/api/orders/stats", nil,
		map[string]string{"X-API-Key": adminAPIKey})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin key on stats: expected 200, got %d", resp.StatusCode)
	}

	st := decodeJSON[statsResponse](t, resp)
	if st.TotalOrders < 1 {
		t.Errorf("total orders: got %d, want >= 1", st.TotalOrders)
	}
	if st.ByStatus["pending"] < 1 {
		t.Errorf("pending count: got %d, want >= 1", st.ByStatus["pending"])
	}
}

func TestOrders_StatusTransitions(t *testing.T) {
	o := placeCODOrder(t, 600)
	path := "/api/orders/" + o.ID

	// Delivery keys cannot confirm a pending order.
	resp := doRequest(t, http.MethodPut, path,
		map[string]string{"status": "confirmed"},
		map[string]string{"X-API-Key": deliveryAPIKey})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("delivery confirm: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Admin confirms, then moves to processing.
	for _, status := range []string{"confirmed", "processing"} {
		resp = doRequest(t, http.MethodPut, path,
			map[string]string{"status": status},
			map[string]string{"X-API-Key": adminAPIKey})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("admin -> %s: expected 200, got %d", status, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// Skipping ahead is rejected.
	resp = doRequest(t, http.MethodPut, path,
		map[string]string{"status": "delivered"},
		map[string]string{"X-API-Key": adminAPIKey})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("skip to delivered: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Delivery advances fulfilment.
	resp = doRequest(t, http.MethodPut, path,
		map[string]string{"status": "shipped"},
		map[string]string{"X-API-Key": deliveryAPIKey})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delivery ship: expected 200, got %d", resp.StatusCode)
	}
	updated := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if updated.Status != "shipped" {
		t.Errorf("status: got %q, want %q", updated.Status, "shipped")
	}
}

func TestOrders_GetUnknown(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/orders/no-such-order", nil,
		map[string]string{"X-API-Key": adminAPIKey})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
