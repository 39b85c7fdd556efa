package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cakekart/checkout-engine/internal/domain/auth"
	"github.com/cakekart/checkout-engine/internal/domain/cart"
	"github.com/cakekart/checkout-engine/internal/domain/coupon"
	"github.com/cakekart/checkout-engine/internal/domain/order"
	"github.com/cakekart/checkout-engine/internal/domain/payment"
)

const (
	testPepper        = "test-pepper"
	adminAPIKey       = "admin-key"
	deliveryAPIKey    = "delivery-key"
	testGatewaySecret = "test-secret"
)

// In-memory backends. The handler tests run the real services end to end;
// only the persistence and the gateway are faked.

type memCartRepo struct {
	mu       sync.Mutex
	sessions map[string]*cart.Session
}

func (m *memCartRepo) Get(_ context.Context, id string) (*cart.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, cart.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memCartRepo) Save(_ context.Context, s *cart.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memCartRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type memCouponRepo struct {
	mu    sync.Mutex
	rules map[string]*coupon.Rule
	uses  map[string]int
}

func (m *memCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[code]
	if !ok {
		return nil, coupon.ErrInvalidCode
	}
	return rule, nil
}

func (m *memCouponRepo) Uses(_ context.Context, code, scopeKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uses[code+"|"+scopeKey], nil
}

func (m *memCouponRepo) RecordUse(_ context.Context, code, scopeKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uses[code+"|"+scopeKey]++
	return nil
}

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func (m *memOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) List(_ context.Context) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *memOrderRepo) UpdateStatus(_ context.Context, id string, from, to order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return &order.LifecycleError{From: o.Status, To: to}
	}
	o.Status = to
	return nil
}

type memPaymentRepo struct {
	mu      sync.Mutex
	records map[string]*payment.Record
}

func (m *memPaymentRepo) Create(_ context.Context, r *payment.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *memPaymentRepo) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.GatewayOrderID == gatewayOrderID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, payment.ErrRecordNotFound
}

func (m *memPaymentRepo) FindLatestByOrderID(_ context.Context, orderID string) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *payment.Record
	for _, r := range m.records {
		if r.OrderID == orderID && (latest == nil || r.CreatedAt.After(latest.CreatedAt)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, payment.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memPaymentRepo) MarkVerified(_ context.Context, id string, c payment.Completion, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[id]
	r.GatewayPaymentID = c.GatewayPaymentID
	r.Signature = c.Signature
	r.Outcome = payment.OutcomeAuthorized
	r.Verified = true
	r.VerifiedAt = &at
	return nil
}

func (m *memPaymentRepo) RecordOutcome(_ context.Context, id string, outcome payment.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id].Outcome = outcome
	return nil
}

type memIdemStore struct {
	mu   sync.Mutex
	keys map[string]*order.IdemRecord
}

func (m *memIdemStore) Begin(_ context.Context, key string) (bool, *order.IdemRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.keys[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	m.keys[key] = &order.IdemRecord{Key: key, Status: order.IdemInProgress}
	return true, nil, nil
}

func (m *memIdemStore) Complete(_ context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key].Status = order.IdemDone
	m.keys[key].OrderID = orderID
	return nil
}

func (m *memIdemStore) Fail(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key].Status = order.IdemFailed
	return nil
}

type memAPIKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (m *memAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.keys[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return info, nil
}

func hashKey(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

type env struct {
	mux     *http.ServeMux
	gateway *payment.DemoGateway
}

func newEnv(t *testing.T) *env {
	t.Helper()

	cartRepo := &memCartRepo{sessions: make(map[string]*cart.Session)}
	couponRepo := &memCouponRepo{
		rules: map[string]*coupon.Rule{
			"SAVE100": {
				Code:          "SAVE100",
				Description:   "Flat 100 off on orders above 500",
				DiscountType:  coupon.DiscountFixed,
				Value:         decimal.NewFromInt(100),
				MinOrderValue: decimal.NewFromInt(500),
			},
		},
		uses: make(map[string]int),
	}
	redeemer := coupon.NewRepoValidator(couponRepo, coupon.UsageGlobal)
	carts := cart.NewService(cartRepo, redeemer)

	gateway := payment.NewDemoGateway(testGatewaySecret)
	orders := order.NewService(
		&memOrderRepo{orders: make(map[string]*order.Order)},
		&memPaymentRepo{records: make(map[string]*payment.Record)},
		gateway,
		redeemer,
		cartRepo,
		&memIdemStore{keys: make(map[string]*order.IdemRecord)},
		order.PricingConfig{
			FreeDeliveryThreshold: decimal.NewFromInt(499),
			DeliveryFee:           decimal.NewFromInt(49),
			Currency:              "INR",
		},
	)

	security := NewSecurityHandler(&memAPIKeyRepo{
		keys: map[string]*auth.APIKeyInfo{
			hashKey(adminAPIKey): {
				ID: "k1", KeyHash: hashKey(adminAPIKey),
				Name: "admin", Scopes: []string{auth.ScopeAdmin},
			},
			hashKey(deliveryAPIKey): {
				ID: "k2", KeyHash: hashKey(deliveryAPIKey),
				Name: "delivery", Scopes: []string{auth.ScopeDelivery},
			},
		},
	}, []byte(testPepper))

	return &env{
		mux:     NewHandler(carts, orders, security).Routes(),
		gateway: gateway,
	}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded),
			"body: %s", rec.Body.String())
	}
	return rec, decoded
}

func (e *env) addItem(t *testing.T, session, productID string, price int64, qty int) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/cart/"+session+"/items", map[string]any{
		"productId": productID,
		"name":      "Chocolate Truffle Cake",
		"unitPrice": price,
		"quantity":  qty,
	}, nil)
}

func validAddressBody() map[string]any {
	return map[string]any{
		"fullName":     "Asha Nair",
		"phone":        "9876543210",
		"addressLine1": "12 Hill View Road",
		"city":         "Kochi",
		"state":        "Kerala",
		"pincode":      "682001",
	}
}

func TestCartEndpoints(t *testing.T) {
	e := newEnv(t)

	rec, body := e.addItem(t, "s1", "choc", 300, 1)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 300.0, body["subtotal"])
	assert.Equal(t, 49.0, body["deliveryFee"])
	assert.Equal(t, 349.0, body["totalPrice"])

	// Crossing the free-delivery threshold drops the fee.
	rec, body = e.addItem(t, "s1", "gift", 250, 1)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 550.0, body["subtotal"])
	assert.Equal(t, 0.0, body["deliveryFee"])
	assert.Equal(t, 550.0, body["totalPrice"])

	rec, body = e.do(t, http.MethodPut, "/api/cart/s1/items/gift",
		map[string]any{"quantity": 0}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 300.0, body["subtotal"])

	rec, _ = e.do(t, http.MethodDelete, "/api/cart/s1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = e.do(t, http.MethodGet, "/api/cart/s1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["items"])
}

func TestCartEndpoints_BadRequests(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(t, http.MethodPost, "/api/cart/s1/items",
		map[string]any{"productId": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/s1/items",
		bytes.NewBufferString("{not json"))
	rec2 := httptest.NewRecorder()
	e.mux.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestCouponEndpoints(t *testing.T) {
	e := newEnv(t)

	e.addItem(t, "s1", "choc", 300, 1)

	// Below the coupon's minimum order value.
	rec, body := e.do(t, http.MethodPost, "/api/cart/s1/coupon",
		map[string]any{"code": "SAVE100"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["message"], "more to use this coupon")

	rec, _ = e.do(t, http.MethodPost, "/api/cart/s1/coupon",
		map[string]any{"code": "NOPE"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	e.addItem(t, "s1", "gift", 700, 1)
	rec, body = e.do(t, http.MethodPost, "/api/cart/s1/coupon",
		map[string]any{"code": "SAVE100"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100.0, body["couponDiscount"])
	assert.Equal(t, 900.0, body["totalPrice"])

	// Shrinking the cart below the minimum drops the coupon.
	rec, body = e.do(t, http.MethodDelete, "/api/cart/s1/items/gift", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["coupon"])
	assert.Equal(t, 0.0, body["couponDiscount"])
}

func TestCheckoutEndpoints(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "s1", "choc", 300, 1)

	rec, body := e.do(t, http.MethodPost, "/api/checkout/s1/address", map[string]any{
		"fullName": "Asha Nair",
		"phone":    "12345",
		"pincode":  "1234",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok, "expected field errors, got %v", body)
	assert.Contains(t, fields, "phone")
	assert.Contains(t, fields, "pincode")

	rec, body = e.do(t, http.MethodPost, "/api/checkout/s1/address", validAddressBody(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	co := body["checkout"].(map[string]any)
	assert.Equal(t, "payment", co["step"])

	rec, body = e.do(t, http.MethodPost, "/api/checkout/s1/back", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	co = body["checkout"].(map[string]any)
	assert.Equal(t, "address", co["step"])
	require.NotNil(t, co["address"], "address must survive back navigation")
}

func TestCheckout_EmptyCart(t *testing.T) {
	e := newEnv(t)
	rec, _ := e.do(t, http.MethodPost, "/api/checkout/s1/address", validAddressBody(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceCOD_EndToEnd(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "s1", "choc", 1000, 1)
	e.do(t, http.MethodPost, "/api/cart/s1/coupon", map[string]any{"code": "SAVE100"}, nil)
	e.do(t, http.MethodPost, "/api/checkout/s1/address", validAddressBody(), nil)

	rec, body := e.do(t, http.MethodPost, "/api/payment/cod",
		map[string]any{"sessionId": "s1"},
		map[string]string{"Idempotency-Key": "cod-1"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", body)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "cod", body["paymentMethod"])
	assert.Equal(t, 100.0, body["couponDiscount"])
	assert.Equal(t, 900.0, body["totalPrice"])
	orderID := body["id"].(string)

	// Same key replays the stored order instead of placing twice.
	rec, body = e.do(t, http.MethodPost, "/api/payment/cod",
		map[string]any{"sessionId": "s1"},
		map[string]string{"Idempotency-Key": "cod-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orderID, body["id"])

	rec, _ = e.do(t, http.MethodPost, "/api/payment/cod",
		map[string]any{"sessionId": "s1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing Idempotency-Key")
}

func TestOnlinePayment_EndToEnd(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "s1", "choc", 300, 1)
	e.do(t, http.MethodPost, "/api/checkout/s1/address", validAddressBody(), nil)

	rec, body := e.do(t, http.MethodPost, "/api/payment/create-order",
		map[string]any{"sessionId": "s1"},
		map[string]string{"Idempotency-Key": "pay-1"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", body)
	assert.Equal(t, 349.0, body["amount"])
	assert.Equal(t, "INR", body["currency"])
	orderID := body["orderId"].(string)
	gatewayOrderID := body["gatewayOrderId"].(string)

	completion := e.gateway.CompleteOrder(gatewayOrderID)
	rec, body = e.do(t, http.MethodPost, "/api/payment/verify", map[string]any{
		"orderId":          orderID,
		"sessionId":        "s1",
		"gatewayOrderId":   completion.GatewayOrderID,
		"gatewayPaymentId": completion.GatewayPaymentID,
		"signature":        completion.Signature,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", body)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "confirmed", body["status"])

	// The cart is cleared only after a verified payment.
	_, cartBody := e.do(t, http.MethodGet, "/api/cart/s1", nil, nil)
	assert.Empty(t, cartBody["items"])
}

func TestOnlinePayment_TamperedSignature(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "s1", "choc", 300, 1)
	e.do(t, http.MethodPost, "/api/checkout/s1/address", validAddressBody(), nil)

	_, body := e.do(t, http.MethodPost, "/api/payment/create-order",
		map[string]any{"sessionId": "s1"},
		map[string]string{"Idempotency-Key": "pay-1"})
	orderID := body["orderId"].(string)
	gatewayOrderID := body["gatewayOrderId"].(string)

	completion := e.gateway.CompleteOrder(gatewayOrderID)
	rec, _ := e.do(t, http.MethodPost, "/api/payment/verify", map[string]any{
		"orderId":          orderID,
		"sessionId":        "s1",
		"gatewayOrderId":   completion.GatewayOrderID,
		"gatewayPaymentId": completion.GatewayPaymentID,
		"signature":        "deadbeef",
	}, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	// Order remains pending; the cart is untouched.
	_, cartBody := e.do(t, http.MethodGet, "/api/cart/s1", nil, nil)
	assert.NotEmpty(t, cartBody["items"])
}

func TestOrderEndpoints_Auth(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(t, http.MethodGet, "/api/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/orders", nil,
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/orders", nil,
		map[string]string{"X-API-Key": deliveryAPIKey})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/orders/stats", nil,
		map[string]string{"X-API-Key": deliveryAPIKey})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/orders/stats", nil,
		map[string]string{"X-API-Key": adminAPIKey})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderEndpoints_Transitions(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "s1", "choc", 1000, 1)
	e.do(t, http.MethodPost, "/api/checkout/s1/address", validAddressBody(), nil)
	_, body := e.do(t, http.MethodPost, "/api/payment/cod",
		map[string]any{"sessionId": "s1"},
		map[string]string{"Idempotency-Key": "cod-1"})
	orderID := body["id"].(string)

	admin := map[string]string{"X-API-Key": adminAPIKey}
	delivery := map[string]string{"X-API-Key": deliveryAPIKey}

	// Delivery keys cannot confirm a pending order.
	rec, _ := e.do(t, http.MethodPut, "/api/orders/"+orderID,
		map[string]any{"status": "confirmed"}, delivery)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = e.do(t, http.MethodPut, "/api/orders/"+orderID,
		map[string]any{"status": "confirmed"}, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	// No skipping ahead.
	rec, _ = e.do(t, http.MethodPut, "/api/orders/"+orderID,
		map[string]any{"status": "delivered"}, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = e.do(t, http.MethodPut, "/api/orders/"+orderID,
		map[string]any{"status": "processing"}, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(t, http.MethodPut, "/api/orders/"+orderID,
		map[string]any{"status": "shipped"}, delivery)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(t, http.MethodPut, "/api/orders/"+orderID,
		map[string]any{"status": "nonsense"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPut, "/api/orders/missing",
		map[string]any{"status": "confirmed"}, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderStats(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "s1", "choc", 1000, 1)
	e.do(t, http.MethodPost, "/api/checkout/s1/address", validAddressBody(), nil)
	_, body := e.do(t, http.MethodPost, "/api/payment/cod",
		map[string]any{"sessionId": "s1"},
		map[string]string{"Idempotency-Key": "cod-1"})
	orderID := body["id"].(string)

	admin := map[string]string{"X-API-Key": adminAPIKey}
	e.do(t, http.MethodPut, "/api/orders/"+orderID, map[string]any{"status": "confirmed"}, admin)

	rec, stats := e.do(t, http.MethodGet, "/api/orders/stats", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, stats["totalOrders"])
	assert.Equal(t, 1000.0, stats["realizedRevenue"])
	byStatus := stats["byStatus"].(map[string]any)
	assert.Equal(t, 1.0, byStatus["confirmed"])
}
