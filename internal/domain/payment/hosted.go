package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// HostedGatewayConfig configures the HTTP client for the hosted gateway.
type HostedGatewayConfig struct {
	BaseURL string
	// KeyID is the publishable key handed to the storefront as the client key.
	KeyID string
	// KeySecret signs requests and verifies completion signatures.
	KeySecret string
	Timeout   time.Duration
}

// HostedGateway talks to the external hosted-UI payment provider.
type HostedGateway struct {
	cfg    HostedGatewayConfig
	client *http.Client
	lg     *zap.Logger
}

// NewHostedGateway creates a gateway client. A zero Timeout defaults to 10s.
func NewHostedGateway(cfg HostedGatewayConfig, lg *zap.Logger) *HostedGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HostedGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		lg:     lg,
	}
}

type createOrderRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createOrderResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CreateOrder reserves the amount with the gateway and returns the opaque
// order reference plus the client key for the hosted UI.
func (g *HostedGateway) CreateOrder(ctx context.Context, p CreateParams) (*GatewayOrder, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   p.Amount.StringFixed(2),
		Currency: p.Currency,
		Receipt:  p.Receipt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal gateway request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		g.lg.Warn("gateway unreachable", zap.Error(err))
		return nil, &GatewayError{Op: "create order", Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &GatewayError{Op: "create order", Reason: "read response: " + err.Error()}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		g.lg.Warn("gateway rejected order creation",
			zap.Int("status", resp.StatusCode),
			zap.String("receipt", p.Receipt),
		)
		return nil, &GatewayError{Op: "create order", Reason: "unexpected status " + resp.Status}
	}

	var out createOrderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Op: "create order", Reason: "decode response: " + err.Error()}
	}
	if out.Error != nil {
		return nil, &GatewayError{Op: "create order", Reason: out.Error.Message}
	}
	if out.ID == "" {
		return nil, &GatewayError{Op: "create order", Reason: "empty order reference"}
	}

	g.lg.Debug("gateway order created",
		zap.String("gateway_order_id", out.ID),
		zap.String("receipt", p.Receipt),
	)

	return &GatewayOrder{
		ID:        out.ID,
		ClientKey: g.cfg.KeyID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	}, nil
}

// Verify checks the completion signature against the merchant secret.
func (g *HostedGateway) Verify(c Completion) error {
	if !VerifySignature(g.cfg.KeySecret, c) {
		return ErrVerificationFailed
	}
	return nil
}

// ClientKey returns the publishable key for the hosted UI.
func (g *HostedGateway) ClientKey() string { return g.cfg.KeyID }

// Demo reports false: this gateway settles real payments.
func (g *HostedGateway) Demo() bool { return false }
