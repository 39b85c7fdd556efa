package payment

import (
	"context"

	"github.com/google/uuid"
)

// DemoGateway synthesizes successful gateway interactions without any
// external calls. It is used when the real gateway is unconfigured so local
// and demo environments can exercise the full online flow. Every result it
// produces is flagged, and downstream reporting must never count demo
// payments as verified revenue settlements.
type DemoGateway struct {
	secret string
}

// NewDemoGateway creates a demo gateway. The secret only needs to be stable
// within the process; completions it signs verify against it.
func NewDemoGateway(secret string) *DemoGateway {
	if secret == "" {
		secret = "demo-" + uuid.NewString()
	}
	return &DemoGateway{secret: secret}
}

// CreateOrder fabricates a gateway order reference.
func (g *DemoGateway) CreateOrder(_ context.Context, p CreateParams) (*GatewayOrder, error) {
	return &GatewayOrder{
		ID:        "demo_order_" + uuid.NewString(),
		ClientKey: "demo_key",
		Amount:    p.Amount,
		Currency:  p.Currency,
	}, nil
}

// CompleteOrder fabricates the hosted-UI completion for a demo order,
// including a signature that Verify accepts.
func (g *DemoGateway) CompleteOrder(gatewayOrderID string) Completion {
	paymentID := "demo_pay_" + uuid.NewString()
	return Completion{
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        Sign(g.secret, gatewayOrderID, paymentID),
	}
}

// Verify checks the completion against the demo secret.
func (g *DemoGateway) Verify(c Completion) error {
	if !VerifySignature(g.secret, c) {
		return ErrVerificationFailed
	}
	return nil
}

// ClientKey returns the placeholder key the demo storefront uses.
func (g *DemoGateway) ClientKey() string { return "demo_key" }

// Demo reports true: results from this gateway are synthesized.
func (g *DemoGateway) Demo() bool { return true }
