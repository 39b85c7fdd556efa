package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the completion signature the gateway attaches to a finished
// payment: HMAC-SHA256 over "<gatewayOrderID>|<gatewayPaymentID>" keyed with
// the merchant secret, hex encoded.
func Sign(secret, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the expected signature and compares it in
// constant time.
func VerifySignature(secret string, c Completion) bool {
	expected := Sign(secret, c.GatewayOrderID, c.GatewayPaymentID)
	got, err := hex.DecodeString(c.Signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(expected)
	return hmac.Equal(got, want)
}
