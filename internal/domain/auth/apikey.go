package auth

import "context"

// Scopes grantable to API keys. Admin keys manage orders and coupons end to
// end; delivery keys only advance fulfilment statuses.
const (
	ScopeAdmin    = "admin"
	ScopeDelivery = "delivery"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope. Admin implies
// every other scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope || s == ScopeAdmin {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
