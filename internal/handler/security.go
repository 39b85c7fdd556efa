package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/cakekart/checkout-engine/internal/domain/auth"
)

var errUnauthorized = errors.New("unauthorized")

// Scope requirements for protected routes.
const (
	// ScopeAny admits any valid API key (admin or delivery).
	ScopeAny = ""
	// ScopeAdminOnly admits admin keys only.
	ScopeAdminOnly = auth.ScopeAdmin
)

type keyContextKey struct{}

// KeyFromContext returns the API key info attached by SecurityHandler.
func KeyFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(keyContextKey{}).(*auth.APIKeyInfo)
	return info, ok
}

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API keys
// carried in the X-API-Key header.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Require wraps next with authentication and an optional scope requirement.
func (s *SecurityHandler) Require(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.authenticate(r)
		if err != nil {
			writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if scope != ScopeAny && !info.HasScope(scope) {
			writeErrorMessage(w, http.StatusForbidden, "insufficient scope")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), keyContextKey{}, info)))
	}
}

// authenticate computes the HMAC-SHA256 of the presented key, looks it up,
// and performs a constant-time comparison to prevent timing attacks.
func (s *SecurityHandler) authenticate(r *http.Request) (*auth.APIKeyInfo, error) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		return nil, errUnauthorized
	}

	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(apiKey))
	hash := mac.Sum(nil)

	info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		return nil, errUnauthorized
	}

	// Constant-time comparison guards against timing side-channels even
	// though the lookup already succeeded; the stored hash could differ from
	// what we computed if the repository returns a stale row.
	storedBytes, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, errUnauthorized
	}
	if subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
		return nil, errUnauthorized
	}

	return info, nil
}
