//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestRequestID(t *testing.T) {
	t.Run("generated when missing", func(t *testing.T) {
		resp := doGet(t, "/livez")
		defer resp.Body.Close()

		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatal("X-Request-ID header not present")
		}
	})

	t.Run("caller value echoed back", func(t *testing.T) {
		const id = "custom-request-id-12345"
		resp := doRequest(t, http.MethodGet, "/livez", nil, map[string]string{
			"X-Request-ID": id,
		})
		defer resp.Body.Close()

		if got := resp.Header.Get("X-Request-ID"); got != id {
			t.Errorf("X-Request-ID: got %q, want %q", got, id)
		}
	})
}

func TestCORS_Preflight(t *testing.T) {
	resp := doRequest(t, http.MethodOptions, "/api/cart/"+newSessionID(), nil, map[string]string{
		"Origin":                        "http://example.com",
		"Access-Control-Request-Method": "GET",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	for _, header := range []string{"Access-Control-Allow-Origin", "Access-Control-Allow-Methods"} {
		if resp.Header.Get(header) == "" {
			t.Errorf("%s header not present", header)
		}
	}
}

func TestCORS_SimpleRequest(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/cart/"+newSessionID(), nil, map[string]string{
		"Origin": "http://example.com",
	})
	defer resp.Body.Close()

	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("Access-Control-Allow-Origin header not present")
	}
}

func TestRateLimit_Headers(t *testing.T) {
	resp := doGet(t, "/api/cart/"+newSessionID())
	defer resp.Body.Close()

	if resp.Header.Get("X-RateLimit-Limit") == "" {
		t.Error("X-RateLimit-Limit header not present")
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "" {
		t.Error("X-RateLimit-Remaining header not present")
	}
}
