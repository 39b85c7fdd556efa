//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			resp := doGet(t, path)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("GET %s: expected 200, got %d", path, resp.StatusCode)
			}

			body := decodeJSON[healthResponse](t, resp)
			if body.Status != "ok" {
				t.Fatalf("GET %s: expected status ok, got %q", path, body.Status)
			}
			if len(body.Checks) != 0 {
				t.Fatalf("GET %s: unexpected failing checks: %v", path, body.Checks)
			}
		})
	}
}
