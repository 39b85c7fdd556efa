package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware behaviour.
type CORSConfig struct {
	// AllowOrigins lists the origins allowed to make cross-origin requests.
	// An empty list or the single entry "*" allows every origin.
	AllowOrigins []string

	// AllowMethods lists the HTTP methods clients may use in actual requests.
	// Defaults to "GET, POST, PUT, DELETE, OPTIONS" when empty.
	AllowMethods []string

	// AllowHeaders lists the request headers clients may use. When empty the
	// middleware echoes back Access-Control-Request-Headers from the
	// preflight request.
	AllowHeaders []string

	// ExposeHeaders lists response headers the browser is allowed to access.
	ExposeHeaders []string

	// AllowCredentials permits cookies and auth headers on cross-origin
	// requests. Browsers reject credentials combined with a wildcard origin,
	// so when set the middleware always echoes the specific origin.
	AllowCredentials bool

	// MaxAge is how long (in seconds) preflight results can be cached.
	// Zero omits the header; a negative value sends "0".
	MaxAge int
}

// corsPolicy is the precomputed form of a CORSConfig.
type corsPolicy struct {
	allowAll         bool
	allowed          map[string]string // lowercase -> original case
	allowMethods     string
	allowHeaders     string
	exposeHeaders    string
	allowCredentials bool
	maxAge           string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		allowAll:         len(cfg.AllowOrigins) == 0,
		allowed:          make(map[string]string, len(cfg.AllowOrigins)),
		allowMethods:     strings.Join(cfg.AllowMethods, ", "),
		allowHeaders:     strings.Join(cfg.AllowHeaders, ", "),
		exposeHeaders:    strings.Join(cfg.ExposeHeaders, ", "),
		allowCredentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.allowAll = true
			break
		}
		p.allowed[strings.ToLower(o)] = o
	}
	if p.allowCredentials {
		p.allowAll = false
	}
	if p.allowMethods == "" {
		p.allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	} else if cfg.MaxAge < 0 {
		p.maxAge = "0"
	}
	return p
}

// originFor returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is not allowed. Matching is case-insensitive, but the
// original-case value from the config is echoed back.
func (p *corsPolicy) originFor(origin string) string {
	if p.allowAll {
		return "*"
	}
	if orig, ok := p.allowed[strings.ToLower(origin)]; ok {
		return orig
	}
	return ""
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing:
// case-insensitive origin matching, Vary headers so shared caches never mix
// per-origin responses, and preflight answered without hitting the handler.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Same-origin request. Still vary on Origin when the policy is
			// origin-specific so caches keep responses apart.
			if origin == "" {
				if !p.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			// Preflight: OPTIONS plus Access-Control-Request-Method.
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, origin)
				return
			}

			if !p.allowAll {
				w.Header().Add("Vary", "Origin")
			}
			if allowOrigin := p.originFor(origin); allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				if p.allowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if p.exposeHeaders != "" {
					w.Header().Set("Access-Control-Expose-Headers", p.exposeHeaders)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	w.Header().Add("Vary", "Origin")
	w.Header().Add("Vary", "Access-Control-Request-Method")
	w.Header().Add("Vary", "Access-Control-Request-Headers")

	allowOrigin := p.originFor(origin)
	if allowOrigin == "" {
		// Disallowed origin: 204 with no CORS headers, the browser blocks it.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", p.allowMethods)

	if p.allowHeaders != "" {
		w.Header().Set("Access-Control-Allow-Headers", p.allowHeaders)
	} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
		w.Header().Set("Access-Control-Allow-Headers", rh)
	}

	if p.allowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if p.maxAge != "" {
		w.Header().Set("Access-Control-Max-Age", p.maxAge)
	}

	w.WriteHeader(http.StatusNoContent)
}
