// Package health implements /livez and /readyz probe endpoints backed by
// periodically evaluated checks.
//
// Every check runs on its own ticker goroutine. To keep probes from flapping
// on a single slow poll, a check flips to unhealthy only after failing
// failureThreshold times in a row, and back to healthy after succeeding
// successThreshold times in a row.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	failureThreshold = 3
	successThreshold = 1
)

type probeKind int

const (
	liveness probeKind = iota
	readiness
)

// probe is the runtime state of a single registered check.
//
// The consecutive counters are touched only by loop's goroutine and need no
// locking. healthy and lastErr are shared with the HTTP handlers, so they go
// through atomics.
type probe struct {
	name    string
	kind    probeKind
	timeout time.Duration
	check   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	consecutiveFails int
	consecutiveOK    int
}

func (p *probe) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(pollCtx)
	p.lastErr.Store(&err)

	if err != nil {
		p.consecutiveOK = 0
		p.consecutiveFails++
		if p.consecutiveFails >= failureThreshold {
			p.healthy.Store(false)
		}
		return
	}

	p.consecutiveFails = 0
	p.consecutiveOK++
	if p.consecutiveOK >= successThreshold {
		p.healthy.Store(true)
	}
}

func (p *probe) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error(), true
	}
	return "check is unhealthy", true
}

// Health aggregates probes and serves their combined state.
type Health struct {
	ready atomic.Bool

	// mu guards probes and cancel. Registration happens before Start; the
	// HTTP handlers only take a read lock to snapshot the slice.
	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New creates a Health service. It starts not ready; call SetReady(true)
// once initialization is done.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process itself
// is still functioning (goroutine leaks, GC stalls).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(name, liveness, timeout, check)
}

// AddReadinessCheck registers a check that decides whether the service should
// receive traffic (database reachable, caches warm).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(name, readiness, timeout, check)
}

func (h *Health) add(name string, kind probeKind, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := &probe{name: name, kind: kind, timeout: timeout, check: check}
	p.healthy.Store(true) // assume healthy until proven otherwise
	h.probes = append(h.probes, p)
}

// Start launches one polling goroutine per registered probe. Call it once,
// after all checks are registered.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, len(h.probes))
	copy(probes, h.probes)
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// SetReady flips the manual readiness gate. Graceful shutdown sets it false
// first so load balancers drain the instance before the listener closes.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the manual gate is open and every readiness probe
// is passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.snapshot(readiness) {
		if _, failed := p.failure(); failed {
			return false
		}
	}
	return true
}

// Stop cancels all polling goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *Health) snapshot(kind probeKind) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*probe, 0, len(h.probes))
	for _, p := range h.probes {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} while every liveness probe
// passes, 503 with per-check messages otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, failures(h.snapshot(liveness)))
}

// ReadyEndpoint serves /readyz. It fails while the manual gate is closed even
// if every probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	f := failures(h.snapshot(readiness))
	if !h.ready.Load() {
		f["_readiness"] = "service is not ready"
	}
	writeStatus(w, f)
}

func failures(probes []*probe) map[string]string {
	f := make(map[string]string)
	for _, p := range probes {
		if msg, failed := p.failure(); failed {
			f[p.name] = msg
		}
	}
	return f
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	// The status line is already out; an encode error here just means the
	// client went away.
	_ = json.NewEncoder(w).Encode(resp)
}
