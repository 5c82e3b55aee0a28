// Package health implements liveness and readiness probes. Checks run on
// their own tickers; probe handlers only read cached results, so a slow
// database never stalls /livez or /readyz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Consecutive-failure thresholds keep a single flaky probe from flipping the
// reported state back and forth.
const (
	failsToUnhealthy = 3
	oksToHealthy     = 1
)

type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Value // string

	fails int
	oks   int
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{name: name, timeout: timeout, check: check}
	p.healthy.Store(true)
	p.lastErr.Store("")
	return p
}

// tick runs the check once. Only the probe's own goroutine calls tick, so the
// consecutive counters need no locking; handlers read healthy and lastErr
// atomically.
func (p *probe) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.check(ctx); err != nil {
		p.lastErr.Store(err.Error())
		p.oks = 0
		if p.fails++; p.fails >= failsToUnhealthy {
			p.healthy.Store(false)
		}
		return
	}
	p.lastErr.Store("")
	p.fails = 0
	if p.oks++; p.oks >= oksToHealthy {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	msg, _ := p.lastErr.Load().(string)
	if msg == "" {
		msg = "check is unhealthy"
	}
	return msg, true
}

func (p *probe) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Health aggregates probes and serves them as Kubernetes-style endpoints.
// The zero state is not ready; call SetReady(true) once startup completes and
// SetReady(false) at the beginning of shutdown to drain traffic.
type Health struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a process-level check, such as goroutine count.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a dependency check, such as database
// connectivity. A failing readiness check takes the service out of rotation
// without restarting it.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check))
}

// Start launches one goroutine per registered probe. Register all checks
// before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append(append([]*probe(nil), h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// Stop halts all probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service was marked ready and every readiness
// probe currently passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.Lock()
	probes := h.readiness
	h.mu.Unlock()
	for _, p := range probes {
		if _, failed := p.failure(); failed {
			return false
		}
	}
	return true
}

// LiveEndpoint serves /livez: 200 while liveness probes pass, 503 with the
// failing checks otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	probes := append([]*probe(nil), h.liveness...)
	h.mu.Unlock()
	writeProbeStatus(w, failures(probes))
}

// ReadyEndpoint serves /readyz: 200 only when SetReady(true) was called and
// every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	probes := append([]*probe(nil), h.readiness...)
	h.mu.Unlock()

	failed := failures(probes)
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeProbeStatus(w, failed)
}

func failures(probes []*probe) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		if msg, failed := p.failure(); failed {
			out[p.name] = msg
		}
	}
	return out
}

func writeProbeStatus(w http.ResponseWriter, failed map[string]string) {
	type status struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}

	w.Header().Set("Content-Type", "application/json")
	resp := status{Status: "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		resp = status{Status: "unhealthy", Checks: failed}
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
