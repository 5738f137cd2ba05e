// Package health provides liveness and readiness probes for the Huayu
// server. Probes are served from the metrics listener so orchestrators can
// watch the process without touching the learner-facing API:
//
//   - /healthz — liveness; 200 whenever the process serves HTTP.
//   - /readyz  — readiness; 200 only when every registered probe passes.
//
// Responses are JSON with a top-level "status" and a per-probe "checks" map.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds how long a single readiness probe may run.
const probeTimeout = 5 * time.Second

// Probe is a named readiness check. Fn returns nil when the dependency is
// usable and an error describing the failure otherwise. It must respect
// context cancellation.
type Probe struct {
	Name string
	Fn   func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The probe list is fixed at
// construction, so the handler is safe for concurrent use.
type Handler struct {
	probes []Probe
}

// New creates a [Handler] that runs the given probes, in order, on each
// /readyz request.
func New(probes ...Probe) *Handler {
	p := make([]Probe, len(probes))
	copy(p, probes)
	return &Handler{probes: p}
}

// Healthz always reports 200. A process that can answer is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every probe and reports 200 only when all pass. Each probe
// gets a [probeTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.probes))
	ready := true

	for _, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Fn(ctx)
		cancel()

		if err != nil {
			checks[p.Name] = "fail: " + err.Error()
			ready = false
		} else {
			checks[p.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ready {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
