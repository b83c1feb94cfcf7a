// Package health serves the voicelink ops endpoint's liveness and readiness
// probes.
//
// /healthz answers 200 whenever the process can serve HTTP at all. /readyz
// runs every registered probe and answers 200 only when all of them pass;
// the JSON body lists each probe's outcome so a failing readiness check
// names its cause.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/godt333/voicelink/internal/session"
)

// defaultProbeTimeout bounds a single readiness probe.
const defaultProbeTimeout = 5 * time.Second

// Probe checks one dependency. A nil return means the dependency can serve;
// the error otherwise names the cause. Probes must honor ctx cancellation.
type Probe func(ctx context.Context) error

// SessionProbe passes only while the realtime session is connected. An idle,
// reconnecting or failed client can still serve its UI but should not
// receive traffic that assumes live audio.
func SessionProbe(state func() session.State) Probe {
	return func(context.Context) error {
		if s := state(); s != session.StateConnected {
			return fmt.Errorf("session is %s", s)
		}
		return nil
	}
}

// Handler serves /healthz and /readyz. Register all probes before handing
// the routes to a mux; the probe list is not locked.
type Handler struct {
	timeout time.Duration
	probes  []namedProbe
}

type namedProbe struct {
	name  string
	probe Probe
}

// Option configures a Handler.
type Option func(*Handler)

// WithProbeTimeout overrides the per-probe deadline.
func WithProbeTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a Handler with no probes registered. A probeless handler
// reports ready unconditionally.
func New(opts ...Option) *Handler {
	h := &Handler{timeout: defaultProbeTimeout}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Add registers a named readiness probe. Probes run sequentially in
// registration order. Returns h for chaining.
func (h *Handler) Add(name string, p Probe) *Handler {
	h.probes = append(h.probes, namedProbe{name: name, probe: p})
	return h
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleLive)
	mux.HandleFunc("GET /readyz", h.handleReady)
}

// probeReport is one probe's outcome in the readiness body.
type probeReport struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
	Cause string `json:"cause,omitempty"`
}

// response is the JSON body for both endpoints. /healthz omits the probe
// list.
type response struct {
	Ready  bool          `json:"ready"`
	Probes []probeReport `json:"probes,omitempty"`
}

func (h *Handler) handleLive(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, response{Ready: true})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	res := response{Ready: true, Probes: make([]probeReport, 0, len(h.probes))}

	for _, np := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := np.probe(ctx)
		cancel()

		rep := probeReport{Name: np.name, Ready: err == nil}
		if err != nil {
			rep.Cause = err.Error()
			res.Ready = false
		}
		res.Probes = append(res.Probes, rep)
	}

	status := http.StatusOK
	if !res.Ready {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, res)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, res response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, `{"ready":false}`, http.StatusInternalServerError)
	}
}
