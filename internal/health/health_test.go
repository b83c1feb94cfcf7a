package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/godt333/voicelink/internal/health"
	"github.com/godt333/voicelink/internal/session"
)

type probeBody struct {
	Ready  bool `json:"ready"`
	Probes []struct {
		Name  string `json:"name"`
		Ready bool   `json:"ready"`
		Cause string `json:"cause"`
	} `json:"probes"`
}

func doRequest(t *testing.T, h http.Handler, path string) (*http.Response, probeBody) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	resp := rec.Result()
	t.Cleanup(func() { resp.Body.Close() })

	var body probeBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return resp, body
}

func newMux(h *health.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	mux := newMux(health.New().Add("always-broken", func(context.Context) error {
		return errors.New("nope")
	}))

	resp, body := doRequest(t, mux, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !body.Ready {
		t.Error("liveness body not ready")
	}
}

func TestReadyz_AllProbesPass(t *testing.T) {
	t.Parallel()

	mux := newMux(health.New().
		Add("a", func(context.Context) error { return nil }).
		Add("b", func(context.Context) error { return nil }))

	resp, body := doRequest(t, mux, "/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !body.Ready {
		t.Error("body not ready with all probes passing")
	}
	if len(body.Probes) != 2 {
		t.Fatalf("probes = %+v, want both listed", body.Probes)
	}
	for _, p := range body.Probes {
		if !p.Ready || p.Cause != "" {
			t.Errorf("probe %q = %+v, want clean pass", p.Name, p)
		}
	}
}

func TestReadyz_FailingProbeNamesCause(t *testing.T) {
	t.Parallel()

	mux := newMux(health.New().
		Add("good", func(context.Context) error { return nil }).
		Add("bad", func(context.Context) error { return errors.New("down") }))

	resp, body := doRequest(t, mux, "/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if body.Ready {
		t.Error("body ready despite failing probe")
	}
	if len(body.Probes) != 2 {
		t.Fatalf("probes = %+v, want both listed", body.Probes)
	}
	if bad := body.Probes[1]; bad.Name != "bad" || bad.Ready || bad.Cause != "down" {
		t.Errorf("failing probe = %+v, want named cause", bad)
	}
}

func TestReadyz_NoProbes(t *testing.T) {
	t.Parallel()

	resp, body := doRequest(t, newMux(health.New()), "/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !body.Ready {
		t.Error("probeless handler not ready")
	}
}

func TestSessionProbe_ReadyOnlyWhenConnected(t *testing.T) {
	t.Parallel()

	state := session.StateIdle
	mux := newMux(health.New().Add("session", health.SessionProbe(func() session.State { return state })))

	resp, body := doRequest(t, mux, "/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status while idle = %d, want 503", resp.StatusCode)
	}
	if len(body.Probes) != 1 || body.Probes[0].Cause == "" {
		t.Errorf("probes while idle = %+v, want a cause naming the state", body.Probes)
	}

	state = session.StateConnected
	resp, body = doRequest(t, mux, "/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status while connected = %d, want 200", resp.StatusCode)
	}
	if !body.Ready {
		t.Error("body not ready while connected")
	}
}
