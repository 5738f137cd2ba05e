package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var res result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return res
}

func TestHealthz(t *testing.T) {
	h := New()
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if res := decode(t, rec); res.Status != "ok" {
		t.Errorf("status field = %q, want ok", res.Status)
	}
}

func TestReadyz_AllPass(t *testing.T) {
	h := New(
		Probe{Name: "database", Fn: func(context.Context) error { return nil }},
		Probe{Name: "scenarios", Fn: func(context.Context) error { return nil }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	res := decode(t, rec)
	if res.Status != "ok" {
		t.Errorf("status field = %q, want ok", res.Status)
	}
	if res.Checks["database"] != "ok" || res.Checks["scenarios"] != "ok" {
		t.Errorf("checks = %v, want both ok", res.Checks)
	}
}

func TestReadyz_FailingProbe(t *testing.T) {
	h := New(
		Probe{Name: "database", Fn: func(context.Context) error { return errors.New("connection refused") }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	res := decode(t, rec)
	if res.Status != "fail" {
		t.Errorf("status field = %q, want fail", res.Status)
	}
	if res.Checks["database"] != "fail: connection refused" {
		t.Errorf("database check = %q", res.Checks["database"])
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
