package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sungwon/mpmail/internal/provider"
)

type staticChecker struct{ err error }

func (c staticChecker) HealthCheck(context.Context) error { return c.err }

func TestHealthzHandler_AlwaysOK(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthzHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestReadyzHandler_Ready(t *testing.T) {
	hc := provider.NewHealthChecker()
	hc.Add("store", staticChecker{})
	hc.CheckNow(context.Background())

	rec := httptest.NewRecorder()
	ReadyzHandler(hc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp readinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Components["store"].Healthy {
		t.Errorf("components = %+v", resp.Components)
	}
}

func TestReadyzHandler_Unavailable(t *testing.T) {
	hc := provider.NewHealthChecker()
	hc.Add("store", staticChecker{err: errors.New("redis down")})
	for i := 0; i < 3; i++ {
		hc.CheckNow(context.Background())
	}

	rec := httptest.NewRecorder()
	ReadyzHandler(hc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestReadyzHandler_NoChecker(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadyzHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}
