package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paysplit/gateway/middleware"
)

func TestHealthz(t *testing.T) {
	handler := New(Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if recorder.Body.String() != "ok" {
		t.Fatalf("expected ok body, got %q", recorder.Body.String())
	}
}

func TestMetricsEndpointServesCollectors(t *testing.T) {
	handler := New(Config{})

	// Generate one counted request first so the ops collectors have samples.
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body, err := io.ReadAll(recorder.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "paysplit_ops_requests_total") {
		t.Fatalf("expected ops request counter in metrics output")
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := New(Config{CORS: middleware.CORSConfig{AllowedOrigins: []string{"https://ops.example"}}})
	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
}
