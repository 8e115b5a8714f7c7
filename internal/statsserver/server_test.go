package statsserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quaypg/pgwire/internal/config"
	"github.com/quaypg/pgwire/internal/healthcheck"
	"github.com/quaypg/pgwire/internal/metrics"
)

func newTestServer() *Server {
	conns := map[string]config.ConnectionConfig{
		"primary": {Host: "localhost", Port: 5432, Username: "user", Database: "db"},
	}
	defaults := config.ProbeDefaults{FailureThreshold: 3}
	checker := healthcheck.NewChecker(conns, defaults, nil)
	return NewServer(checker, metrics.New(), config.ListenConfig{APIPort: 0, APIBind: "127.0.0.1"}, 1)
}

func TestHealthHandlerUnknownConnections(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with no recorded failures, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected status healthy, got %v", body["status"])
	}
}

func TestStatusHandler(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.statusHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if _, ok := body["goroutines"]; !ok {
		t.Error("expected goroutines field in status response")
	}
	if body["num_connections"].(float64) != 1 {
		t.Errorf("expected num_connections=1, got %v", body["num_connections"])
	}
}

func TestReadyHandler(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	s.readyHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when no connection is confirmed unhealthy yet, got %d", w.Code)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	s := newTestServer()
	s.collector.DialAttempt("primary", nil)

	handler := promhttp.HandlerFor(s.collector.Registry, promhttp.HandlerOpts{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pgwire_dial_attempts_total") {
		t.Error("expected dial attempts metric in output")
	}
}
