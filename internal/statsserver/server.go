// Package statsserver is the HTTP surface adapted from the teacher's
// internal/api/server.go: same gorilla/mux router, promhttp-backed /metrics,
// and JSON status endpoints, trimmed to what a single-binary pgwire probe
// needs — connection health and process status — with the tenant CRUD API
// and the admin dashboard dropped (there is no live tenant registry to
// administer here; see DESIGN.md).
package statsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quaypg/pgwire/internal/config"
	"github.com/quaypg/pgwire/internal/healthcheck"
	"github.com/quaypg/pgwire/internal/metrics"
)

// Server is the stats/health/metrics HTTP server for pgwire-probe.
type Server struct {
	checker    *healthcheck.Checker
	collector  *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
	listenCfg  config.ListenConfig
	numConns   int
}

// NewServer creates a new stats server.
func NewServer(checker *healthcheck.Checker, collector *metrics.Collector, lc config.ListenConfig, numConnections int) *Server {
	return &Server{
		checker:   checker,
		collector: collector,
		startTime: time.Now(),
		listenCfg: lc,
		numConns:  numConnections,
	}
}

// Start starts the HTTP server on the configured bind address/port.
func (s *Server) Start() error {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")
	r.HandleFunc("/stats", s.statusHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.collector.Registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", s.listenCfg.APIBind, s.listenCfg.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[statsserver] listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[statsserver] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	statuses := s.checker.GetAllStatuses()
	allHealthy := s.checker.OverallHealthy()

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":      boolToStatus(allHealthy),
		"connections": statuses,
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.numConns == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	statuses := s.checker.GetAllStatuses()
	if len(statuses) < s.numConns {
		// A configured connection with no probe result yet is not confirmed
		// unhealthy.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	for name := range statuses {
		if s.checker.GetStatus(name).Status != healthcheck.StatusUnhealthy {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startTime).Seconds()

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds":    int(uptime),
		"go_version":        runtime.Version(),
		"goroutines":        runtime.NumGoroutine(),
		"memory_mb":         float64(mem.Alloc) / 1024 / 1024,
		"num_connections":   s.numConns,
		"connection_health": s.checker.GetAllStatuses(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
