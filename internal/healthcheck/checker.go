// Package healthcheck periodically probes named pgwire connections with a
// liveness query, adapted from the teacher's internal/health/checker.go: the
// same status/consecutive-failures/threshold bookkeeping and ticker-driven
// run loop, but the probe itself now opens a real pgwire.Connection and runs
// the configured SQL through ExecuteNonQuery instead of hand-rolling a raw
// startup-message byte probe — the pingPostgresViaPool path in the teacher's
// checker already pointed this direction (a real SELECT 1 gives a fuller
// signal than a bare TCP/startup probe).
package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quaypg/pgwire/internal/config"
	"github.com/quaypg/pgwire/internal/metrics"
	"github.com/quaypg/pgwire/pgwire"
)

// Status is a connection's last-known health state.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// ConnectionHealth holds the health state for one named connection.
type ConnectionHealth struct {
	Status              Status    `json:"status"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Checker performs periodic liveness checks on a set of named pgwire
// connections, each defined by its own config.ConnectionConfig.
type Checker struct {
	mu          sync.RWMutex
	connections map[string]config.ConnectionConfig
	states      map[string]*ConnectionHealth
	metrics     *metrics.Collector

	defaults config.ProbeDefaults

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker creates a checker over the given named connections.
func NewChecker(connections map[string]config.ConnectionConfig, defaults config.ProbeDefaults, m *metrics.Collector) *Checker {
	return &Checker{
		connections: connections,
		states:      make(map[string]*ConnectionHealth),
		metrics:     m,
		defaults:    defaults,
		stopCh:      make(chan struct{}),
	}
}

// Start begins periodic probing in a background goroutine.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
	slog.Info("health checker started", "connections", len(c.connections))
}

// Stop stops the checker. Safe to call multiple times.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	slog.Info("health checker stopped")
}

func (c *Checker) run() {
	c.checkAll()

	// Every connection is probed on each tick of the default probe interval.
	// A connection's own Interval override (ConnectionConfig.EffectiveInterval)
	// is not consulted here.
	interval := c.defaults.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkAll()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Checker) checkAll() {
	const maxWorkers = 10
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	for name, cc := range c.connections {
		name, cc := name, cc
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			start := time.Now()
			healthy, errMsg := c.pingConnection(name, cc)
			elapsed := time.Since(start)
			if c.metrics != nil {
				c.metrics.QueryCompleted(name, elapsed)
			}
			c.updateStatus(name, healthy, errMsg)
		}()
	}
	wg.Wait()
}

func (c *Checker) pingConnection(name string, cc config.ConnectionConfig) (healthy bool, errMsg string) {
	timeout := cc.EffectiveTimeout(c.defaults)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn := pgwire.NewConnection(cc.ConnString()).WithMetrics(c.metrics, name)
	if err := conn.Open(ctx); err != nil {
		if c.metrics != nil {
			c.metrics.DialAttempt(name, err)
		}
		return false, err.Error()
	}
	defer conn.Close()
	if c.metrics != nil {
		c.metrics.DialAttempt(name, nil)
	}

	cmd := conn.CreateCommand()
	cmd.CommandText = cc.EffectiveQuery(c.defaults)
	if _, err := cmd.ExecuteNonQuery(ctx); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (c *Checker) updateStatus(name string, healthy bool, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.getOrCreate(name)
	st.LastCheck = time.Now()

	if healthy {
		if st.ConsecutiveFailures > 0 {
			slog.Info("connection recovered", "connection", name, "failures", st.ConsecutiveFailures)
		}
		st.Status = StatusHealthy
		st.ConsecutiveFailures = 0
		st.LastError = ""
	} else {
		st.ConsecutiveFailures++
		st.LastError = errMsg
		threshold := c.defaults.FailureThreshold
		if threshold <= 0 {
			threshold = 1
		}
		if st.ConsecutiveFailures >= threshold {
			if st.Status != StatusUnhealthy {
				slog.Warn("connection marked unhealthy", "connection", name, "failures", st.ConsecutiveFailures, "error", errMsg)
			}
			st.Status = StatusUnhealthy
		}
	}

	if c.metrics != nil {
		c.metrics.SetConnectionHealth(name, st.Status == StatusHealthy)
	}
}

func (c *Checker) getOrCreate(name string) *ConnectionHealth {
	st, ok := c.states[name]
	if !ok {
		st = &ConnectionHealth{Status: StatusUnknown}
		c.states[name] = st
	}
	return st
}

// GetStatus returns the health state for a named connection.
func (c *Checker) GetStatus(name string) ConnectionHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.states[name]
	if !ok {
		return ConnectionHealth{Status: StatusUnknown}
	}
	return *st
}

// GetAllStatuses returns health states for every known connection.
func (c *Checker) GetAllStatuses() map[string]ConnectionHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]ConnectionHealth, len(c.states))
	for name, st := range c.states {
		result[name] = *st
	}
	return result
}

// OverallHealthy reports whether every known connection is healthy.
func (c *Checker) OverallHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, st := range c.states {
		if st.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}
