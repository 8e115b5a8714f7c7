package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTestCollector creates a Collector registered with a fresh registry
// so tests don't conflict with each other or with the default registry.
func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	c := New()
	return c, c.Registry
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestDialAttempt(t *testing.T) {
	c, _ := newTestCollector(t)

	c.DialAttempt("primary", nil)
	c.DialAttempt("primary", errors.New("connection refused"))

	attempts := getCounterValue(c.dialAttemptsTotal.WithLabelValues("primary"))
	if attempts != 2 {
		t.Errorf("expected attempts=2, got %v", attempts)
	}
	failures := getCounterValue(c.dialFailuresTotal.WithLabelValues("primary"))
	if failures != 1 {
		t.Errorf("expected failures=1, got %v", failures)
	}
}

func TestAuthOutcome(t *testing.T) {
	c, _ := newTestCollector(t)

	c.AuthOutcome("primary", "scram-sha-256", "ok")
	c.AuthOutcome("primary", "scram-sha-256", "ok")
	c.AuthOutcome("primary", "md5", "failed")

	ok := getCounterValue(c.authOutcomesTotal.WithLabelValues("primary", "scram-sha-256", "ok"))
	if ok != 2 {
		t.Errorf("expected scram ok=2, got %v", ok)
	}
	failed := getCounterValue(c.authOutcomesTotal.WithLabelValues("primary", "md5", "failed"))
	if failed != 1 {
		t.Errorf("expected md5 failed=1, got %v", failed)
	}
}

func TestBytesSentAndReceived(t *testing.T) {
	c, _ := newTestCollector(t)

	c.BytesSent("primary", 100)
	c.BytesSent("primary", 50)
	c.BytesReceived("primary", 4096)

	if v := getCounterValue(c.bytesSentTotal.WithLabelValues("primary")); v != 150 {
		t.Errorf("expected sent=150, got %v", v)
	}
	if v := getCounterValue(c.bytesReceivedTotal.WithLabelValues("primary")); v != 4096 {
		t.Errorf("expected received=4096, got %v", v)
	}
}

func TestQueryCompleted(t *testing.T) {
	c, reg := newTestCollector(t)

	c.QueryCompleted("primary", 100*time.Millisecond)
	c.QueryCompleted("primary", 200*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, f := range families {
		if f.GetName() == "pgwire_query_duration_seconds" {
			found = true
			m := f.GetMetric()
			if len(m) == 0 {
				t.Fatal("no metric samples")
			}
			if m[0].GetHistogram().GetSampleCount() != 2 {
				t.Errorf("expected 2 samples, got %d", m[0].GetHistogram().GetSampleCount())
			}
		}
	}
	if !found {
		t.Error("query duration metric not found")
	}
}

func TestRowsStreamed(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RowsStreamed("primary", 100)
	c.RowsStreamed("primary", 50)

	val := getCounterValue(c.rowsStreamedTotal.WithLabelValues("primary"))
	if val != 150 {
		t.Errorf("expected rows streamed=150, got %v", val)
	}
}

func TestReaderDrained(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ReaderDrained("primary")
	c.ReaderDrained("primary")

	val := getCounterValue(c.readerDrainsTotal.WithLabelValues("primary"))
	if val != 2 {
		t.Errorf("expected drains=2, got %v", val)
	}
}

func TestSetConnectionHealth(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetConnectionHealth("primary", true)
	val := getGaugeValue(c.connectionHealth.WithLabelValues("primary"))
	if val != 1 {
		t.Errorf("expected health=1 (healthy), got %v", val)
	}

	c.SetConnectionHealth("primary", false)
	val = getGaugeValue(c.connectionHealth.WithLabelValues("primary"))
	if val != 0 {
		t.Errorf("expected health=0 (unhealthy), got %v", val)
	}
}

func TestRemoveConnection(t *testing.T) {
	c, reg := newTestCollector(t)

	c.DialAttempt("primary", nil)
	c.SetConnectionHealth("primary", true)
	c.AuthOutcome("primary", "scram-sha-256", "ok")

	c.RemoveConnection("primary")

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	for _, f := range families {
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "connection" && l.GetValue() == "primary" {
					t.Errorf("metric %s still has primary label after removal", f.GetName())
				}
			}
		}
	}
}

func TestMultipleConnections(t *testing.T) {
	c, _ := newTestCollector(t)

	c.BytesSent("c1", 10)
	c.BytesSent("c2", 20)

	v1 := getCounterValue(c.bytesSentTotal.WithLabelValues("c1"))
	v2 := getCounterValue(c.bytesSentTotal.WithLabelValues("c2"))

	if v1 != 10 {
		t.Errorf("expected c1 sent=10, got %v", v1)
	}
	if v2 != 20 {
		t.Errorf("expected c2 sent=20, got %v", v2)
	}
}

func TestNewDoesNotPanicOnMultipleCalls(t *testing.T) {
	// Calling New() multiple times should not panic because each creates
	// its own registry instead of using the global default.
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("New() panicked on repeated calls: %v", r)
		}
	}()

	c1 := New()
	c2 := New()

	c1.BytesSent("c1", 1)
	c2.BytesSent("c1", 2)

	v1 := getCounterValue(c1.bytesSentTotal.WithLabelValues("c1"))
	v2 := getCounterValue(c2.bytesSentTotal.WithLabelValues("c1"))

	if v1 != 1 {
		t.Errorf("c1 expected sent=1, got %v", v1)
	}
	if v2 != 2 {
		t.Errorf("c2 expected sent=2, got %v", v2)
	}
}
