package authgate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledByDefault(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	if m.Enabled() {
		t.Fatal("metrics enabled without opt-in")
	}

	m.Inc(MetricLoginSuccess)
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled counter moved: %d", got)
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("disabled snapshot not empty: %+v", snap)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, time.Millisecond)
	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics reported enabled")
	}
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("nil counter value: %d", got)
	}
}

func TestMetricsCountersConcurrent(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				m.Inc(MetricLoginSuccess)
				m.Inc(MetricValidateSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricLoginSuccess); got != workers*perWorker {
		t.Fatalf("login counter = %d, want %d", got, workers*perWorker)
	}
	if got := m.Value(MetricValidateSuccess); got != workers*perWorker {
		t.Fatalf("validate counter = %d, want %d", got, workers*perWorker)
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	samples := []time.Duration{
		time.Millisecond,        // bucket 0
		8 * time.Millisecond,    // bucket 1
		20 * time.Millisecond,   // bucket 2
		40 * time.Millisecond,   // bucket 3
		80 * time.Millisecond,   // bucket 4
		200 * time.Millisecond,  // bucket 5
		400 * time.Millisecond,  // bucket 6
		1200 * time.Millisecond, // bucket 7
	}
	for _, d := range samples {
		m.Observe(MetricValidateLatency, d)
	}
	// Only the validate slot has a histogram.
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	buckets, ok := snap.Histograms[MetricValidateLatency]
	if !ok {
		t.Fatal("histogram missing from snapshot")
	}
	for i, count := range buckets {
		if count != 1 {
			t.Fatalf("bucket %d = %d, want 1", i, count)
		}
	}
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("counter slot grew a histogram")
	}
}

func TestMetricsSnapshotIsACopy(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLogout)

	snap := m.Snapshot()
	m.Inc(MetricLogout)

	if snap.Counters[MetricLogout] != 1 {
		t.Fatalf("snapshot value = %d, want 1", snap.Counters[MetricLogout])
	}
	if m.Value(MetricLogout) != 2 {
		t.Fatalf("live value = %d, want 2", m.Value(MetricLogout))
	}
}

func TestEngineCountsLoginOutcomes(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})
	h.seedUser(t)
	ctx := context.Background()

	if _, err := h.engine.Login(ctx, testIdentifier, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := h.engine.Login(ctx, testIdentifier, "wrong-password"); err == nil {
		t.Fatal("expected failure")
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("login_success = %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("login_failure = %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("session_created = %d", snap.Counters[MetricSessionCreated])
	}
}
