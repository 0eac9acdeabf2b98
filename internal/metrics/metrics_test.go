package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveLock("local", "acquired", time.Millisecond)
	m.Transition("created")
	m.ObserveQuery("single", time.Millisecond)
	m.PublishFailed("asynq")
}

func TestMetrics_RegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveLock("redis", "timeout", 3*time.Second)
	m.Transition("cancelled")
	m.Transition("cancelled")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
		if f.GetName() == "appointly_booking_transitions_total" {
			if got := f.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Fatalf("transitions = %v, want 2", got)
			}
		}
	}
	for _, name := range []string{"appointly_guard_lock_wait_seconds", "appointly_guard_lock_acquisitions_total", "appointly_booking_transitions_total"} {
		if !found[name] {
			t.Fatalf("metric %s not gathered", name)
		}
	}
}
