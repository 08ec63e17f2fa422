package httpapi

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, nil)

	if m.CallsTotal == nil {
		t.Error("CallsTotal not initialized")
	}
	if m.CallDuration == nil {
		t.Error("CallDuration not initialized")
	}
	if m.PolicyDecisions == nil {
		t.Error("PolicyDecisions not initialized")
	}
	if m.RejectionsTotal == nil {
		t.Error("RejectionsTotal not initialized")
	}
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, nil)

	m.RecordOutcome("records.get", "success")
	m.RecordOutcome("records.get", "success")
	m.RecordOutcome("rx.validate", "policy_denied")
	m.RecordPolicyDecision("deny")
	m.RecordRejection()
	m.ObserveDispatch("records.get", 50*time.Millisecond)

	if got := testutil.ToFloat64(m.CallsTotal.WithLabelValues("records.get", "success")); got != 2 {
		t.Errorf("CallsTotal success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CallsTotal.WithLabelValues("rx.validate", "policy_denied")); got != 1 {
		t.Errorf("CallsTotal denied = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PolicyDecisions.WithLabelValues("deny")); got != 1 {
		t.Errorf("PolicyDecisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RejectionsTotal); got != 1 {
		t.Errorf("RejectionsTotal = %v, want 1", got)
	}

	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, mf := range gathered {
		if strings.Contains(mf.GetName(), "call_duration") {
			found = true
			break
		}
	}
	if !found {
		t.Error("call_duration histogram not found in gathered metrics")
	}
}

func TestMetricsAuditDropsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	drops := uint64(0)
	NewMetrics(reg, func() uint64 { return drops })
	drops = 3

	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range gathered {
		if mf.GetName() == "medigate_audit_drops_total" {
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 3 {
				t.Errorf("audit drops = %v, want 3", got)
			}
			return
		}
	}
	t.Error("medigate_audit_drops_total not registered")
}
