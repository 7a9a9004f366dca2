package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetBackendHealth(t *testing.T) {
	SetBackendHealth("metrics-test", HealthDegraded)
	if got := testutil.ToFloat64(BackendHealth.WithLabelValues("metrics-test")); got != HealthDegraded {
		t.Fatalf("expected %v, got %v", HealthDegraded, got)
	}
	SetBackendHealth("metrics-test", HealthAvailable)
	if got := testutil.ToFloat64(BackendHealth.WithLabelValues("metrics-test")); got != HealthAvailable {
		t.Fatalf("expected %v, got %v", HealthAvailable, got)
	}
}
