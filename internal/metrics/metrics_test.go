package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestSplitExecutionFailuresTotal_Labels(t *testing.T) {
	SplitExecutionFailuresTotal.Reset()

	SplitExecutionFailuresTotal.WithLabelValues("paused").Inc()
	SplitExecutionFailuresTotal.WithLabelValues("paused").Inc()
	SplitExecutionFailuresTotal.WithLabelValues("duplicate_session").Inc()

	m := &dto.Metric{}
	counter, err := SplitExecutionFailuresTotal.GetMetricWithLabelValues("paused")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)
	if m.Counter.GetValue() != 2.0 {
		t.Errorf("expected paused counter 2, got %f", m.Counter.GetValue())
	}
}

func TestLedgerPausedGauge(t *testing.T) {
	LedgerPaused.Set(1)

	m := &dto.Metric{}
	if err := LedgerPaused.Write(m); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if m.Gauge.GetValue() != 1.0 {
		t.Errorf("expected gauge 1, got %f", m.Gauge.GetValue())
	}

	LedgerPaused.Set(0)
}

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		102: "1xx",
		200: "2xx",
		301: "3xx",
		404: "4xx",
		500: "5xx",
	}
	for code, want := range cases {
		if got := statusBucket(code); got != want {
			t.Errorf("statusBucket(%d) = %q, want %q", code, got, want)
		}
	}
}
