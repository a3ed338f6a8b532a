package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.RecordTraining("GRU", "success", 12)
	r.RecordTraining("GRU", "success", 8)
	r.RecordPrediction("LSTM", true)
	r.RecordError("fetch")

	if got := testutil.ToFloat64(r.trainingRuns.WithLabelValues("GRU", "success")); got != 2 {
		t.Fatalf("expected 2 training runs, got %v", got)
	}
	if got := testutil.ToFloat64(r.predictions.WithLabelValues("LSTM", "true")); got != 1 {
		t.Fatalf("expected 1 cached prediction, got %v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "stockcast_errors_total"); err != nil || n != 1 {
		t.Fatalf("expected 1 error series, got %d (%v)", n, err)
	}
}
