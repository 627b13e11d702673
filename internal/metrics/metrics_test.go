package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTaskMetrics(t *testing.T) {
	t.Run("TasksSubmitted", func(t *testing.T) {
		before := testutil.ToFloat64(TasksSubmitted.WithLabelValues("test_codelet"))
		TasksSubmitted.WithLabelValues("test_codelet").Inc()
		TasksSubmitted.WithLabelValues("test_codelet").Inc()
		assert.Equal(t, before+2, testutil.ToFloat64(TasksSubmitted.WithLabelValues("test_codelet")))
	})

	t.Run("TaskDuration", func(t *testing.T) {
		assert.NotPanics(t, func() {
			TaskDuration.WithLabelValues("cpu").Observe(0.5)
		})
	})

	t.Run("Transfers", func(t *testing.T) {
		before := testutil.ToFloat64(Transfers.WithLabelValues("0", "1"))
		Transfers.WithLabelValues("0", "1").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(Transfers.WithLabelValues("0", "1")))
	})

	t.Run("RegisteredBytes", func(t *testing.T) {
		before := testutil.ToFloat64(RegisteredBytes)
		RegisteredBytes.Add(1024)
		assert.Equal(t, before+1024, testutil.ToFloat64(RegisteredBytes))
		RegisteredBytes.Sub(1024)
	})
}

func TestMetricsRegistration(t *testing.T) {
	// Ensure all metrics are properly registered
	metrics := []prometheus.Collector{
		TasksSubmitted,
		TasksExecuted,
		TaskDuration,
		Transfers,
		TransferBytes,
		Flushes,
		HandlesRegistered,
		RegisteredBytes,
	}

	for _, metric := range metrics {
		// Registering again must be rejected, which proves the first registration happened
		err := prometheus.Register(metric)
		assert.Error(t, err)
	}
}

func BenchmarkMetricsObservation(b *testing.B) {
	b.Run("ObserveDuration", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			TaskDuration.WithLabelValues("cpu").Observe(float64(i % 1000))
		}
	})

	b.Run("IncCounter", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			TasksExecuted.WithLabelValues("bench", "cpu").Inc()
		}
	})
}
