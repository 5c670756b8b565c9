package metrics_test

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/metrics"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPublisher) Publish(_ context.Context, eventType string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func TestPublisher_RecordsAndForwards(t *testing.T) {
	t.Run("success increments generation and cost", func(t *testing.T) {
		next := &recordingPublisher{}
		publisher := metrics.NewPublisher(next)

		before := testutil.ToFloat64(metrics.Generations.WithLabelValues("metrics-test", "success"))
		costBefore := testutil.ToFloat64(metrics.CostUSD.WithLabelValues("metrics-test"))

		publisher.Publish(context.Background(), domain.EventSucceeded, map[string]interface{}{
			"provider":    "metrics-test",
			"cost":        0.12,
			"duration_ms": int64(1500),
		})

		require.InDelta(t, before+1, testutil.ToFloat64(metrics.Generations.WithLabelValues("metrics-test", "success")), 1e-9)
		require.InDelta(t, costBefore+0.12, testutil.ToFloat64(metrics.CostUSD.WithLabelValues("metrics-test")), 1e-9)
		require.Equal(t, []string{domain.EventSucceeded}, next.events)
	})

	t.Run("failure increments code counter", func(t *testing.T) {
		publisher := metrics.NewPublisher(nil)
		before := testutil.ToFloat64(metrics.GenerationFailures.WithLabelValues("RATE_LIMITED"))

		publisher.Publish(context.Background(), domain.EventFailed, map[string]interface{}{
			"code":     "RATE_LIMITED",
			"provider": "metrics-test",
		})

		require.InDelta(t, before+1, testutil.ToFloat64(metrics.GenerationFailures.WithLabelValues("RATE_LIMITED")), 1e-9)
	})

	t.Run("admission rejection and overshoot", func(t *testing.T) {
		publisher := metrics.NewPublisher(nil)
		rejected := testutil.ToFloat64(metrics.AdmissionRejections)
		overshoots := testutil.ToFloat64(metrics.CostOvershoots)

		publisher.Publish(context.Background(), domain.EventAdmissionRejected, nil)
		publisher.Publish(context.Background(), domain.EventCostOvershoot, nil)

		require.InDelta(t, rejected+1, testutil.ToFloat64(metrics.AdmissionRejections), 1e-9)
		require.InDelta(t, overshoots+1, testutil.ToFloat64(metrics.CostOvershoots), 1e-9)
	})

	t.Run("fallback and attempt failures", func(t *testing.T) {
		publisher := metrics.NewPublisher(nil)
		fallbacks := testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("openai", "replicate"))
		attempts := testutil.ToFloat64(metrics.ProviderAttemptFailures.WithLabelValues("openai", "PROVIDER_UNAVAILABLE", "true"))

		publisher.Publish(context.Background(), domain.EventFallback, map[string]interface{}{
			"from": "openai",
			"to":   "replicate",
		})
		publisher.Publish(context.Background(), domain.EventAttemptFailed, map[string]interface{}{
			"provider":  "openai",
			"code":      "PROVIDER_UNAVAILABLE",
			"retryable": true,
		})

		require.InDelta(t, fallbacks+1, testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("openai", "replicate")), 1e-9)
		require.InDelta(t, attempts+1, testutil.ToFloat64(metrics.ProviderAttemptFailures.WithLabelValues("openai", "PROVIDER_UNAVAILABLE", "true")), 1e-9)
	})
}
