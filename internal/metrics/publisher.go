package metrics

import (
	"context"
	"time"

	"github.com/davidbz/roomgen/internal/domain"
)

// Publisher records orchestrator events as Prometheus samples and forwards
// them to the next publisher.
type Publisher struct {
	next domain.EventPublisher
}

// NewPublisher wraps next with metric recording. next may be nil.
func NewPublisher(next domain.EventPublisher) *Publisher {
	return &Publisher{next: next}
}

// Publish records the event and forwards it.
func (p *Publisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) {
	switch eventType {
	case domain.EventSucceeded:
		provider := stringField(data, "provider")
		IncGeneration(provider, "success")
		AddCost(provider, floatField(data, "cost"))
		if ms, ok := data["duration_ms"].(int64); ok {
			ObserveGenerationDuration(provider, time.Duration(ms)*time.Millisecond)
		}
	case domain.EventFailed:
		IncGeneration(stringField(data, "provider"), "failure")
		IncGenerationFailure(stringField(data, "code"))
	case domain.EventAttemptFailed:
		retryable, _ := data["retryable"].(bool)
		IncProviderAttemptFailure(stringField(data, "provider"), stringField(data, "code"), retryable)
	case domain.EventFallback:
		IncFallback(stringField(data, "from"), stringField(data, "to"))
	case domain.EventAdmissionRejected:
		IncAdmissionRejection()
	case domain.EventCostOvershoot:
		IncCostOvershoot()
	}

	if p.next != nil {
		p.next.Publish(ctx, eventType, data)
	}
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func floatField(data map[string]interface{}, key string) float64 {
	f, _ := data[key].(float64)
	return f
}

var _ domain.EventPublisher = (*Publisher)(nil)
