package intents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clinicpulse/schedule-engine/internal/observability/metrics"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// Dispatcher drains the intent outbox to the delivery queue. Safe to run
// from multiple triggers: MarkDelivered is guarded, so an entry published
// twice is at worst delivered twice, never lost.
type Dispatcher struct {
	outbox  *Outbox
	queue   Queue
	metrics *metrics.EngineMetrics
	logger  *logging.Logger
}

// NewDispatcher creates an intent dispatcher.
func NewDispatcher(outbox *Outbox, queue Queue, m *metrics.EngineMetrics, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{outbox: outbox, queue: queue, metrics: m, logger: logger}
}

type envelope struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DispatchPending publishes up to limit pending intents and returns the
// number delivered.
func (d *Dispatcher) DispatchPending(ctx context.Context, limit int32) (int, error) {
	entries, err := d.outbox.FetchPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, e := range entries {
		body, err := json.Marshal(envelope{ID: e.ID.String(), Type: e.Type, Payload: e.Payload})
		if err != nil {
			return delivered, fmt.Errorf("intents: marshal envelope: %w", err)
		}
		if err := d.queue.Send(ctx, string(body)); err != nil {
			d.metrics.ObserveIntentPublished(string(e.Type), "error")
			d.logger.Error("intents: publish failed", "id", e.ID, "type", e.Type, "error", err)
			continue
		}
		claimed, err := d.outbox.MarkDelivered(ctx, e.ID)
		if err != nil {
			return delivered, err
		}
		if claimed {
			d.metrics.ObserveIntentPublished(string(e.Type), "delivered")
			delivered++
		}
	}
	return delivered, nil
}
