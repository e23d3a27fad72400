package usecases

import (
	"context"
	"sync/atomic"
	"time"

	"project_handoff/internal/entities"
	"project_handoff/internal/interfaces"
)

// WorkerMetrics counts what the worker did since start.
type WorkerMetrics struct {
	autoReplies       atomic.Int64
	suppressedReplies atomic.Int64
	deliveriesOK      atomic.Int64
	deliveriesFailed  atomic.Int64
	inbound           atomic.Int64
	version           atomic.Int64
}

func (m *WorkerMetrics) add(c *atomic.Int64) {
	c.Add(1)
	m.version.Add(1)
}

func (m *WorkerMetrics) Snapshot() entities.WorkerMetrics {
	return entities.WorkerMetrics{
		AutoReplies:       m.autoReplies.Load(),
		SuppressedReplies: m.suppressedReplies.Load(),
		DeliveriesOK:      m.deliveriesOK.Load(),
		DeliveriesFailed:  m.deliveriesFailed.Load(),
		InboundMessages:   m.inbound.Load(),
		GeneratedAt:       time.Now().UTC(),
	}
}

// Run publishes a snapshot every interval while the counters move.
func (m *WorkerMetrics) Run(ctx context.Context, events interfaces.WorkerEvents, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := int64(-1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v := m.version.Load()
			if v == last {
				continue
			}
			last = v
			events.Metrics(m.Snapshot())
		}
	}
}
