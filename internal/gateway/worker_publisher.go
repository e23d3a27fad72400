package gateway

import (
	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
)

// WorkerPublisher reports worker activity over the service connection.
type WorkerPublisher struct {
	client *Client
	log    zerolog.Logger
}

func NewWorkerPublisher(client *Client, log zerolog.Logger) *WorkerPublisher {
	return &WorkerPublisher{client: client, log: log}
}

func (p *WorkerPublisher) NewMessage(userID string, ev entities.Event) {
	p.publish(NewMessage{UserID: userID, Message: ev})
}

func (p *WorkerPublisher) OwnershipObserved(state entities.OwnershipState) {
	p.publish(BotStatusChanged{OwnershipState: state})
}

func (p *WorkerPublisher) DeliveryFailed(job entities.DeliveryJob, err error) {
	msg := "delivery failed"
	if err != nil {
		msg = err.Error()
	}
	p.publish(DeliveryFailed{UserID: job.UserID, TurnID: job.TurnID, EventID: job.EventID, Error: msg})
}

func (p *WorkerPublisher) Metrics(m entities.WorkerMetrics) {
	p.publish(MetricsUpdate{WorkerMetrics: m})
}

func (p *WorkerPublisher) publish(ev Event) {
	if err := p.client.Publish(ev); err != nil {
		p.log.Warn().Err(err).Str("event", ev.EventName()).Msg("gateway publish dropped")
	}
}
