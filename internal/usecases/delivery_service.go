package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
	"project_handoff/internal/interfaces"
)

// DeliveryService hands committed replies to the external channel that owns
// the user id's platform.
type DeliveryService struct {
	channels map[string]interfaces.Channel
	events   interfaces.WorkerEvents
	metrics  *WorkerMetrics
	log      zerolog.Logger
}

func NewDeliveryService(channels []interfaces.Channel, events interfaces.WorkerEvents, metrics *WorkerMetrics, log zerolog.Logger) *DeliveryService {
	byPlatform := make(map[string]interfaces.Channel, len(channels))
	for _, ch := range channels {
		byPlatform[ch.Platform()] = ch
	}
	return &DeliveryService{
		channels: byPlatform,
		events:   events,
		metrics:  metrics,
		log:      log.With().Str("component", "delivery").Logger(),
	}
}

// Deliver makes one attempt.
func (d *DeliveryService) Deliver(ctx context.Context, job entities.DeliveryJob) error {
	platform, recipient := entities.SplitUserID(job.UserID)
	ch, ok := d.channels[platform]
	if !ok {
		return &entities.DeliveryError{UserID: job.UserID, TurnID: job.TurnID, Err: fmt.Errorf("no channel for platform %q", platform)}
	}
	if err := ch.SendMessage(ctx, recipient, job.Text); err != nil {
		return &entities.DeliveryError{UserID: job.UserID, TurnID: job.TurnID, Err: err}
	}
	d.metrics.add(&d.metrics.deliveriesOK)
	d.log.Debug().Str("user_id", job.UserID).Int64("turn_id", job.TurnID).Msg("delivered")
	return nil
}

// Failed is called once a job has used up its attempts. The turn stays
// committed; viewers are told it never reached the user.
func (d *DeliveryService) Failed(job entities.DeliveryJob, err error) {
	d.metrics.add(&d.metrics.deliveriesFailed)
	d.log.Error().Err(err).Str("user_id", job.UserID).Int64("turn_id", job.TurnID).Msg("delivery failed")
	d.events.DeliveryFailed(job, err)
}

// InlineDispatcher delivers in the caller's goroutine with bounded retries.
// It is used when no queue is configured.
type InlineDispatcher struct {
	delivery *DeliveryService
	attempts int
	backoff  time.Duration
}

func NewInlineDispatcher(delivery *DeliveryService, attempts int, backoff time.Duration) *InlineDispatcher {
	if attempts <= 0 {
		attempts = 3
	}
	return &InlineDispatcher{delivery: delivery, attempts: attempts, backoff: backoff}
}

// Dispatch only returns an error for a cancelled context; delivery failures
// are reported through the delivery service.
func (d *InlineDispatcher) Dispatch(ctx context.Context, job entities.DeliveryJob) error {
	delay := d.backoff
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err = d.delivery.Deliver(ctx, job); err == nil {
			return nil
		}
		if attempt == d.attempts {
			break
		}
		select {
		case <-ctx.Done():
			d.delivery.Failed(job, err)
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	d.delivery.Failed(job, err)
	return nil
}
