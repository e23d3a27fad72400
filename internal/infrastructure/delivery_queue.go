package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
)

const (
	TaskDeliver   = "delivery:send"
	deliveryQueue = "delivery"
)

// Deliverer makes delivery attempts and is told about jobs that ran out of
// retries.
type Deliverer interface {
	Deliver(ctx context.Context, job entities.DeliveryJob) error
	Failed(job entities.DeliveryJob, err error)
}

// DeliveryQueue enqueues delivery jobs on asynq. The job's event id is the
// task id, so a replayed job is accepted once.
type DeliveryQueue struct {
	client   *asynq.Client
	maxRetry int
}

func NewDeliveryQueue(redisURL string, maxRetry int) (*DeliveryQueue, error) {
	if redisURL == "" {
		return nil, errors.New("asynq: redis url is not set")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &DeliveryQueue{client: asynq.NewClient(opt), maxRetry: maxRetry}, nil
}

func (q *DeliveryQueue) Dispatch(ctx context.Context, job entities.DeliveryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode delivery job: %w", err)
	}
	task := asynq.NewTask(TaskDeliver, payload)
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(deliveryQueue),
		asynq.MaxRetry(q.maxRetry),
		asynq.TaskID(job.EventID),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue delivery %s: %w", job.EventID, err)
	}
	return nil
}

func (q *DeliveryQueue) Close() error {
	return q.client.Close()
}

// DeliveryWorker consumes the delivery queue.
type DeliveryWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewDeliveryWorker(redisURL string, concurrency int, deliverer Deliverer, log zerolog.Logger) (*DeliveryWorker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	log = log.With().Str("component", "delivery-queue").Logger()

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{deliveryQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn().Err(err).Str("type", task.Type()).Int("retried", retried).Int("max_retry", maxRetry).Msg("delivery attempt failed")
			ReportExhausted(deliverer, task.Payload(), err, retried, maxRetry)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskDeliver, func(ctx context.Context, t *asynq.Task) error {
		return DeliverPayload(ctx, deliverer, t.Payload())
	})
	return &DeliveryWorker{server: srv, mux: mux}, nil
}

// DeliverPayload decodes a queued job and makes one attempt. A payload that
// does not decode is never retried.
func DeliverPayload(ctx context.Context, deliverer Deliverer, payload []byte) error {
	var job entities.DeliveryJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("decode delivery job: %v: %w", err, asynq.SkipRetry)
	}
	return deliverer.Deliver(ctx, job)
}

// ReportExhausted tells the deliverer about a job asynq will not run again:
// its last retry failed or it was marked SkipRetry.
func ReportExhausted(deliverer Deliverer, payload []byte, err error, retried, maxRetry int) bool {
	if retried < maxRetry && !errors.Is(err, asynq.SkipRetry) {
		return false
	}
	var job entities.DeliveryJob
	if json.Unmarshal(payload, &job) != nil {
		return false
	}
	deliverer.Failed(job, err)
	return true
}

// Run starts consuming and blocks until ctx is cancelled.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
