package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"

	"project_handoff/internal/entities"
)

type recordingDeliverer struct {
	delivered []entities.DeliveryJob
	failed    []entities.DeliveryJob
	err       error
}

func (r *recordingDeliverer) Deliver(_ context.Context, job entities.DeliveryJob) error {
	r.delivered = append(r.delivered, job)
	return r.err
}

func (r *recordingDeliverer) Failed(job entities.DeliveryJob, _ error) {
	r.failed = append(r.failed, job)
}

func jobPayload(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(entities.DeliveryJob{UserID: "telegram:42", Text: "On it", TurnID: 9, EventID: "9-response"})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestReportExhausted(t *testing.T) {
	sendErr := errors.New("chat not found")
	tests := []struct {
		name     string
		payload  []byte
		err      error
		retried  int
		maxRetry int
		want     bool
	}{
		{"retries left", jobPayload(t), sendErr, 2, 5, false},
		{"last retry failed", jobPayload(t), sendErr, 5, 5, true},
		{"skip retry", jobPayload(t), fmt.Errorf("blocked: %w", asynq.SkipRetry), 0, 5, true},
		{"undecodable", []byte("{"), sendErr, 5, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDeliverer{}
			if got := ReportExhausted(d, tt.payload, tt.err, tt.retried, tt.maxRetry); got != tt.want {
				t.Fatalf("ReportExhausted() = %v, want %v", got, tt.want)
			}
			if tt.want && (len(d.failed) != 1 || d.failed[0].EventID != "9-response") {
				t.Fatalf("failed = %+v", d.failed)
			}
			if !tt.want && len(d.failed) != 0 {
				t.Fatalf("failed = %+v, want none", d.failed)
			}
		})
	}
}

func TestDeliverPayload(t *testing.T) {
	d := &recordingDeliverer{}
	if err := DeliverPayload(context.Background(), d, jobPayload(t)); err != nil {
		t.Fatal(err)
	}
	if len(d.delivered) != 1 || d.delivered[0].TurnID != 9 {
		t.Fatalf("delivered = %+v", d.delivered)
	}

	if err := DeliverPayload(context.Background(), d, []byte("not json")); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}
