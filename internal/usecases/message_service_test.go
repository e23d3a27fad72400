package usecases

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
)

type stubResponder struct {
	reply  string
	calls  atomic.Int32
	during func()
}

func (s *stubResponder) GenerateResponse(context.Context, string, string) (string, error) {
	s.calls.Add(1)
	if s.during != nil {
		s.during()
	}
	return s.reply, nil
}

type workerFixture struct {
	svc        *MessageService
	turns      *memTurns
	ownership  *memOwnership
	responder  *stubResponder
	dispatcher *recordingDispatcher
	events     *recordingEvents
	metrics    *WorkerMetrics
}

func newWorker() *workerFixture {
	f := &workerFixture{
		turns:      &memTurns{},
		ownership:  newMemOwnership(),
		responder:  &stubResponder{reply: "Hello!"},
		dispatcher: &recordingDispatcher{},
		events:     &recordingEvents{},
		metrics:    &WorkerMetrics{},
	}
	f.svc = NewMessageService(f.turns, f.ownership, f.responder, f.dispatcher, f.events, f.metrics, zerolog.Nop())
	return f
}

func takenOver(userID, adminID string) entities.OwnershipState {
	s := entities.DefaultOwnership(userID)
	s.Version = 1
	s.AdminTakeover = true
	s.AdminTakeoverBy = &adminID
	return s
}

// lateOwnership answers its first read with the state from before a
// takeover, after running onFirstRead. Later reads see the store.
type lateOwnership struct {
	*memOwnership
	reads       int
	onFirstRead func()
}

func (l *lateOwnership) Get(ctx context.Context, userID string) (entities.OwnershipState, error) {
	l.reads++
	if l.reads == 1 {
		l.onFirstRead()
		return entities.DefaultOwnership(userID), nil
	}
	return l.memOwnership.Get(ctx, userID)
}

var hi = entities.Message{ID: "1", From: "42", Content: "Hi", Platform: "telegram"}

func TestProcessMessageAutoResponds(t *testing.T) {
	f := newWorker()

	if err := f.svc.ProcessMessage(context.Background(), hi); err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}

	turns := f.turns.all()
	if len(turns) != 2 || !turns[0].IsFromUser || *turns[1].Response != "Hello!" {
		t.Fatalf("turns = %+v", turns)
	}
	if len(f.events.messages) != 2 || f.events.messages[0].EventID != "1-user" || f.events.messages[1].EventID != "2-response" {
		t.Fatalf("events = %+v", f.events.messages)
	}
	if len(f.dispatcher.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(f.dispatcher.jobs))
	}
	job := f.dispatcher.jobs[0]
	if job.UserID != "telegram:42" || job.Text != "Hello!" || job.EventID != "2-response" {
		t.Fatalf("job = %+v", job)
	}
	if m := f.metrics.Snapshot(); m.AutoReplies != 1 || m.InboundMessages != 1 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestProcessMessageDuringTakeoverStoresButStaysSilent(t *testing.T) {
	f := newWorker()
	f.ownership.set(takenOver("telegram:42", "alice"))

	if err := f.svc.ProcessMessage(context.Background(), hi); err != nil {
		t.Fatal(err)
	}

	if n := len(f.turns.all()); n != 1 {
		t.Fatalf("turns = %d, want only the user turn", n)
	}
	if len(f.events.messages) != 1 || f.events.messages[0].Speaker != entities.SpeakerUser {
		t.Fatalf("events = %+v", f.events.messages)
	}
	if f.responder.calls.Load() != 0 || len(f.dispatcher.jobs) != 0 {
		t.Fatal("no reply may be generated or dispatched during takeover")
	}
	if m := f.metrics.Snapshot(); m.SuppressedReplies != 1 {
		t.Fatalf("suppressed = %d, want 1", m.SuppressedReplies)
	}
}

func TestProcessMessageBotDisabled(t *testing.T) {
	f := newWorker()
	state := entities.DefaultOwnership("telegram:42")
	state.BotEnabled = false
	f.ownership.set(state)

	_ = f.svc.ProcessMessage(context.Background(), hi)
	if len(f.dispatcher.jobs) != 0 {
		t.Fatal("disabled bot must not reply")
	}
}

func TestProcessMessageFailsSafeOnOwnershipError(t *testing.T) {
	f := newWorker()
	f.ownership.failGet = true

	if err := f.svc.ProcessMessage(context.Background(), hi); err != nil {
		t.Fatal(err)
	}
	if f.responder.calls.Load() != 0 || len(f.dispatcher.jobs) != 0 {
		t.Fatal("unknown ownership must suppress the reply")
	}
	if len(f.turns.all()) != 1 {
		t.Fatal("user turn should still be stored")
	}
}

func TestProcessMessageRechecksAfterGeneration(t *testing.T) {
	f := newWorker()
	f.responder.during = func() { f.ownership.set(takenOver("telegram:42", "alice")) }

	if err := f.svc.ProcessMessage(context.Background(), hi); err != nil {
		t.Fatal(err)
	}
	if len(f.dispatcher.jobs) != 0 || len(f.turns.all()) != 1 {
		t.Fatal("reply generated before a takeover must be discarded")
	}
	// The second read saw a state the worker had not been told about.
	if len(f.events.observed) != 1 || !f.events.observed[0].AdminTakeover {
		t.Fatalf("observed = %+v", f.events.observed)
	}
}

func TestProcessMessagePersistenceFailure(t *testing.T) {
	f := newWorker()
	f.turns.fail = true

	err := f.svc.ProcessMessage(context.Background(), hi)
	var perr *entities.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if len(f.events.messages) != 0 {
		t.Fatal("uncommitted message must not be published")
	}
}

func TestProcessMessageIgnoresBlank(t *testing.T) {
	f := newWorker()
	_ = f.svc.ProcessMessage(context.Background(), entities.Message{From: "1", Content: "  ", Platform: "web"})
	if len(f.turns.all()) != 0 {
		t.Fatal("blank message should be ignored")
	}
}

func TestObserveOwnershipSilencesMirrorForKnownState(t *testing.T) {
	f := newWorker()
	state := takenOver("telegram:42", "alice")
	f.ownership.set(state)
	f.svc.ObserveOwnership(state)

	_ = f.svc.ProcessMessage(context.Background(), hi)
	if len(f.events.observed) != 0 {
		t.Fatalf("observed = %+v, want none for an already broadcast state", f.events.observed)
	}
}

func TestStaleReadIsNotMirroredOverNewerBroadcast(t *testing.T) {
	f := newWorker()
	held := takenOver("telegram:42", "alice")
	store := &lateOwnership{memOwnership: f.ownership}
	store.onFirstRead = func() {
		f.ownership.set(held)
		f.svc.ObserveOwnership(held)
	}
	f.svc.ownership = store

	if err := f.svc.ProcessMessage(context.Background(), hi); err != nil {
		t.Fatal(err)
	}
	if len(f.events.observed) != 0 {
		t.Fatalf("observed = %+v, a read older than the broadcast must not be mirrored", f.events.observed)
	}
	if len(f.dispatcher.jobs) != 0 {
		t.Fatal("the recheck should see the takeover and drop the reply")
	}
}

func TestObserveOwnershipIgnoresOlderBroadcast(t *testing.T) {
	f := newWorker()
	held := takenOver("telegram:42", "alice")
	released := entities.DefaultOwnership("telegram:42")
	released.Version = 2
	f.ownership.set(released)

	f.svc.ObserveOwnership(released)
	f.svc.ObserveOwnership(held)

	_ = f.svc.ProcessMessage(context.Background(), hi)
	if len(f.events.observed) != 0 {
		t.Fatalf("observed = %+v", f.events.observed)
	}
	if len(f.dispatcher.jobs) != 1 {
		t.Fatal("released conversation should get a reply")
	}
}

func TestHandleAdminMessageDedups(t *testing.T) {
	f := newWorker()
	job := entities.DeliveryJob{UserID: "telegram:42", Text: "On it", TurnID: 9, EventID: "9-response", AdminID: "alice"}

	for i := 0; i < 3; i++ {
		if err := f.svc.HandleAdminMessage(context.Background(), job); err != nil {
			t.Fatal(err)
		}
	}
	if len(f.dispatcher.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(f.dispatcher.jobs))
	}
}

func TestHandleAdminMessageRetriesAfterDispatchError(t *testing.T) {
	f := newWorker()
	f.dispatcher.err = errors.New("queue down")
	job := entities.DeliveryJob{UserID: "telegram:42", Text: "On it", TurnID: 9, EventID: "9-response"}

	if err := f.svc.HandleAdminMessage(context.Background(), job); err == nil {
		t.Fatal("expected dispatch error")
	}
	f.dispatcher.err = nil
	if err := f.svc.HandleAdminMessage(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if len(f.dispatcher.jobs) != 1 {
		t.Fatal("job should be accepted once the dispatcher recovers")
	}
}
