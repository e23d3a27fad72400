package usecases

import (
	"context"
	"errors"
	"sync"

	"project_handoff/internal/entities"
)

var errStoreDown = errors.New("store down")

type memTurns struct {
	mu     sync.Mutex
	turns  []entities.Turn
	nextID int64
	fail   bool
}

func (m *memTurns) Insert(_ context.Context, turn *entities.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	m.nextID++
	turn.ID = m.nextID
	m.turns = append(m.turns, *turn)
	return nil
}

func (m *memTurns) ListByUser(_ context.Context, userID string, limit int) ([]entities.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Turn
	for _, t := range m.turns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memTurns) all() []entities.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Turn(nil), m.turns...)
}

type memOwnership struct {
	mu      sync.Mutex
	states  map[string]entities.OwnershipState
	failGet bool
	saves   int
}

func newMemOwnership() *memOwnership {
	return &memOwnership{states: make(map[string]entities.OwnershipState)}
}

func (m *memOwnership) Get(_ context.Context, userID string) (entities.OwnershipState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return entities.OwnershipState{}, errStoreDown
	}
	if s, ok := m.states[userID]; ok {
		return s, nil
	}
	return entities.DefaultOwnership(userID), nil
}

func (m *memOwnership) Save(_ context.Context, state entities.OwnershipState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.UserID] = state
	m.saves++
	return nil
}

func (m *memOwnership) set(state entities.OwnershipState) {
	m.mu.Lock()
	m.states[state.UserID] = state
	m.mu.Unlock()
}

type recordingNotifier struct {
	mu        sync.Mutex
	ownership []entities.OwnershipState
	messages  []entities.Event
	stats     []entities.StatsSnapshot
}

func (n *recordingNotifier) OwnershipChanged(state entities.OwnershipState) {
	n.mu.Lock()
	n.ownership = append(n.ownership, state)
	n.mu.Unlock()
}

func (n *recordingNotifier) AdminMessageCommitted(_ entities.Turn, ev entities.Event) {
	n.mu.Lock()
	n.messages = append(n.messages, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) StatsChanged(snap entities.StatsSnapshot) {
	n.mu.Lock()
	n.stats = append(n.stats, snap)
	n.mu.Unlock()
}

func (n *recordingNotifier) ownershipCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ownership)
}

type recordingEvents struct {
	mu       sync.Mutex
	messages []entities.Event
	observed []entities.OwnershipState
	failed   []entities.DeliveryJob
	metrics  []entities.WorkerMetrics
}

func (r *recordingEvents) NewMessage(_ string, ev entities.Event) {
	r.mu.Lock()
	r.messages = append(r.messages, ev)
	r.mu.Unlock()
}

func (r *recordingEvents) OwnershipObserved(state entities.OwnershipState) {
	r.mu.Lock()
	r.observed = append(r.observed, state)
	r.mu.Unlock()
}

func (r *recordingEvents) DeliveryFailed(job entities.DeliveryJob, _ error) {
	r.mu.Lock()
	r.failed = append(r.failed, job)
	r.mu.Unlock()
}

func (r *recordingEvents) Metrics(m entities.WorkerMetrics) {
	r.mu.Lock()
	r.metrics = append(r.metrics, m)
	r.mu.Unlock()
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []entities.DeliveryJob
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job entities.DeliveryJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

// fakeChannel fails the first failures sends.
type fakeChannel struct {
	platform string
	failures int

	mu   sync.Mutex
	sent []string
	n    int
}

func (c *fakeChannel) Platform() string { return c.platform }

func (c *fakeChannel) SendMessage(_ context.Context, to, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	if c.n <= c.failures {
		return errors.New("channel unavailable")
	}
	c.sent = append(c.sent, to+":"+content)
	return nil
}
