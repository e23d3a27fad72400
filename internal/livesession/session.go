// Package livesession is one admin's view of one conversation: the rendered
// timeline, the ownership state and the compose box with optimistic sends.
package livesession

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
	"project_handoff/internal/gateway"
	"project_handoff/internal/timeline"
)

var ErrClosed = errors.New("session closed")

type Status string

const (
	Pending   Status = "pending"
	Confirmed Status = "confirmed"
	Failed    Status = "failed"
)

// Sender commits an admin message and returns the stored turn.
type Sender interface {
	SendAdminMessage(ctx context.Context, userID, text string) (entities.Turn, error)
}

// Outcome is the state of one optimistic send.
type Outcome struct {
	TempID  string
	Status  Status
	Text    string
	EventID string // set once confirmed
	Err     error
}

type Session struct {
	UserID  string
	AdminID string

	sender  Sender
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mu        sync.Mutex
	timeline  *timeline.Timeline
	ownership entities.OwnershipState
	draft     string
	sends     map[string]*Outcome
	closed    bool

	changes  chan struct{}
	inflight sync.WaitGroup
}

func New(userID, adminID string, sender Sender, log zerolog.Logger) *Session {
	return &Session{
		UserID:    userID,
		AdminID:   adminID,
		sender:    sender,
		timeout:   15 * time.Second,
		now:       time.Now,
		log:       log.With().Str("user_id", userID).Str("admin", adminID).Logger(),
		timeline:  timeline.New(),
		ownership: entities.DefaultOwnership(userID),
		sends:     make(map[string]*Outcome),
		changes:   make(chan struct{}, 1),
	}
}

// Hydrate merges history into the view. Entries already shown stay put, and
// an ownership state older than the one applied is ignored.
func (s *Session) Hydrate(turns []entities.Turn, state entities.OwnershipState) {
	s.mu.Lock()
	s.timeline.InsertEvents(timeline.Merge(turns))
	if !s.ownership.NewerThan(state) {
		s.ownership = state
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) Compose(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Send shows the draft immediately as a pending entry and commits it in the
// background. On success the pending entry is replaced by the committed
// event; on failure it is removed and the draft restored. It returns the
// pending entry's temporary id.
func (s *Session) Send() (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	text := strings.TrimSpace(s.draft)
	if text == "" {
		s.mu.Unlock()
		return "", entities.ErrEmptyMessage
	}

	tempID := "pending-" + uuid.NewString()
	s.timeline.Insert(timeline.Entry{
		Event: entities.Event{
			EventID:   tempID,
			UserID:    s.UserID,
			Speaker:   entities.SpeakerAdmin,
			Text:      text,
			Timestamp: s.now().UTC(),
			AdminID:   s.AdminID,
		},
		Pending: true,
	})
	s.sends[tempID] = &Outcome{TempID: tempID, Status: Pending, Text: text}
	s.draft = ""
	s.inflight.Add(1)
	s.mu.Unlock()

	s.notify()
	go s.commit(tempID, text)
	return tempID, nil
}

// commit outlives the session: closing the view does not cancel the write.
func (s *Session) commit(tempID, text string) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	turn, err := s.sender.SendAdminMessage(ctx, s.UserID, text)

	s.mu.Lock()
	s.timeline.Remove(tempID)
	out := s.sends[tempID]
	if err != nil {
		out.Status = Failed
		out.Err = err
		if s.draft == "" {
			s.draft = text
		}
	} else {
		out.Status = Confirmed
		out.EventID = entities.ResponseEventID(turn.ID)
		// The broadcast may have arrived first; the id makes this a no-op.
		s.timeline.InsertEvents(timeline.Split(turn))
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).Msg("admin message not sent")
	}
	s.notify()
}

// Apply folds a gateway broadcast into the view and reports whether anything
// changed. Replays change nothing.
func (s *Session) Apply(ev gateway.Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	changed := false
	switch e := ev.(type) {
	case gateway.NewMessage:
		if e.UserID == s.UserID {
			changed = s.timeline.Insert(timeline.Entry{Event: e.Message})
		}
	case gateway.AdminMessage:
		if e.UserID == s.UserID {
			changed = s.timeline.Insert(timeline.Entry{Event: e.Message})
		}
	case gateway.BotStatusChanged:
		if e.UserID == s.UserID && e.OwnershipState.NewerThan(s.ownership) {
			s.ownership = e.OwnershipState
			changed = true
		}
	case gateway.DeliveryFailed:
		if e.UserID == s.UserID {
			changed = s.timeline.MarkUndelivered(e.EventID)
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return changed
}

func (s *Session) Entries() []timeline.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Entries()
}

func (s *Session) Ownership() entities.OwnershipState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownership
}

func (s *Session) Outcome(tempID string) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.sends[tempID]
	if !ok {
		return Outcome{}, false
	}
	return *out, true
}

// Changes receives a signal after every change. Signals coalesce.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Wait blocks until every send started so far has an outcome.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Close stops applying broadcasts. Sends already started still complete.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
