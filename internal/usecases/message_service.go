package usecases

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
	"project_handoff/internal/infrastructure"
	"project_handoff/internal/interfaces"
	"project_handoff/internal/timeline"
)

// OwnershipReader is the worker's read-only view of ownership state.
type OwnershipReader interface {
	Get(ctx context.Context, userID string) (entities.OwnershipState, error)
}

// MessageService is the worker's pipeline: store inbound messages, decide
// whether the bot may answer, and hand replies to the dispatcher.
type MessageService struct {
	turns      interfaces.TurnStore
	ownership  OwnershipReader
	responder  interfaces.AIClient
	dispatcher interfaces.Dispatcher
	events     interfaces.WorkerEvents
	metrics    *WorkerMetrics
	sessions   *infrastructure.SessionManager
	seen       *timeline.SeenSet
	now        func() time.Time
	log        zerolog.Logger

	mirrorMu sync.Mutex
	mirror   map[string]entities.OwnershipState
}

func NewMessageService(turns interfaces.TurnStore, ownership OwnershipReader, responder interfaces.AIClient, dispatcher interfaces.Dispatcher, events interfaces.WorkerEvents, metrics *WorkerMetrics, log zerolog.Logger) *MessageService {
	return &MessageService{
		turns:      turns,
		ownership:  ownership,
		responder:  responder,
		dispatcher: dispatcher,
		events:     events,
		metrics:    metrics,
		sessions:   infrastructure.NewSessionManager(),
		seen:       timeline.NewSeenSet(0),
		now:        time.Now,
		log:        log.With().Str("component", "worker").Logger(),
		mirror:     make(map[string]entities.OwnershipState),
	}
}

// ProcessMessage handles one inbound platform message. Messages of the same
// conversation are processed one at a time.
func (s *MessageService) ProcessMessage(ctx context.Context, msg entities.Message) error {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return nil
	}
	userID := msg.UserID()

	unlock := s.sessions.Lock(userID)
	defer unlock()

	s.metrics.add(&s.metrics.inbound)
	s.log.Debug().Str("user_id", userID).Str("platform", msg.Platform).Msg("received")

	turn := entities.NewUserTurn(userID, content, s.now().UTC())
	if err := s.turns.Insert(ctx, &turn); err != nil {
		return &entities.PersistenceError{Op: "insert_turn", Err: err}
	}
	for _, ev := range timeline.Split(turn) {
		s.events.NewMessage(userID, ev)
	}

	if !s.mayAutoRespond(ctx, userID) {
		return nil
	}

	reply, err := s.responder.GenerateResponse(ctx, userID, content)
	if err != nil {
		return fmt.Errorf("generate response for %s: %w", userID, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil
	}

	// An admin may have taken over while the reply was being generated.
	if !s.mayAutoRespond(ctx, userID) {
		return nil
	}

	botTurn := entities.NewBotTurn(userID, reply, s.now().UTC())
	if err := s.turns.Insert(ctx, &botTurn); err != nil {
		return &entities.PersistenceError{Op: "insert_turn", Err: err}
	}
	events := timeline.Split(botTurn)
	for _, ev := range events {
		s.events.NewMessage(userID, ev)
	}
	s.metrics.add(&s.metrics.autoReplies)

	return s.dispatcher.Dispatch(ctx, entities.DeliveryJob{
		UserID:  userID,
		Text:    reply,
		TurnID:  botTurn.ID,
		EventID: entities.ResponseEventID(botTurn.ID),
	})
}

// mayAutoRespond reads the stored state. Any doubt counts as no.
func (s *MessageService) mayAutoRespond(ctx context.Context, userID string) bool {
	state, err := s.ownership.Get(ctx, userID)
	if err != nil {
		s.metrics.add(&s.metrics.suppressedReplies)
		s.log.Warn().Err(err).Str("user_id", userID).Msg("ownership unavailable, not replying")
		return false
	}
	s.observe(state, true)
	if !state.CanAutoRespond() {
		s.metrics.add(&s.metrics.suppressedReplies)
		s.log.Debug().Str("user_id", userID).Str("owner", string(state.Owner())).Bool("bot_enabled", state.BotEnabled).Msg("auto-response suppressed")
		return false
	}
	return true
}

// ObserveOwnership records a state broadcast by the backend.
func (s *MessageService) ObserveOwnership(state entities.OwnershipState) {
	s.observe(state, false)
}

// observe keeps the newest state seen per user. A stored state newer than
// the last one seen is mirrored to the room so viewers converge; a read that
// raced a newer broadcast is older and ignored.
func (s *MessageService) observe(state entities.OwnershipState, fromStore bool) {
	s.mirrorMu.Lock()
	prev, known := s.mirror[state.UserID]
	newer := !known || state.NewerThan(prev)
	if newer {
		s.mirror[state.UserID] = state
	}
	s.mirrorMu.Unlock()

	if fromStore && known && newer {
		s.events.OwnershipObserved(state)
	}
}

// HandleAdminMessage delivers a message an admin committed in the backend.
// Replays of the same event id are dropped.
func (s *MessageService) HandleAdminMessage(ctx context.Context, job entities.DeliveryJob) error {
	if job.UserID == "" || job.EventID == "" {
		return entities.ErrMissingUserID
	}
	if !s.seen.FirstSeen(job.EventID) {
		s.log.Debug().Str("event_id", job.EventID).Msg("duplicate admin message dropped")
		return nil
	}

	unlock := s.sessions.Lock(job.UserID)
	defer unlock()

	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		s.seen.Forget(job.EventID)
		return err
	}
	return nil
}
