package usecases

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
	"project_handoff/internal/interfaces"
	"project_handoff/internal/timeline"
)

const defaultHistoryLimit = 500

// EventRecorder counts committed message events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, ev entities.Event) error
}

// History is what an admin view hydrates from.
type History struct {
	Turns     []entities.Turn         `json:"turns"`
	Events    []entities.Event        `json:"events"`
	Ownership entities.OwnershipState `json:"ownership"`
}

// ConversationService serves history and admin-authored messages.
type ConversationService struct {
	turns     interfaces.TurnStore
	ownership interfaces.OwnershipStore
	notifier  interfaces.Notifier
	recorder  EventRecorder
	now       func() time.Time
	log       zerolog.Logger
}

func NewConversationService(turns interfaces.TurnStore, ownership interfaces.OwnershipStore, notifier interfaces.Notifier, recorder EventRecorder, log zerolog.Logger) *ConversationService {
	return &ConversationService{
		turns:     turns,
		ownership: ownership,
		notifier:  notifier,
		recorder:  recorder,
		now:       time.Now,
		log:       log.With().Str("component", "conversation").Logger(),
	}
}

// History loads the newest turns of a conversation, merged into events.
func (s *ConversationService) History(ctx context.Context, userID string, limit int) (History, error) {
	if userID == "" {
		return History{}, entities.ErrMissingUserID
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}

	turns, err := s.turns.ListByUser(ctx, userID, limit)
	if err != nil {
		return History{}, &entities.PersistenceError{Op: "list_turns", Err: err}
	}
	state, err := s.ownership.Get(ctx, userID)
	if err != nil {
		return History{}, &entities.PersistenceError{Op: "load_ownership", Err: err}
	}

	return History{
		Turns:     turns,
		Events:    timeline.Merge(turns),
		Ownership: state,
	}, nil
}

// SendAsAdmin persists an admin message and, only once it is committed,
// broadcasts it to the room and hands it to the worker. A failed write
// broadcasts nothing.
func (s *ConversationService) SendAsAdmin(ctx context.Context, userID, adminID, text string) (entities.Turn, error) {
	if userID == "" {
		return entities.Turn{}, entities.ErrMissingUserID
	}
	text, err := entities.CleanText(text)
	if err != nil {
		return entities.Turn{}, err
	}

	turn := entities.NewAdminTurn(userID, adminID, text, s.now().UTC())
	if err := s.turns.Insert(ctx, &turn); err != nil {
		return entities.Turn{}, &entities.PersistenceError{Op: "insert_turn", Err: err}
	}

	events := timeline.Split(turn)
	if len(events) == 0 {
		return turn, nil
	}
	ev := events[0]
	s.notifier.AdminMessageCommitted(turn, ev)

	if s.recorder != nil {
		if err := s.recorder.RecordEvent(ctx, ev); err != nil {
			s.log.Warn().Err(err).Str("event_id", ev.EventID).Msg("stats record failed")
		}
	}

	s.log.Info().Str("user_id", userID).Str("admin", adminID).Int64("turn_id", turn.ID).Msg("admin message committed")
	return turn, nil
}
