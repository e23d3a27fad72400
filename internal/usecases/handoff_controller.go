package usecases

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
	"project_handoff/internal/infrastructure"
	"project_handoff/internal/interfaces"
)

// OwnershipObserver is told about every committed ownership change.
type OwnershipObserver interface {
	OwnershipChanged(ctx context.Context, before, after entities.OwnershipState) error
}

// HandoffController is the only writer of ownership state. Commands for the
// same user run one at a time; each one that changes the state is saved
// first and then broadcast exactly once.
type HandoffController struct {
	store    interfaces.OwnershipStore
	notifier interfaces.Notifier
	observer OwnershipObserver
	locks    *infrastructure.SessionManager
	strict   bool
	now      func() time.Time
	log      zerolog.Logger
}

// NewHandoffController builds a controller. With strictSingleOwner a second
// admin can neither take over nor release a conversation someone else holds.
func NewHandoffController(store interfaces.OwnershipStore, notifier interfaces.Notifier, observer OwnershipObserver, strictSingleOwner bool, log zerolog.Logger) *HandoffController {
	return &HandoffController{
		store:    store,
		notifier: notifier,
		observer: observer,
		locks:    infrastructure.NewSessionManager(),
		strict:   strictSingleOwner,
		now:      time.Now,
		log:      log.With().Str("component", "handoff").Logger(),
	}
}

// Get returns the current state, the default one for unknown users.
func (h *HandoffController) Get(ctx context.Context, userID string) (entities.OwnershipState, error) {
	if userID == "" {
		return entities.OwnershipState{}, entities.ErrMissingUserID
	}
	state, err := h.store.Get(ctx, userID)
	if err != nil {
		return entities.OwnershipState{}, &entities.PersistenceError{Op: "load_ownership", Err: err}
	}
	return state, nil
}

// TakeOver hands the conversation to adminID. Repeating it for the holder
// changes nothing.
func (h *HandoffController) TakeOver(ctx context.Context, userID, adminID string) (entities.OwnershipState, error) {
	return h.mutate(ctx, userID, "take_over", adminID, func(cur entities.OwnershipState) (entities.OwnershipState, bool, error) {
		if cur.AdminTakeover {
			holder := cur.HeldBy()
			if holder == adminID {
				return cur, false, nil
			}
			if h.strict && holder != "" {
				return cur, false, &entities.ConflictError{UserID: userID, HeldBy: holder}
			}
		}
		next := cur
		// timestamptz keeps microseconds; the broadcast must match the row.
		at := h.now().UTC().Truncate(time.Microsecond)
		by := adminID
		next.AdminTakeover = true
		next.AdminTakeoverBy = &by
		next.AdminTakeoverAt = &at
		return next, true, nil
	})
}

// Release gives the conversation back to the bot. It is a no-op when nobody
// holds it.
func (h *HandoffController) Release(ctx context.Context, userID, adminID string) (entities.OwnershipState, error) {
	return h.mutate(ctx, userID, "release", adminID, func(cur entities.OwnershipState) (entities.OwnershipState, bool, error) {
		if !cur.AdminTakeover {
			return cur, false, nil
		}
		if holder := cur.HeldBy(); h.strict && holder != "" && holder != adminID {
			return cur, false, &entities.ConflictError{UserID: userID, HeldBy: holder}
		}
		next := cur
		next.AdminTakeover = false
		next.AdminTakeoverBy = nil
		next.AdminTakeoverAt = nil
		return next, true, nil
	})
}

// SetBotEnabled records the admin's preference. It leaves the takeover flag
// alone; a takeover still suppresses replies while the bot is enabled.
func (h *HandoffController) SetBotEnabled(ctx context.Context, userID string, enabled bool, actor string) (entities.OwnershipState, error) {
	return h.mutate(ctx, userID, "set_bot_enabled", actor, func(cur entities.OwnershipState) (entities.OwnershipState, bool, error) {
		if cur.BotEnabled == enabled {
			return cur, false, nil
		}
		next := cur
		next.BotEnabled = enabled
		return next, true, nil
	})
}

type transition func(cur entities.OwnershipState) (next entities.OwnershipState, changed bool, err error)

func (h *HandoffController) mutate(ctx context.Context, userID, op, actor string, fn transition) (entities.OwnershipState, error) {
	if userID == "" {
		return entities.OwnershipState{}, entities.ErrMissingUserID
	}

	unlock := h.locks.Lock(userID)
	defer unlock()

	cur, err := h.store.Get(ctx, userID)
	if err != nil {
		return entities.OwnershipState{}, &entities.PersistenceError{Op: "load_ownership", Err: err}
	}

	next, changed, err := fn(cur)
	if err != nil {
		h.log.Info().Str("user_id", userID).Str("op", op).Str("actor", actor).Err(err).Msg("ownership change rejected")
		return cur, err
	}
	if !changed {
		return cur, nil
	}
	next.Version = cur.Version + 1

	if err := h.store.Save(ctx, next); err != nil {
		return cur, &entities.PersistenceError{Op: "save_ownership", Err: err}
	}

	h.log.Info().
		Str("user_id", userID).
		Str("op", op).
		Str("actor", actor).
		Str("owner", string(next.Owner())).
		Bool("bot_enabled", next.BotEnabled).
		Msg("ownership changed")

	h.notifier.OwnershipChanged(next)
	if h.observer != nil {
		if err := h.observer.OwnershipChanged(ctx, cur, next); err != nil {
			h.log.Warn().Err(err).Str("user_id", userID).Msg("stats update failed")
		}
	}
	return next, nil
}
