package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"project_handoff/internal/entities"
)

// OwnershipRepository stores one ownership_state row per user.
type OwnershipRepository struct {
	db *pgxpool.Pool
}

func NewOwnershipRepository(db *pgxpool.Pool) *OwnershipRepository {
	return &OwnershipRepository{db: db}
}

// Get returns the user's state, creating the default row on first contact.
func (r *OwnershipRepository) Get(ctx context.Context, userID string) (entities.OwnershipState, error) {
	state := entities.OwnershipState{UserID: userID}
	err := r.db.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO ownership_state (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
			RETURNING version, bot_enabled, admin_takeover, admin_takeover_by, admin_takeover_at
		)
		SELECT version, bot_enabled, admin_takeover, admin_takeover_by, admin_takeover_at FROM ins
		UNION ALL
		SELECT version, bot_enabled, admin_takeover, admin_takeover_by, admin_takeover_at
		FROM ownership_state WHERE user_id = $1
		LIMIT 1
	`, userID).Scan(&state.Version, &state.BotEnabled, &state.AdminTakeover, &state.AdminTakeoverBy, &state.AdminTakeoverAt)
	if err != nil {
		return entities.OwnershipState{}, fmt.Errorf("load ownership %s: %w", userID, err)
	}
	return state, nil
}

// Save writes the whole state. Only the handoff controller calls it.
func (r *OwnershipRepository) Save(ctx context.Context, state entities.OwnershipState) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ownership_state (user_id, version, bot_enabled, admin_takeover, admin_takeover_by, admin_takeover_at, updated_at)
		VALUES ($1, $6, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			version = EXCLUDED.version,
			bot_enabled = EXCLUDED.bot_enabled,
			admin_takeover = EXCLUDED.admin_takeover,
			admin_takeover_by = EXCLUDED.admin_takeover_by,
			admin_takeover_at = EXCLUDED.admin_takeover_at,
			updated_at = NOW()
	`, state.UserID, state.BotEnabled, state.AdminTakeover, state.AdminTakeoverBy, state.AdminTakeoverAt, state.Version)
	if err != nil {
		return fmt.Errorf("save ownership %s: %w", state.UserID, err)
	}
	return nil
}
