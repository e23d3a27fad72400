package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"project_handoff/internal/entities"
)

// TurnRepository reads and appends conversation_turns rows.
type TurnRepository struct {
	db *pgxpool.Pool
}

func NewTurnRepository(db *pgxpool.Pool) *TurnRepository {
	return &TurnRepository{db: db}
}

// Insert appends turn and fills in its id.
func (r *TurnRepository) Insert(ctx context.Context, turn *entities.Turn) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO conversation_turns (user_id, message, response, timestamp, is_from_user, is_admin_message, admin_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, turn.UserID, turn.Message, turn.Response, turn.Timestamp, turn.IsFromUser, turn.IsAdminMessage, turn.AdminID).Scan(&turn.ID)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// ListByUser returns the newest limit turns of a conversation, oldest first.
func (r *TurnRepository) ListByUser(ctx context.Context, userID string, limit int) ([]entities.Turn, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, message, response, timestamp, is_from_user, is_admin_message, admin_id
		FROM (
			SELECT * FROM conversation_turns
			WHERE user_id = $1
			ORDER BY timestamp DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY timestamp ASC, id ASC
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	turns := []entities.Turn{}
	for rows.Next() {
		var t entities.Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.Message, &t.Response, &t.Timestamp, &t.IsFromUser, &t.IsAdminMessage, &t.AdminID); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
