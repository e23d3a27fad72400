package entities

import "time"

// Turn is one persisted row of a conversation. It may carry the user's
// message, a reply, or both.
type Turn struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	Message        *string   `json:"message"`
	Response       *string   `json:"response"`
	Timestamp      time.Time `json:"timestamp"`
	IsFromUser     bool      `json:"is_from_user"`
	IsAdminMessage bool      `json:"is_admin_message"`
	AdminID        *string   `json:"admin_id"`
}

// HasMessage reports whether the turn carries a non-empty user message.
func (t Turn) HasMessage() bool {
	return t.Message != nil && *t.Message != ""
}

// HasResponse reports whether the turn carries a non-empty reply.
func (t Turn) HasResponse() bool {
	return t.Response != nil && *t.Response != ""
}

// NewUserTurn builds an unsaved turn for an inbound user message.
func NewUserTurn(userID, text string, at time.Time) Turn {
	return Turn{
		UserID:     userID,
		Message:    &text,
		Timestamp:  at,
		IsFromUser: true,
	}
}

// NewBotTurn builds an unsaved turn for an automated reply.
func NewBotTurn(userID, text string, at time.Time) Turn {
	return Turn{
		UserID:    userID,
		Response:  &text,
		Timestamp: at,
	}
}

// NewAdminTurn builds an unsaved turn for a message an admin sent directly.
func NewAdminTurn(userID, adminID, text string, at time.Time) Turn {
	return Turn{
		UserID:         userID,
		Response:       &text,
		Timestamp:      at,
		IsAdminMessage: true,
		AdminID:        &adminID,
	}
}
