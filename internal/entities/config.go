package entities

import (
	"encoding/json"
	"time"
)

// BotConfig is one key/value bot setting, e.g. welcome_message.
type BotConfig struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MenuItem is a canned reply option offered by the rule-based responder.
type MenuItem struct {
	Label   string `json:"label"`
	Action  string `json:"action"` // "reply"
	Payload string `json:"payload"`
}

type Menu struct {
	ID        int             `json:"id"`
	Slug      string          `json:"slug"`
	Title     string          `json:"title"`
	Items     json.RawMessage `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// ParseItems decodes the menu's items. Malformed items yield none.
func (m Menu) ParseItems() []MenuItem {
	var items []MenuItem
	if len(m.Items) == 0 || json.Unmarshal(m.Items, &items) != nil {
		return nil
	}
	return items
}
