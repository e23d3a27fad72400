package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"project_handoff/internal/entities"
	"project_handoff/internal/timeline"
)

type historyEvent struct {
	EventID   string    `json:"eventId" yaml:"event_id"`
	TurnID    int64     `json:"turnId" yaml:"turn_id"`
	Speaker   string    `json:"speaker" yaml:"speaker"`
	AdminID   string    `json:"adminId,omitempty" yaml:"admin_id,omitempty"`
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

type historyDoc struct {
	UserID      string         `json:"userId" yaml:"user_id"`
	Owner       string         `json:"owner" yaml:"owner"`
	BotEnabled  bool           `json:"botEnabled" yaml:"bot_enabled"`
	TakenOverBy string         `json:"takenOverBy,omitempty" yaml:"taken_over_by,omitempty"`
	Events      []historyEvent `json:"events" yaml:"events"`
}

func newHistoryDoc(userID string, state entities.OwnershipState, entries []timeline.Entry) historyDoc {
	doc := historyDoc{
		UserID:      userID,
		Owner:       string(state.Owner()),
		BotEnabled:  state.BotEnabled,
		TakenOverBy: state.HeldBy(),
		Events:      make([]historyEvent, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Events = append(doc.Events, historyEvent{
			EventID:   e.EventID,
			TurnID:    e.TurnID,
			Speaker:   string(e.Speaker),
			AdminID:   e.AdminID,
			Text:      e.Text,
			Timestamp: e.Timestamp,
		})
	}
	return doc
}

// writeHistory prints a conversation as text, json or yaml.
func writeHistory(w io.Writer, format, userID string, state entities.OwnershipState, entries []timeline.Entry) error {
	switch format {
	case "", "text":
		_, err := fmt.Fprintln(w, renderView(userID, state, entries, 0))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newHistoryDoc(userID, state, entries))
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(newHistoryDoc(userID, state, entries))
	default:
		return fmt.Errorf("unsupported format %q (text, json, yaml)", format)
	}
}
