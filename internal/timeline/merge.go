// Package timeline turns persisted turns into an ordered per-speaker event
// sequence and keeps event_id-keyed views of it.
package timeline

import (
	"sort"

	"project_handoff/internal/entities"
)

// Merge splits turns into events. Turns are ordered by timestamp (ties by id)
// and each turn yields its user event before its response event. Turns with
// neither field set yield nothing. The input slice is not modified.
func Merge(turns []entities.Turn) []entities.Event {
	ordered := make([]entities.Turn, len(turns))
	copy(ordered, turns)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].ID < ordered[j].ID
	})

	events := make([]entities.Event, 0, len(ordered)*2)
	for _, t := range ordered {
		events = append(events, Split(t)...)
	}
	return events
}

// Split derives the zero, one or two events of a single turn.
func Split(t entities.Turn) []entities.Event {
	var out []entities.Event
	if t.HasMessage() {
		out = append(out, entities.Event{
			EventID:   entities.UserEventID(t.ID),
			UserID:    t.UserID,
			TurnID:    t.ID,
			Speaker:   entities.SpeakerUser,
			Text:      *t.Message,
			Timestamp: t.Timestamp,
		})
	}
	if t.HasResponse() {
		ev := entities.Event{
			EventID:   entities.ResponseEventID(t.ID),
			UserID:    t.UserID,
			TurnID:    t.ID,
			Speaker:   entities.SpeakerBot,
			Text:      *t.Response,
			Timestamp: t.Timestamp,
		}
		if t.IsAdminMessage {
			ev.Speaker = entities.SpeakerAdmin
			if t.AdminID != nil {
				ev.AdminID = *t.AdminID
			}
		}
		out = append(out, ev)
	}
	return out
}
