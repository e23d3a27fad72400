package timeline

import (
	"strings"

	"project_handoff/internal/entities"
)

// Entry is an event as rendered by a consumer.
type Entry struct {
	entities.Event
	Pending     bool `json:"pending,omitempty"`
	Undelivered bool `json:"undelivered,omitempty"`
}

// Timeline is an ordered set of entries keyed by event id. Inserting an id
// that is already present is a no-op, so replayed events never render twice.
// It is not safe for concurrent use.
type Timeline struct {
	entries []Entry
	ids     map[string]struct{}
}

func New() *Timeline {
	return &Timeline{ids: make(map[string]struct{})}
}

// FromTurns hydrates a timeline from history.
func FromTurns(turns []entities.Turn) *Timeline {
	tl := New()
	for _, ev := range Merge(turns) {
		tl.Insert(Entry{Event: ev})
	}
	return tl
}

// Insert places e in order. It returns false when the id was already present.
func (tl *Timeline) Insert(e Entry) bool {
	if _, ok := tl.ids[e.EventID]; ok {
		return false
	}
	pos := len(tl.entries)
	for i := range tl.entries {
		if less(e.Event, tl.entries[i].Event) {
			pos = i
			break
		}
	}
	tl.entries = append(tl.entries, Entry{})
	copy(tl.entries[pos+1:], tl.entries[pos:])
	tl.entries[pos] = e
	tl.ids[e.EventID] = struct{}{}
	return true
}

// InsertEvents inserts every event and returns how many were new.
func (tl *Timeline) InsertEvents(events []entities.Event) int {
	n := 0
	for _, ev := range events {
		if tl.Insert(Entry{Event: ev}) {
			n++
		}
	}
	return n
}

// Remove deletes the entry with the given id.
func (tl *Timeline) Remove(eventID string) bool {
	if _, ok := tl.ids[eventID]; !ok {
		return false
	}
	for i := range tl.entries {
		if tl.entries[i].EventID == eventID {
			tl.entries = append(tl.entries[:i], tl.entries[i+1:]...)
			break
		}
	}
	delete(tl.ids, eventID)
	return true
}

func (tl *Timeline) Has(eventID string) bool {
	_, ok := tl.ids[eventID]
	return ok
}

// MarkUndelivered flags a committed event whose external delivery failed.
func (tl *Timeline) MarkUndelivered(eventID string) bool {
	for i := range tl.entries {
		if tl.entries[i].EventID == eventID {
			tl.entries[i].Undelivered = true
			return true
		}
	}
	return false
}

func (tl *Timeline) Len() int {
	return len(tl.entries)
}

// Entries returns a copy of the rendered list.
func (tl *Timeline) Entries() []Entry {
	out := make([]Entry, len(tl.entries))
	copy(out, tl.entries)
	return out
}

// less orders by timestamp, then by turn id when both events are committed,
// then user before response within a turn.
func less(a, b entities.Event) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.TurnID > 0 && b.TurnID > 0 && a.TurnID != b.TurnID {
		return a.TurnID < b.TurnID
	}
	if a.TurnID == b.TurnID && a.TurnID > 0 {
		return isUserPart(a) && !isUserPart(b)
	}
	return false
}

func isUserPart(e entities.Event) bool {
	return strings.HasSuffix(e.EventID, "-user")
}
