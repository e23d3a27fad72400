package entities

import (
	"strconv"
	"time"
)

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerBot   Speaker = "bot"
	SpeakerAdmin Speaker = "admin"
)

// Event is a displayable, speaker-tagged unit derived from a Turn.
// Events are never persisted.
type Event struct {
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	TurnID    int64     `json:"turnId"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	AdminID   string    `json:"adminId,omitempty"`
}

// UserEventID and ResponseEventID give the stable ids of the two events a
// turn can produce.
func UserEventID(turnID int64) string {
	return strconv.FormatInt(turnID, 10) + "-user"
}

func ResponseEventID(turnID int64) string {
	return strconv.FormatInt(turnID, 10) + "-response"
}
