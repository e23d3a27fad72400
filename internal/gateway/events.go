// Package gateway is the authenticated, room-addressed socket layer shared by
// the admin backend and the messaging worker.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"project_handoff/internal/entities"
)

// Event names on the wire.
const (
	EventJoinUserRoom      = "join-user-room"
	EventLeaveUserRoom     = "leave-user-room"
	EventSendMessageToUser = "send-message-to-user"
	EventTakeOver          = "take-over"
	EventRelease           = "release"
	EventSetBotEnabled     = "set-bot-enabled"
	EventNewMessage        = "new-message"
	EventAdminMessage      = "admin-message"
	EventBotStatusChanged  = "bot-status-changed"
	EventDeliveryFailed    = "delivery-failed"
	EventStatsUpdate       = "stats:update"
	EventMetricsUpdate     = "metrics:update"
	EventAck               = "ack"
	EventError             = "error"
	EventBackpressure      = "backpressure"
)

var ErrUnknownEvent = errors.New("unknown event")

// Event is one of the closed set of payload types below.
type Event interface {
	EventName() string
}

type JoinUserRoom struct {
	UserID string `json:"userId"`
}

type LeaveUserRoom struct {
	UserID string `json:"userId"`
}

// SendMessageToUser is sent by admins with only UserID and Message set. The
// gateway forwards the committed version, with turn and event ids, to the
// worker for delivery.
type SendMessageToUser struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
	TurnID  int64  `json:"turnId,omitempty"`
	EventID string `json:"eventId,omitempty"`
	AdminID string `json:"adminId,omitempty"`
}

type TakeOver struct {
	UserID string `json:"userId"`
}

type Release struct {
	UserID string `json:"userId"`
}

type SetBotEnabled struct {
	UserID  string `json:"userId"`
	Enabled bool   `json:"enabled"`
}

type NewMessage struct {
	UserID  string         `json:"userId"`
	Message entities.Event `json:"message"`
}

type AdminMessage struct {
	UserID  string         `json:"userId"`
	Message entities.Event `json:"message"`
	AdminID string         `json:"adminId"`
}

// BotStatusChanged carries the full ownership state after a committed change.
type BotStatusChanged struct {
	entities.OwnershipState
}

type DeliveryFailed struct {
	UserID  string `json:"userId"`
	TurnID  int64  `json:"turnId"`
	EventID string `json:"eventId"`
	Error   string `json:"error"`
}

type StatsUpdate struct {
	entities.StatsSnapshot
}

type MetricsUpdate struct {
	entities.WorkerMetrics
}

// Ack confirms a request frame. State and Turn are set for commands that
// produce them.
type Ack struct {
	Ref    string                   `json:"ref,omitempty"`
	For    string                   `json:"for"`
	UserID string                   `json:"userId,omitempty"`
	State  *entities.OwnershipState `json:"state,omitempty"`
	Turn   *entities.Turn           `json:"turn,omitempty"`
}

type ErrorReply struct {
	Ref   string `json:"ref,omitempty"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type Backpressure struct {
	Dropped int `json:"dropped"`
}

func (JoinUserRoom) EventName() string      { return EventJoinUserRoom }
func (LeaveUserRoom) EventName() string     { return EventLeaveUserRoom }
func (SendMessageToUser) EventName() string { return EventSendMessageToUser }
func (TakeOver) EventName() string          { return EventTakeOver }
func (Release) EventName() string           { return EventRelease }
func (SetBotEnabled) EventName() string     { return EventSetBotEnabled }
func (NewMessage) EventName() string        { return EventNewMessage }
func (AdminMessage) EventName() string      { return EventAdminMessage }
func (BotStatusChanged) EventName() string  { return EventBotStatusChanged }
func (DeliveryFailed) EventName() string    { return EventDeliveryFailed }
func (StatsUpdate) EventName() string       { return EventStatsUpdate }
func (MetricsUpdate) EventName() string     { return EventMetricsUpdate }
func (Ack) EventName() string               { return EventAck }
func (ErrorReply) EventName() string        { return EventError }
func (Backpressure) EventName() string      { return EventBackpressure }

// Frame is the envelope every socket message travels in. Ref is an optional
// client-chosen correlation id echoed back in ack and error frames.
type Frame struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Encode wraps ev in a frame.
func Encode(ev Event, ref string) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	return json.Marshal(Frame{Event: ev.EventName(), Ref: ref, Data: data})
}

// Decode parses a frame into its typed event. Unknown names return
// ErrUnknownEvent together with the frame so callers can reply with the ref.
func Decode(raw []byte) (Frame, Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, nil, fmt.Errorf("decode frame: %w", err)
	}

	var ev Event
	switch f.Event {
	case EventJoinUserRoom:
		ev = &JoinUserRoom{}
	case EventLeaveUserRoom:
		ev = &LeaveUserRoom{}
	case EventSendMessageToUser:
		ev = &SendMessageToUser{}
	case EventTakeOver:
		ev = &TakeOver{}
	case EventRelease:
		ev = &Release{}
	case EventSetBotEnabled:
		ev = &SetBotEnabled{}
	case EventNewMessage:
		ev = &NewMessage{}
	case EventAdminMessage:
		ev = &AdminMessage{}
	case EventBotStatusChanged:
		ev = &BotStatusChanged{}
	case EventDeliveryFailed:
		ev = &DeliveryFailed{}
	case EventStatsUpdate:
		ev = &StatsUpdate{}
	case EventMetricsUpdate:
		ev = &MetricsUpdate{}
	case EventAck:
		ev = &Ack{}
	case EventError:
		ev = &ErrorReply{}
	case EventBackpressure:
		ev = &Backpressure{}
	default:
		return f, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}

	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, ev); err != nil {
			return f, nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
	}
	return f, deref(ev), nil
}

// deref turns the pointer used for decoding back into a value so handlers
// switch on value types only.
func deref(ev Event) Event {
	switch e := ev.(type) {
	case *JoinUserRoom:
		return *e
	case *LeaveUserRoom:
		return *e
	case *SendMessageToUser:
		return *e
	case *TakeOver:
		return *e
	case *Release:
		return *e
	case *SetBotEnabled:
		return *e
	case *NewMessage:
		return *e
	case *AdminMessage:
		return *e
	case *BotStatusChanged:
		return *e
	case *DeliveryFailed:
		return *e
	case *StatsUpdate:
		return *e
	case *MetricsUpdate:
		return *e
	case *Ack:
		return *e
	case *ErrorReply:
		return *e
	case *Backpressure:
		return *e
	}
	return ev
}

// Critical reports whether ev is message-class. Critical events are never
// dropped by a connection's outbound queue; snapshots are, since a newer one
// supersedes them.
func Critical(ev Event) bool {
	switch ev.(type) {
	case StatsUpdate, MetricsUpdate, Backpressure:
		return false
	}
	return true
}

// adminCommand reports whether only admin sessions may publish ev.
func adminCommand(ev Event) bool {
	switch ev.(type) {
	case JoinUserRoom, LeaveUserRoom, SendMessageToUser, TakeOver, Release, SetBotEnabled:
		return true
	}
	return false
}

// serviceEvent reports whether only the service identity may publish ev.
func serviceEvent(ev Event) bool {
	switch ev.(type) {
	case NewMessage, BotStatusChanged, MetricsUpdate, DeliveryFailed:
		return true
	}
	return false
}
