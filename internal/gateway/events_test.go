package gateway

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"project_handoff/internal/entities"
)

func TestDecodeTypedEvents(t *testing.T) {
	cases := []struct {
		raw  string
		want Event
	}{
		{`{"event":"join-user-room","ref":"1","data":{"userId":"telegram:1"}}`, JoinUserRoom{UserID: "telegram:1"}},
		{`{"event":"send-message-to-user","data":{"userId":"telegram:1","message":"hi"}}`, SendMessageToUser{UserID: "telegram:1", Message: "hi"}},
		{`{"event":"set-bot-enabled","data":{"userId":"web:9","enabled":true}}`, SetBotEnabled{UserID: "web:9", Enabled: true}},
		{`{"event":"backpressure","data":{"dropped":3}}`, Backpressure{Dropped: 3}},
	}
	for _, tc := range cases {
		_, ev, err := Decode([]byte(tc.raw))
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", tc.raw, err)
		}
		if ev != tc.want {
			t.Fatalf("Decode(%s) = %#v, want %#v", tc.raw, ev, tc.want)
		}
	}
}

func TestDecodeKeepsRefForUnknownEvent(t *testing.T) {
	f, ev, err := Decode([]byte(`{"event":"explode","ref":"r7","data":{}}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("err = %v, want ErrUnknownEvent", err)
	}
	if ev != nil {
		t.Fatalf("ev = %#v, want nil", ev)
	}
	if f.Ref != "r7" {
		t.Fatalf("ref = %q, want r7", f.Ref)
	}
}

func TestDecodeRejectsMalformedData(t *testing.T) {
	if _, _, err := Decode([]byte(`{"event":"take-over","data":{"userId":5}}`)); err == nil {
		t.Fatal("expected error for wrong field type")
	}
	if _, _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid frame")
	}
}

func TestEncodeCarriesNestedEvent(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	msg := entities.Event{EventID: "5-user", UserID: "telegram:1", TurnID: 5, Speaker: entities.SpeakerUser, Text: "Hi", Timestamp: at}

	data, err := Encode(NewMessage{UserID: "telegram:1", Message: msg}, "w1")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if f.Event != EventNewMessage || f.Ref != "w1" {
		t.Fatalf("frame = %+v", f)
	}

	_, ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got := ev.(NewMessage)
	if got.Message.EventID != "5-user" || !got.Message.Timestamp.Equal(at) {
		t.Fatalf("decoded message = %+v", got.Message)
	}
}

func TestCritical(t *testing.T) {
	if Critical(StatsUpdate{}) || Critical(MetricsUpdate{}) || Critical(Backpressure{}) {
		t.Fatal("snapshots must not be critical")
	}
	if !Critical(AdminMessage{}) || !Critical(BotStatusChanged{}) || !Critical(Ack{}) {
		t.Fatal("message-class events must be critical")
	}
}

func TestAllowed(t *testing.T) {
	admin := Principal{Kind: PrincipalAdmin, AdminID: "alice"}
	service := Principal{Kind: PrincipalService}

	cases := []struct {
		p    Principal
		ev   Event
		want bool
	}{
		{admin, TakeOver{}, true},
		{admin, SendMessageToUser{}, true},
		{admin, NewMessage{}, false},
		{admin, BotStatusChanged{}, false},
		{service, NewMessage{}, true},
		{service, DeliveryFailed{}, true},
		{service, TakeOver{}, false},
		{service, JoinUserRoom{}, false},
		{Principal{}, JoinUserRoom{}, false},
	}
	for _, tc := range cases {
		if got := allowed(tc.p, tc.ev); got != tc.want {
			t.Errorf("allowed(%s, %s) = %v, want %v", tc.p.Kind, tc.ev.EventName(), got, tc.want)
		}
	}
}
