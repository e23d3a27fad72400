package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
	"project_handoff/internal/infrastructure"
)

type fixedAdmins int

func (f fixedAdmins) ConnectedAdmins() int { return int(f) }

func testTime(minutes int) time.Time {
	return time.Date(2024, 3, 1, 9, minutes, 0, 0, time.UTC)
}

func newStats() (*StatsService, *recordingNotifier) {
	notifier := &recordingNotifier{}
	s := NewStatsService(infrastructure.NewMemoryCounterStore(), fixedAdmins(2), notifier, zerolog.Nop())
	s.now = func() time.Time { return testTime(0) }
	return s, notifier
}

func TestRecordEventCountsEachEventOnce(t *testing.T) {
	ctx := context.Background()
	s, notifier := newStats()

	user := entities.Event{EventID: "1-user", UserID: "telegram:1", Speaker: entities.SpeakerUser}
	bot := entities.Event{EventID: "1-response", UserID: "telegram:1", Speaker: entities.SpeakerBot}

	for _, ev := range []entities.Event{user, user, bot, user, bot} {
		if err := s.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.MessagesToday != 2 || snap.UserMessagesToday != 1 || snap.BotMessagesToday != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.ActiveUsersToday != 1 || snap.ConnectedAdmins != 2 || snap.Day != "2024-03-01" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(notifier.stats) != 2 {
		t.Fatalf("published %d snapshots, want 2", len(notifier.stats))
	}
}

func TestOwnershipChangedTracksTakeovers(t *testing.T) {
	ctx := context.Background()
	s, notifier := newStats()

	free := entities.DefaultOwnership("web:1")
	held := free
	held.AdminTakeover = true

	if err := s.OwnershipChanged(ctx, free, held); err != nil {
		t.Fatal(err)
	}
	snap, _ := s.Snapshot(ctx)
	if snap.ActiveTakeovers != 1 {
		t.Fatalf("takeovers = %d, want 1", snap.ActiveTakeovers)
	}

	disabled := held
	disabled.BotEnabled = false
	if err := s.OwnershipChanged(ctx, held, disabled); err != nil {
		t.Fatal(err)
	}
	if len(notifier.stats) != 1 {
		t.Fatal("bot toggle alone should not republish")
	}

	if err := s.OwnershipChanged(ctx, disabled, free); err != nil {
		t.Fatal(err)
	}
	snap, _ = s.Snapshot(ctx)
	if snap.ActiveTakeovers != 0 {
		t.Fatalf("takeovers = %d, want 0", snap.ActiveTakeovers)
	}
}
