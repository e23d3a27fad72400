package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
)

func newController(strict bool) (*HandoffController, *memOwnership, *recordingNotifier) {
	store := newMemOwnership()
	notifier := &recordingNotifier{}
	return NewHandoffController(store, notifier, nil, strict, zerolog.Nop()), store, notifier
}

func TestTakeOverAndRelease(t *testing.T) {
	ctx := context.Background()
	h, _, notifier := newController(false)

	state, err := h.TakeOver(ctx, "telegram:1", "alice")
	if err != nil {
		t.Fatalf("TakeOver() error = %v", err)
	}
	if !state.AdminTakeover || state.HeldBy() != "alice" || state.AdminTakeoverAt == nil {
		t.Fatalf("state = %+v", state)
	}
	if state.CanAutoRespond() {
		t.Fatal("bot must not respond during takeover")
	}

	state, err = h.Release(ctx, "telegram:1", "alice")
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if state.AdminTakeover || state.AdminTakeoverBy != nil || state.AdminTakeoverAt != nil {
		t.Fatalf("state after release = %+v", state)
	}
	if !state.CanAutoRespond() {
		t.Fatal("bot should respond again after release")
	}
	if n := notifier.ownershipCount(); n != 2 {
		t.Fatalf("broadcasts = %d, want 2", n)
	}
}

func TestCommittedChangesBumpVersion(t *testing.T) {
	ctx := context.Background()
	h, _, _ := newController(false)

	steps := []struct {
		name string
		run  func() (entities.OwnershipState, error)
		want int64
	}{
		{"take over", func() (entities.OwnershipState, error) { return h.TakeOver(ctx, "web:1", "alice") }, 1},
		{"repeat take over", func() (entities.OwnershipState, error) { return h.TakeOver(ctx, "web:1", "alice") }, 1},
		{"disable bot", func() (entities.OwnershipState, error) { return h.SetBotEnabled(ctx, "web:1", false, "alice") }, 2},
		{"release", func() (entities.OwnershipState, error) { return h.Release(ctx, "web:1", "alice") }, 3},
	}
	for _, step := range steps {
		state, err := step.run()
		if err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if state.Version != step.want {
			t.Errorf("%s: version = %d, want %d", step.name, state.Version, step.want)
		}
	}
}

func TestTakeOverTimestampMatchesStoredPrecision(t *testing.T) {
	h, _, notifier := newController(false)
	h.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC) }

	if _, err := h.TakeOver(context.Background(), "web:1", "alice"); err != nil {
		t.Fatal(err)
	}
	broadcast := *notifier.ownership[0].AdminTakeoverAt
	// What a timestamptz column hands back on the next read.
	stored := broadcast.Truncate(time.Microsecond)

	if !broadcast.Equal(stored) {
		t.Fatalf("broadcast at %v differs from stored %v", broadcast, stored)
	}
}

func TestNoOpCommandsDoNotBroadcast(t *testing.T) {
	ctx := context.Background()
	h, store, notifier := newController(false)

	if _, err := h.Release(ctx, "web:1", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.SetBotEnabled(ctx, "web:1", true, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.TakeOver(ctx, "web:1", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.TakeOver(ctx, "web:1", "alice"); err != nil {
		t.Fatal(err)
	}

	if n := notifier.ownershipCount(); n != 1 {
		t.Fatalf("broadcasts = %d, want 1", n)
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1", store.saves)
	}
}

func TestTakeOverByAnotherAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("last writer wins", func(t *testing.T) {
		h, _, _ := newController(false)
		_, _ = h.TakeOver(ctx, "web:1", "alice")
		state, err := h.TakeOver(ctx, "web:1", "bob")
		if err != nil {
			t.Fatalf("TakeOver() error = %v", err)
		}
		if state.HeldBy() != "bob" {
			t.Fatalf("holder = %q, want bob", state.HeldBy())
		}
	})

	t.Run("single owner", func(t *testing.T) {
		h, _, notifier := newController(true)
		_, _ = h.TakeOver(ctx, "web:1", "alice")

		state, err := h.TakeOver(ctx, "web:1", "bob")
		var conflict *entities.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("err = %v, want ConflictError", err)
		}
		if conflict.HeldBy != "alice" || state.HeldBy() != "alice" {
			t.Fatalf("conflict = %+v, state = %+v", conflict, state)
		}
		if _, err := h.Release(ctx, "web:1", "bob"); !errors.As(err, &conflict) {
			t.Fatalf("release by non-holder err = %v", err)
		}
		if n := notifier.ownershipCount(); n != 1 {
			t.Fatalf("broadcasts = %d, want 1", n)
		}
	})
}

func TestSetBotEnabledKeepsTakeover(t *testing.T) {
	ctx := context.Background()
	h, _, _ := newController(false)

	_, _ = h.TakeOver(ctx, "web:1", "alice")
	state, err := h.SetBotEnabled(ctx, "web:1", false, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !state.AdminTakeover || state.BotEnabled {
		t.Fatalf("state = %+v", state)
	}

	state, _ = h.Release(ctx, "web:1", "alice")
	if state.CanAutoRespond() {
		t.Fatal("disabled bot must stay silent after release")
	}
}

func TestConcurrentTakeoversSerialize(t *testing.T) {
	ctx := context.Background()
	h, store, notifier := newController(true)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, admin := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		wg.Add(1)
		go func(admin string) {
			defer wg.Done()
			if _, err := h.TakeOver(ctx, "web:1", admin); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(admin)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
	if store.saves != 1 || notifier.ownershipCount() != 1 {
		t.Fatalf("saves = %d, broadcasts = %d", store.saves, notifier.ownershipCount())
	}
}

func TestMutateRejectsMissingUser(t *testing.T) {
	h, _, _ := newController(false)
	if _, err := h.TakeOver(context.Background(), "", "alice"); !errors.Is(err, entities.ErrMissingUserID) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadFailureIsPersistenceError(t *testing.T) {
	h, store, notifier := newController(false)
	store.failGet = true

	_, err := h.TakeOver(context.Background(), "web:1", "alice")
	var perr *entities.PersistenceError
	if !errors.As(err, &perr) || perr.Op != "load_ownership" {
		t.Fatalf("err = %v", err)
	}
	if notifier.ownershipCount() != 0 {
		t.Fatal("failed command must not broadcast")
	}
}
