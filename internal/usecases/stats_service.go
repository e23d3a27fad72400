package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
	"project_handoff/internal/interfaces"
)

const (
	statsTTL        = 48 * time.Hour
	keyTakeovers    = "takeovers"
	statsDateFormat = "2006-01-02"
)

// AdminCounter reports live admin sessions.
type AdminCounter interface {
	ConnectedAdmins() int
}

// StatsService owns the dashboard counters. Every message event is counted
// once no matter how many times it is reported, and listeners only ever get
// whole snapshots.
type StatsService struct {
	counters interfaces.CounterStore
	admins   AdminCounter
	notifier interfaces.Notifier
	now      func() time.Time
	log      zerolog.Logger
}

func NewStatsService(counters interfaces.CounterStore, admins AdminCounter, notifier interfaces.Notifier, log zerolog.Logger) *StatsService {
	return &StatsService{
		counters: counters,
		admins:   admins,
		notifier: notifier,
		now:      time.Now,
		log:      log.With().Str("component", "stats").Logger(),
	}
}

func (s *StatsService) day() string {
	return s.now().UTC().Format(statsDateFormat)
}

func countKey(day, name string) string { return "count:" + day + ":" + name }
func activeKey(day string) string      { return "active:" + day }

// RecordEvent counts a committed message event and publishes a fresh
// snapshot. Replays of the same event id are ignored.
func (s *StatsService) RecordEvent(ctx context.Context, ev entities.Event) error {
	if ev.EventID == "" {
		return nil
	}
	first, err := s.counters.MarkSeen(ctx, "seen:"+ev.EventID, statsTTL)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	if !first {
		return nil
	}

	day := s.day()
	if err := s.counters.Incr(ctx, countKey(day, "messages"), statsTTL); err != nil {
		return fmt.Errorf("incr messages: %w", err)
	}
	if err := s.counters.Incr(ctx, countKey(day, string(ev.Speaker)), statsTTL); err != nil {
		return fmt.Errorf("incr %s: %w", ev.Speaker, err)
	}
	if ev.Speaker == entities.SpeakerUser {
		if err := s.counters.AddMember(ctx, activeKey(day), ev.UserID, statsTTL); err != nil {
			return fmt.Errorf("mark active: %w", err)
		}
	}
	return s.Publish(ctx)
}

// OwnershipChanged keeps the active takeover set in step with the controller.
func (s *StatsService) OwnershipChanged(ctx context.Context, before, after entities.OwnershipState) error {
	if before.AdminTakeover == after.AdminTakeover {
		return nil
	}
	var err error
	if after.AdminTakeover {
		err = s.counters.AddMember(ctx, keyTakeovers, after.UserID, 0)
	} else {
		err = s.counters.RemoveMember(ctx, keyTakeovers, after.UserID)
	}
	if err != nil {
		return fmt.Errorf("update takeovers: %w", err)
	}
	return s.Publish(ctx)
}

// Snapshot reads every counter for today.
func (s *StatsService) Snapshot(ctx context.Context) (entities.StatsSnapshot, error) {
	day := s.day()
	snap := entities.StatsSnapshot{Day: day, GeneratedAt: s.now().UTC()}

	var err error
	if snap.MessagesToday, err = s.counters.Get(ctx, countKey(day, "messages")); err != nil {
		return snap, fmt.Errorf("read messages: %w", err)
	}
	if snap.UserMessagesToday, err = s.counters.Get(ctx, countKey(day, string(entities.SpeakerUser))); err != nil {
		return snap, fmt.Errorf("read user messages: %w", err)
	}
	if snap.BotMessagesToday, err = s.counters.Get(ctx, countKey(day, string(entities.SpeakerBot))); err != nil {
		return snap, fmt.Errorf("read bot messages: %w", err)
	}
	if snap.AdminMessagesToday, err = s.counters.Get(ctx, countKey(day, string(entities.SpeakerAdmin))); err != nil {
		return snap, fmt.Errorf("read admin messages: %w", err)
	}
	if snap.ActiveUsersToday, err = s.counters.Cardinality(ctx, activeKey(day)); err != nil {
		return snap, fmt.Errorf("read active users: %w", err)
	}
	if snap.ActiveTakeovers, err = s.counters.Cardinality(ctx, keyTakeovers); err != nil {
		return snap, fmt.Errorf("read takeovers: %w", err)
	}
	if s.admins != nil {
		snap.ConnectedAdmins = s.admins.ConnectedAdmins()
	}
	return snap, nil
}

// Publish pushes the current snapshot to every admin.
func (s *StatsService) Publish(ctx context.Context) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.notifier.StatsChanged(snap)
	return nil
}
