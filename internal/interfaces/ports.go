package interfaces

import (
	"context"
	"time"

	"project_handoff/internal/entities"
)

// AIClient is the opaque response engine: message text in, reply text out.
type AIClient interface {
	GenerateResponse(ctx context.Context, userID, message string) (string, error)
}

// Channel delivers text to one external platform.
type Channel interface {
	Platform() string
	SendMessage(ctx context.Context, to, content string) error
}

type TurnStore interface {
	Insert(ctx context.Context, turn *entities.Turn) error
	ListByUser(ctx context.Context, userID string, limit int) ([]entities.Turn, error)
}

// OwnershipStore returns the default state for users it has never seen.
type OwnershipStore interface {
	Get(ctx context.Context, userID string) (entities.OwnershipState, error)
	Save(ctx context.Context, state entities.OwnershipState) error
}

type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	GetAllMenus(ctx context.Context) ([]entities.Menu, error)
}

// CounterStore backs the aggregate counters. Keys are logical names; the
// implementation namespaces them. A zero ttl means no expiry.
type CounterStore interface {
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string, ttl time.Duration) error
	Get(ctx context.Context, key string) (int64, error)
	AddMember(ctx context.Context, set, member string, ttl time.Duration) error
	RemoveMember(ctx context.Context, set, member string) error
	Cardinality(ctx context.Context, set string) (int64, error)
}

// Notifier is how the admin backend announces committed changes. Calls must
// not block.
type Notifier interface {
	OwnershipChanged(state entities.OwnershipState)
	AdminMessageCommitted(turn entities.Turn, ev entities.Event)
	StatsChanged(snap entities.StatsSnapshot)
}

// WorkerEvents is how the worker announces what it did. Calls must not block.
type WorkerEvents interface {
	NewMessage(userID string, ev entities.Event)
	OwnershipObserved(state entities.OwnershipState)
	DeliveryFailed(job entities.DeliveryJob, err error)
	Metrics(m entities.WorkerMetrics)
}

// Dispatcher accepts a delivery job. It may deliver inline or queue it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job entities.DeliveryJob) error
}
