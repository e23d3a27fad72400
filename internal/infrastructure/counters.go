package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"project_handoff/internal/interfaces"
)

const counterPrefix = "handoff:"

// RedisCounterStore keeps aggregate counters in Redis so several backend
// replicas agree on one set of numbers.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore connects to url and pings it.
func NewRedisCounterStore(ctx context.Context, url string) (*RedisCounterStore, error) {
	if url == "" {
		return nil, errors.New("redis: url is not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisCounterStore{client: c}, nil
}

var _ interfaces.CounterStore = (*RedisCounterStore)(nil)

func (r *RedisCounterStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, counterPrefix+key, 1, ttl).Result()
}

func (r *RedisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, counterPrefix+key)
	if ttl > 0 {
		pipe.Expire(ctx, counterPrefix+key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, counterPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *RedisCounterStore) AddMember(ctx context.Context, set, member string, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, counterPrefix+set, member)
	if ttl > 0 {
		pipe.Expire(ctx, counterPrefix+set, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisCounterStore) RemoveMember(ctx context.Context, set, member string) error {
	return r.client.SRem(ctx, counterPrefix+set, member).Err()
}

func (r *RedisCounterStore) Cardinality(ctx context.Context, set string) (int64, error) {
	return r.client.SCard(ctx, counterPrefix+set).Result()
}

func (r *RedisCounterStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCounterStore) Close() error {
	return r.client.Close()
}

// MemoryCounterStore is the single-process fallback used when no Redis URL
// is configured. Keys written with a TTL expire like their Redis
// counterparts; expired keys are swept at most once a minute.
type MemoryCounterStore struct {
	mu        sync.Mutex
	counts    map[string]int64
	sets      map[string]map[string]struct{}
	expires   map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counts:  make(map[string]int64),
		sets:    make(map[string]map[string]struct{}),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

var _ interfaces.CounterStore = (*MemoryCounterStore)(nil)

func (m *MemoryCounterStore) MarkSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	if _, ok := m.counts[key]; ok && m.liveLocked(key) {
		return false, nil
	}
	m.counts[key] = 1
	m.expireLocked(key, ttl)
	return true, nil
}

func (m *MemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.liveLocked(key)
	m.counts[key]++
	m.expireLocked(key, ttl)
	return nil
}

func (m *MemoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked(key) {
		return 0, nil
	}
	return m.counts[key], nil
}

func (m *MemoryCounterStore) AddMember(_ context.Context, set, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.liveLocked(set)
	s := m.sets[set]
	if s == nil {
		s = make(map[string]struct{})
		m.sets[set] = s
	}
	s[member] = struct{}{}
	m.expireLocked(set, ttl)
	return nil
}

func (m *MemoryCounterStore) RemoveMember(_ context.Context, set, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[set], member)
	return nil
}

func (m *MemoryCounterStore) Cardinality(_ context.Context, set string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked(set) {
		return 0, nil
	}
	return int64(len(m.sets[set])), nil
}

// size is the number of keys held, expired or not.
func (m *MemoryCounterStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counts) + len(m.sets)
}

func (m *MemoryCounterStore) expireLocked(key string, ttl time.Duration) {
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	}
}

// liveLocked drops key if it has expired and reports whether it survived.
func (m *MemoryCounterStore) liveLocked(key string) bool {
	at, ok := m.expires[key]
	if !ok || m.now().Before(at) {
		return true
	}
	m.dropLocked(key)
	return false
}

func (m *MemoryCounterStore) dropLocked(key string) {
	delete(m.counts, key)
	delete(m.sets, key)
	delete(m.expires, key)
}

func (m *MemoryCounterStore) sweepLocked() {
	now := m.now()
	if now.Sub(m.lastSweep) < time.Minute {
		return
	}
	m.lastSweep = now
	for key, at := range m.expires {
		if !now.Before(at) {
			m.dropLocked(key)
		}
	}
}
