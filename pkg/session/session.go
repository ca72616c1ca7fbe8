package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sessions is a Redis-backed session storage. Each visitor session gets a
// Store scoped to its session ID; values expire after the configured
// session duration.
type Sessions struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessions(addr, password string, db int, ttl time.Duration) (*Sessions, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Sessions{
		client: client,
		ttl:    ttl,
	}, nil
}

// Scope returns the key-value store for one visitor session.
func (s *Sessions) Scope(sessionID string) *Store {
	return &Store{
		client: s.client,
		ttl:    s.ttl,
		prefix: fmt.Sprintf("sess:%s:", sessionID),
	}
}

// Close closes the Redis connection.
func (s *Sessions) Close() error {
	return s.client.Close()
}

// Store reads and writes one session's values.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Get returns the stored value, empty on a miss.
func (st *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := st.client.Get(ctx, st.prefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session get error: %w", err)
	}
	return val, nil
}

// Set stores a value with the session-duration expiry.
func (st *Store) Set(ctx context.Context, key, value string) error {
	if err := st.client.Set(ctx, st.prefix+key, value, st.ttl).Err(); err != nil {
		return fmt.Errorf("session set error: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory session store for tests and for running
// without Redis.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
