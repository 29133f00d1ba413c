package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a session id has no live record (never
// created, deleted after finalization, or reclaimed by TTL).
var ErrNotFound = errors.New("session not found")

// Store is the live session store. Many distinct sessions are accessed
// concurrently, but only the owning orchestrator ever writes a given id;
// last-writer-wins per key is the only guarantee assumed.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Put(ctx context.Context, id string, st *State, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory with lazy TTL expiry. Used
// in development and tests; production runs on the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok && !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var st State
	if err := json.Unmarshal(e.data, &st); err != nil {
		return nil, fmt.Errorf("memory store: decode session %s: %w", id, err)
	}
	return &st, nil
}

func (m *MemoryStore) Put(_ context.Context, id string, st *State, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("memory store: encode session %s: %w", id, err)
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[id] = memoryEntry{data: data, expiresAt: exp}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}
