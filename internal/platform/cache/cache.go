// Package cache provides a small key/value cache abstraction with Redis and
// in-memory backends.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Provider defines the interface for caching operations.
type Provider interface {
	// Get retrieves a value from cache. It returns ErrMiss when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache.
	Exists(ctx context.Context, key string) (bool, error)
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

type entry struct {
	data      []byte
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is a thread-safe in-process Provider with lazy expiration.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if e.expired(m.now()) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, ErrMiss
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)
	e := &entry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	return err == nil, err
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
