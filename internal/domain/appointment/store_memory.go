package appointment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MemoryStore keeps appointments in process. It backs development runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]*Appointment
	subs   *broadcaster
	now    func() time.Time
	logger zerolog.Logger
}

func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		items:  make(map[string]*Appointment),
		subs:   newBroadcaster(),
		now:    time.Now,
		logger: logger.With().Str("component", "appointment-store").Logger(),
	}
}

func (s *MemoryStore) Create(_ context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := s.now().UTC()
	a.Revision = 1
	a.CreatedAt = now
	a.UpdatedAt = now

	s.mu.Lock()
	if _, exists := s.items[a.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("appointment %s already exists", a.ID)
	}
	s.items[a.ID] = a.Clone()
	s.mu.Unlock()

	s.subs.notify()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, a *Appointment) error {
	s.mu.Lock()
	existing, ok := s.items[a.ID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	a.Revision = existing.Revision + 1
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = s.now().UTC()
	s.items[a.ID] = a.Clone()
	s.mu.Unlock()

	s.subs.notify()
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*Appointment, error) {
	s.mu.RLock()
	items := make([]*Appointment, 0, len(s.items))
	for _, a := range s.items {
		if f.Matches(a) {
			items = append(items, a.Clone())
		}
	}
	s.mu.RUnlock()
	return f.sortAndLimit(items), nil
}

func (s *MemoryStore) Watch(ctx context.Context, f Filter) (<-chan Snapshot, error) {
	signal := s.subs.subscribe(ctx)
	return watch(ctx, func(ctx context.Context) ([]*Appointment, error) {
		return s.List(ctx, f)
	}, signal, s.logger)
}
