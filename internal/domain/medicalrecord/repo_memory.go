package medicalrecord

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rajaaravindrakoti2006-hash/doctor/pkg/pagination"
)

type memoryRepo struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryRepo() Repository {
	return &memoryRepo{records: make(map[string]*Record)}
}

func (m *memoryRepo) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[r.ID]; exists {
		return fmt.Errorf("medical record %s already exists", r.ID)
	}
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *memoryRepo) ListByUser(_ context.Context, userID, docType string, limit, offset int) ([]*Record, int, error) {
	m.mu.RLock()
	var items []*Record
	for _, r := range m.records {
		if r.UserID != userID || (docType != "" && r.DocumentType != docType) {
			continue
		}
		cp := *r
		items = append(items, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].ID < items[j].ID
	})
	return pagination.Slice(items, pagination.Params{Limit: limit, Offset: offset}), len(items), nil
}

func (m *memoryRepo) CountByUser(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.records {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}
