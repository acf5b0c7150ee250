package profile

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rajaaravindrakoti2006-hash/doctor/pkg/pagination"
)

type doctorMemoryRepo struct {
	mu      sync.RWMutex
	doctors map[string]*Doctor
}

func NewDoctorMemoryRepo() DoctorRepository {
	return &doctorMemoryRepo{doctors: make(map[string]*Doctor)}
}

func (m *doctorMemoryRepo) Get(_ context.Context, id string) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *doctorMemoryRepo) GetMany(_ context.Context, ids []string) ([]*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Doctor
	for _, id := range ids {
		if d, ok := m.doctors[id]; ok {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *doctorMemoryRepo) Upsert(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.doctors[d.ID]; ok {
		d.CreatedAt = existing.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *doctorMemoryRepo) List(_ context.Context, specialty string, limit, offset int) ([]*Doctor, int, error) {
	m.mu.RLock()
	var items []*Doctor
	for _, d := range m.doctors {
		if specialty != "" && !strings.EqualFold(d.Specialty, specialty) {
			continue
		}
		cp := *d
		items = append(items, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].FullName != items[j].FullName {
			return items[i].FullName < items[j].FullName
		}
		return items[i].ID < items[j].ID
	})
	return pagination.Slice(items, pagination.Params{Limit: limit, Offset: offset}), len(items), nil
}

type patientMemoryRepo struct {
	mu       sync.RWMutex
	patients map[string]*Patient
}

func NewPatientMemoryRepo() PatientRepository {
	return &patientMemoryRepo{patients: make(map[string]*Patient)}
}

func (m *patientMemoryRepo) Get(_ context.Context, id string) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *patientMemoryRepo) GetMany(_ context.Context, ids []string) ([]*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Patient
	for _, id := range ids {
		if p, ok := m.patients[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *patientMemoryRepo) Upsert(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.patients[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}
