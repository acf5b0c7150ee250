package profile

import (
	"context"
	"fmt"
	"strings"
)

type Service struct {
	doctors  DoctorRepository
	patients PatientRepository
}

func NewService(doctors DoctorRepository, patients PatientRepository) *Service {
	return &Service{doctors: doctors, patients: patients}
}

func (s *Service) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	return s.doctors.Get(ctx, id)
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.patients.Get(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, specialty string, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, strings.TrimSpace(specialty), limit, offset)
}

// UpsertDoctor creates or replaces the doctor's profile.
func (s *Service) UpsertDoctor(ctx context.Context, d *Doctor) error {
	d.FullName = strings.TrimSpace(d.FullName)
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if d.FullName == "" {
		return fmt.Errorf("%w: fullName is required", ErrValidation)
	}
	if d.Fee != nil && *d.Fee < 0 {
		return fmt.Errorf("%w: fee must not be negative", ErrValidation)
	}
	return s.doctors.Upsert(ctx, d)
}

// UpsertPatient creates or replaces the patient's profile.
func (s *Service) UpsertPatient(ctx context.Context, p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	if p.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if p.FullName == "" {
		return fmt.Errorf("%w: fullName is required", ErrValidation)
	}
	return s.patients.Upsert(ctx, p)
}
