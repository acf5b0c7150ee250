package profile

import "context"

type DoctorRepository interface {
	Get(ctx context.Context, id string) (*Doctor, error)
	GetMany(ctx context.Context, ids []string) ([]*Doctor, error)
	Upsert(ctx context.Context, d *Doctor) error
	// List returns doctors ordered by name. An empty specialty matches all.
	List(ctx context.Context, specialty string, limit, offset int) ([]*Doctor, int, error)
}

type PatientRepository interface {
	Get(ctx context.Context, id string) (*Patient, error)
	GetMany(ctx context.Context, ids []string) ([]*Patient, error)
	Upsert(ctx context.Context, p *Patient) error
}
