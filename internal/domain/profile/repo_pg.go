package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/db"
	"github.com/rajaaravindrakoti2006-hash/doctor/pkg/pagination"
)

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorCols = `id, full_name, email, phone, specialty, bio, fee, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FullName, &d.Email, &d.Phone, &d.Specialty, &d.Bio, &d.Fee,
		&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (r *doctorRepoPG) Get(ctx context.Context, id string) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *doctorRepoPG) GetMany(ctx context.Context, ids []string) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query doctors: %w", err)
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *doctorRepoPG) Upsert(ctx context.Context, d *Doctor) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (id, full_name, email, phone, specialty, bio, fee)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET full_name=EXCLUDED.full_name, email=EXCLUDED.email,
			phone=EXCLUDED.phone, specialty=EXCLUDED.specialty, bio=EXCLUDED.bio, fee=EXCLUDED.fee,
			updated_at=NOW()
		RETURNING created_at, updated_at`,
		d.ID, d.FullName, d.Email, d.Phone, d.Specialty, d.Bio, d.Fee,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) List(ctx context.Context, specialty string, limit, offset int) ([]*Doctor, int, error) {
	where := `WHERE 1=1`
	var args []interface{}
	if specialty != "" {
		where += ` AND LOWER(specialty) = LOWER($1)`
		args = append(args, specialty)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := pagination.Params{Limit: limit, Offset: offset}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctors `+where+` ORDER BY full_name, id `+page.SQL(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, full_name, email, phone, date_of_birth, gender, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.Phone, &p.DateOfBirth, &p.Gender,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *patientRepoPG) Get(ctx context.Context, id string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) GetMany(ctx context.Context, ids []string) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) Upsert(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, full_name, email, phone, date_of_birth, gender)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET full_name=EXCLUDED.full_name, email=EXCLUDED.email,
			phone=EXCLUDED.phone, date_of_birth=EXCLUDED.date_of_birth, gender=EXCLUDED.gender,
			updated_at=NOW()
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, p.Email, p.Phone, p.DateOfBirth, p.Gender,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}
