package medicalrecord

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/db"
	"github.com/rajaaravindrakoti2006-hash/doctor/pkg/pagination"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const recordCols = `id, user_id, document_type, file_name, file_url, appointment_id, uploaded_by, recorded_at`

func (r *repoPG) scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var appointmentID *string
	err := row.Scan(&rec.ID, &rec.UserID, &rec.DocumentType, &rec.FileName, &rec.FileURL,
		&appointmentID, &rec.UploadedBy, &rec.Timestamp)
	if appointmentID != nil {
		rec.AppointmentID = *appointmentID
	}
	return &rec, err
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	var appointmentID *string
	if rec.AppointmentID != "" {
		appointmentID = &rec.AppointmentID
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_records (id, user_id, document_type, file_name, file_url, appointment_id, uploaded_by, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.UserID, rec.DocumentType, rec.FileName, rec.FileURL, appointmentID, rec.UploadedBy, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert medical record: %w", err)
	}
	return nil
}

func (r *repoPG) ListByUser(ctx context.Context, userID, docType string, limit, offset int) ([]*Record, int, error) {
	where := `WHERE user_id = $1`
	args := []interface{}{userID}
	if docType != "" {
		where += ` AND document_type = $2`
		args = append(args, docType)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medical_records `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medical records: %w", err)
	}

	page := pagination.Params{Limit: limit, Offset: offset}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+recordCols+` FROM medical_records `+where+
		` ORDER BY recorded_at DESC, id `+page.SQL(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medical records: %w", err)
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medical_records WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}
