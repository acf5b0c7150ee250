package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/db"
)

// NotifyChannel is the channel the appointments trigger notifies on.
const NotifyChannel = "appointment_changes"

type PGStore struct {
	pool    *pgxpool.Pool
	dialect goqu.DialectWrapper
	subs    *broadcaster
	logger  zerolog.Logger
}

func NewPGStore(pool *pgxpool.Pool, logger zerolog.Logger) *PGStore {
	return &PGStore{
		pool:    pool,
		dialect: goqu.Dialect("postgres"),
		subs:    newBroadcaster(),
		logger:  logger.With().Str("component", "appointment-store").Logger(),
	}
}

func (s *PGStore) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

const apptCols = `id, doctor_id, patient_id, appointment_date, chief_complaint, type, status, fee,
	attached_document_url, attached_document_name, room_id, patient_joined, doctor_joined,
	symptoms, diagnosis, treatment_plan, follow_up_advice, revision, created_at, updated_at`

var apptColumns = []interface{}{
	"id", "doctor_id", "patient_id", "appointment_date", "chief_complaint", "type", "status", "fee",
	"attached_document_url", "attached_document_name", "room_id", "patient_joined", "doctor_joined",
	"symptoms", "diagnosis", "treatment_plan", "follow_up_advice", "revision", "created_at", "updated_at",
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var r record
	err := row.Scan(&r.ID, &r.DoctorID, &r.PatientID, &r.AppointmentDate, &r.ChiefComplaint,
		&r.Type, &r.Status, &r.Fee, &r.AttachedDocumentURL, &r.AttachedDocumentName, &r.RoomID,
		&r.PatientJoined, &r.DoctorJoined, &r.Symptoms, &r.Diagnosis, &r.TreatmentPlan,
		&r.FollowUpAdvice, &r.Revision, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.toAppointment()
}

func (s *PGStore) Create(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	r := a.toRecord()
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, appointment_date, chief_complaint, type,
			status, fee, attached_document_url, attached_document_name, room_id, patient_joined,
			doctor_joined, symptoms, diagnosis, treatment_plan, follow_up_advice)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING revision, created_at, updated_at`,
		r.ID, r.DoctorID, r.PatientID, r.AppointmentDate, r.ChiefComplaint, r.Type,
		r.Status, r.Fee, r.AttachedDocumentURL, r.AttachedDocumentName, r.RoomID, r.PatientJoined,
		r.DoctorJoined, r.Symptoms, r.Diagnosis, r.TreatmentPlan, r.FollowUpAdvice,
	).Scan(&a.Revision, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Appointment, error) {
	return scanAppointment(s.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (s *PGStore) Update(ctx context.Context, a *Appointment) error {
	r := a.toRecord()
	err := s.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET appointment_date=$2, chief_complaint=$3, type=$4, status=$5, fee=$6,
			attached_document_url=$7, attached_document_name=$8, room_id=$9, patient_joined=$10,
			doctor_joined=$11, symptoms=$12, diagnosis=$13, treatment_plan=$14, follow_up_advice=$15,
			revision = revision + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING revision, created_at, updated_at`,
		r.ID, r.AppointmentDate, r.ChiefComplaint, r.Type, r.Status, r.Fee,
		r.AttachedDocumentURL, r.AttachedDocumentName, r.RoomID, r.PatientJoined,
		r.DoctorJoined, r.Symptoms, r.Diagnosis, r.TreatmentPlan, r.FollowUpAdvice,
	).Scan(&a.Revision, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

// listQuery builds the SELECT for f.
func (s *PGStore) listQuery(f Filter) (string, []interface{}, error) {
	q := s.dialect.From("appointments").Select(apptColumns...).Prepared(true)

	where := goqu.Ex{}
	if f.DoctorID != "" {
		where["doctor_id"] = f.DoctorID
	}
	if f.PatientID != "" {
		where["patient_id"] = f.PatientID
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where["status"] = statuses
	}
	if len(where) > 0 {
		q = q.Where(where)
	}
	if f.From != nil {
		q = q.Where(goqu.C("appointment_date").Gte(*f.From))
	}
	if f.To != nil {
		q = q.Where(goqu.C("appointment_date").Lt(*f.To))
	}

	if f.Order == OrderDateDesc {
		q = q.Order(goqu.C("appointment_date").Desc(), goqu.C("id").Asc())
	} else {
		q = q.Order(goqu.C("appointment_date").Asc(), goqu.C("id").Asc())
	}
	if f.Limit > 0 {
		q = q.Limit(uint(f.Limit))
	}
	return q.ToSQL()
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]*Appointment, error) {
	query, args, err := s.listQuery(f)
	if err != nil {
		return nil, fmt.Errorf("build appointment query: %w", err)
	}
	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *PGStore) Watch(ctx context.Context, f Filter) (<-chan Snapshot, error) {
	signal := s.subs.subscribe(ctx)
	return watch(ctx, func(ctx context.Context) ([]*Appointment, error) {
		return s.List(ctx, f)
	}, signal, s.logger)
}

// Listen forwards appointment change notifications to every watcher until ctx
// is done. Live queries only refresh while it runs.
func (s *PGStore) Listen(ctx context.Context) error {
	payloads, err := db.Listen(ctx, s.pool, NotifyChannel, s.logger)
	if err != nil {
		return err
	}
	for range payloads {
		s.subs.notify()
	}
	return ctx.Err()
}
