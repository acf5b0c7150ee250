package appointment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/domain/medicalrecord"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/blobstore"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/cache"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/websocket"
)

var ErrValidation = errors.New("invalid appointment")

// EventUpdated is published to the appointment topic after every write.
const EventUpdated = "appointment.updated"

const (
	placeholderDoctor  = "Unknown doctor"
	placeholderPatient = "Unknown patient"
)

// AppointmentTopic is the websocket topic carrying updates of one appointment.
func AppointmentTopic(id string) string {
	return "appointment/" + id
}

// Caller is the authenticated user performing an operation.
type Caller struct {
	UserID string
	Actor  Actor
}

func (c Caller) isAdmin() bool {
	return c.Actor == ActorAdmin
}

// Directory resolves display names of appointment parties. Ids without a
// profile are left out of the result.
type Directory interface {
	DoctorNames(ctx context.Context, ids []string) (map[string]string, error)
	PatientNames(ctx context.Context, ids []string) (map[string]string, error)
}

// RecordAppender stores the medical record of a document attached at booking.
type RecordAppender interface {
	Append(ctx context.Context, r *medicalrecord.Record) error
}

// TxRunner groups the booking writes in one transaction when the backend
// supports it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noTx struct{}

func (noTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Lister runs a filtered query. Both Store and Service satisfy it.
type Lister interface {
	List(ctx context.Context, f Filter) ([]*Appointment, error)
}

// Service is the only mutation surface for appointments. It enforces the
// lifecycle, resolves counterparts on reads, and keeps the query cache and
// websocket subscribers in step with writes.
type Service struct {
	store     Store
	resolver  resolver
	blobs     blobstore.Store
	records   RecordAppender
	tx        TxRunner
	cache     *queryCache
	publisher websocket.EventPublisher
	now       func() time.Time
	logger    zerolog.Logger
}

type Option func(*Service)

// WithBlobStore enables document attachments at booking.
func WithBlobStore(b blobstore.Store) Option {
	return func(s *Service) { s.blobs = b }
}

func WithRecords(r RecordAppender) Option {
	return func(s *Service) { s.records = r }
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

// WithQueryCache memoises list queries in provider for ttl.
func WithQueryCache(provider cache.Provider, ttl time.Duration) Option {
	return func(s *Service) { s.cache = newQueryCache(provider, ttl, s.logger) }
}

func WithPublisher(p websocket.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, dir Directory, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tx:     noTx{},
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = resolver{dir: dir, logger: s.logger}
	if s.cache != nil {
		s.cache.logger = s.logger
	}
	return s
}

// Document is a file attached to a booking.
type Document struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

type BookInput struct {
	DoctorID       string
	PatientID      string
	Date           time.Time
	ChiefComplaint string
	Type           Type
	Fee            *float64
	Document       *Document
}

func (in *BookInput) validate(now time.Time) error {
	var missing []string
	if in.DoctorID == "" {
		missing = append(missing, "doctorId")
	}
	if in.PatientID == "" {
		missing = append(missing, "patientId")
	}
	if in.Date.IsZero() {
		missing = append(missing, "appointmentDate")
	}
	if strings.TrimSpace(in.ChiefComplaint) == "" {
		missing = append(missing, "chiefComplaint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	if in.Type == "" {
		in.Type = TypeVideoCall
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrValidation, in.Type)
	}
	if in.Date.Before(now) {
		return fmt.Errorf("%w: appointmentDate is in the past", ErrValidation)
	}
	if in.Fee != nil && *in.Fee < 0 {
		return fmt.Errorf("%w: fee must not be negative", ErrValidation)
	}
	if in.DoctorID == in.PatientID {
		return fmt.Errorf("%w: doctor and patient must differ", ErrValidation)
	}
	return nil
}

// Book creates a pending appointment. An attached document is uploaded first;
// if the upload fails nothing is written.
func (s *Service) Book(ctx context.Context, caller Caller, in BookInput) (*Appointment, error) {
	if _, err := Next("", ActionBook, caller.Actor); err != nil {
		return nil, err
	}
	if in.PatientID == "" {
		in.PatientID = caller.UserID
	}
	if !caller.isAdmin() && in.PatientID != caller.UserID {
		return nil, fmt.Errorf("%w: cannot book for another patient", ErrForbidden)
	}
	now := s.now()
	if err := in.validate(now); err != nil {
		return nil, err
	}

	a := &Appointment{
		ID:             uuid.New().String(),
		DoctorID:       in.DoctorID,
		PatientID:      in.PatientID,
		Date:           in.Date.UTC(),
		ChiefComplaint: strings.TrimSpace(in.ChiefComplaint),
		Type:           in.Type,
		Fee:            in.Fee,
		State:          Pending{},
	}

	var uploaded *blobstore.Object
	if in.Document != nil {
		obj, err := s.upload(ctx, a, in.Document, now)
		if err != nil {
			return nil, err
		}
		uploaded = obj
		a.Attachment = &Attachment{URL: obj.URL, Name: in.Document.FileName}
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, a); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		if uploaded == nil || s.records == nil {
			return nil
		}
		return s.records.Append(ctx, &medicalrecord.Record{
			UserID:        a.PatientID,
			DocumentType:  medicalrecord.DocTypePreConsultation,
			FileName:      in.Document.FileName,
			FileURL:       uploaded.URL,
			AppointmentID: a.ID,
			UploadedBy:    caller.UserID,
		})
	})
	if err != nil {
		if uploaded != nil {
			if derr := s.blobs.Delete(context.WithoutCancel(ctx), uploaded.Key); derr != nil {
				s.logger.Warn().Err(derr).Str("key", uploaded.Key).Msg("remove orphaned attachment")
			}
		}
		return nil, err
	}

	s.logger.Info().Str("appointment_id", a.ID).Str("doctor_id", a.DoctorID).Msg("appointment booked")
	s.afterWrite(ctx, a)
	return a, nil
}

func (s *Service) upload(ctx context.Context, a *Appointment, doc *Document, now time.Time) (*blobstore.Object, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("%w: document storage is not configured", ErrValidation)
	}
	key := blobstore.ObjectKey("appointments", a.PatientID, doc.FileName, now)
	obj, err := s.blobs.Upload(ctx, key, doc.FileName, doc.ContentType, doc.Content)
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) || errors.Is(err, blobstore.ErrInvalidContentType) ||
			errors.Is(err, blobstore.ErrMissingFileName) || errors.Is(err, blobstore.ErrInvalidKey) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	return obj, nil
}

// authorize checks that caller is the party the action belongs to.
func authorize(caller Caller, a *Appointment, action Action) error {
	if caller.isAdmin() {
		return nil
	}
	t, ok := transitions[action]
	if !ok {
		return nil
	}
	switch t.actor {
	case ActorDoctor:
		if caller.UserID != a.DoctorID {
			return fmt.Errorf("%w: not the doctor of this appointment", ErrForbidden)
		}
	case ActorPatient:
		if caller.UserID != a.PatientID {
			return fmt.Errorf("%w: not the patient of this appointment", ErrForbidden)
		}
	}
	return nil
}

// apply loads id, checks the action, and writes the result of mutate. The
// stored appointment is untouched when any step fails.
func (s *Service) apply(ctx context.Context, caller Caller, id string, action Action, mutate func(a *Appointment, to Status) error) (*Appointment, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.isAdmin() && !current.Involves(caller.UserID) {
		return nil, ErrNotFound
	}
	if err := authorize(caller, current, action); err != nil {
		return nil, err
	}
	to, err := Next(current.Status(), action, caller.Actor)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := mutate(next, to); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("update appointment %s: %w", id, err)
	}

	s.logger.Info().
		Str("appointment_id", id).
		Str("action", string(action)).
		Str("from", string(current.Status())).
		Str("to", string(next.Status())).
		Msg("appointment transition")
	s.afterWrite(ctx, next)
	return next, nil
}

func (s *Service) Accept(ctx context.Context, caller Caller, id string) (*Appointment, error) {
	return s.apply(ctx, caller, id, ActionAccept, func(a *Appointment, _ Status) error {
		a.State = Confirmed{}
		return nil
	})
}

func (s *Service) Decline(ctx context.Context, caller Caller, id string) (*Appointment, error) {
	return s.apply(ctx, caller, id, ActionDecline, func(a *Appointment, _ Status) error {
		a.State = Declined{}
		return nil
	})
}

// StartCall moves a confirmed appointment into a call whose room is the
// appointment id.
func (s *Service) StartCall(ctx context.Context, caller Caller, id string) (*Appointment, error) {
	return s.AssignCallRoom(ctx, caller, id, id)
}

func (s *Service) AssignCallRoom(ctx context.Context, caller Caller, id, roomID string) (*Appointment, error) {
	if roomID == "" {
		roomID = id
	}
	return s.apply(ctx, caller, id, ActionStartCall, func(a *Appointment, _ Status) error {
		a.State = InProgress{RoomID: roomID}
		return nil
	})
}

func (s *Service) Conclude(ctx context.Context, caller Caller, id string, outcome Outcome) (*Appointment, error) {
	return s.apply(ctx, caller, id, ActionConclude, func(a *Appointment, _ Status) error {
		room, _ := a.RoomID()
		a.State = Completed{RoomID: room, Outcome: outcome}
		return nil
	})
}

// Reschedule overwrites the date and returns the appointment to pending for
// the doctor to accept again.
func (s *Service) Reschedule(ctx context.Context, caller Caller, id string, date time.Time) (*Appointment, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrValidation)
	}
	if date.Before(s.now()) {
		return nil, fmt.Errorf("%w: date is in the past", ErrValidation)
	}
	return s.apply(ctx, caller, id, ActionReschedule, func(a *Appointment, _ Status) error {
		a.Date = date.UTC()
		a.State = Pending{}
		a.PatientJoined = false
		a.DoctorJoined = false
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, caller Caller, id string) (*Appointment, error) {
	return s.apply(ctx, caller, id, ActionCancel, func(a *Appointment, _ Status) error {
		a.State = Canceled{}
		return nil
	})
}

// SetStatus moves id to status through the action that leads there. Call
// rooms default to the appointment id and outcomes are left empty. Pending is
// refused because only Reschedule can supply the new date it needs.
func (s *Service) SetStatus(ctx context.Context, caller Caller, id string, status Status) (*Appointment, error) {
	action, err := ActionFor(status)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, caller, id, action, func(a *Appointment, to Status) error {
		switch to {
		case StatusConfirmed:
			a.State = Confirmed{}
		case StatusDeclined:
			a.State = Declined{}
		case StatusCanceled:
			a.State = Canceled{}
		case StatusInProgress:
			a.State = InProgress{RoomID: a.ID}
		case StatusCompleted:
			room, _ := a.RoomID()
			a.State = Completed{RoomID: room}
		}
		return nil
	})
}

// MarkJoined records that the caller entered the call of an active appointment.
func (s *Service) MarkJoined(ctx context.Context, caller Caller, id string) (*Appointment, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Involves(caller.UserID) {
		if caller.isAdmin() {
			return nil, fmt.Errorf("%w: only a party can join the call", ErrForbidden)
		}
		return nil, ErrNotFound
	}
	if !current.Status().Active() {
		return nil, fmt.Errorf("%w: cannot join an appointment that is %s", ErrInvalidTransition, current.Status())
	}

	next := current.Clone()
	if caller.UserID == next.PatientID {
		next.PatientJoined = true
	} else {
		next.DoctorJoined = true
	}
	if next.PatientJoined == current.PatientJoined && next.DoctorJoined == current.DoctorJoined {
		return current, nil
	}
	if err := s.store.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("update appointment %s: %w", id, err)
	}
	s.afterWrite(ctx, next)
	return next, nil
}

// afterWrite invalidates cached lists and tells subscribers of the
// appointment topic about the new state. Neither step fails the write.
func (s *Service) afterWrite(ctx context.Context, a *Appointment) {
	if s.cache != nil {
		s.cache.invalidate(ctx, a)
	}
	if s.publisher == nil {
		return
	}
	event, err := websocket.NewEvent(EventUpdated, AppointmentTopic(a.ID), a.ID, a)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal appointment event")
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID).Msg("publish appointment event")
	}
}

// Get returns one appointment seen by caller.
func (s *Service) Get(ctx context.Context, caller Caller, id string) (*View, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.isAdmin() && !a.Involves(caller.UserID) {
		return nil, ErrNotFound
	}
	viewer := ActorPatient
	if caller.UserID == a.DoctorID {
		viewer = ActorDoctor
	}
	views := s.views(ctx, viewer, []*Appointment{a})
	return &views[0], nil
}

// List runs f through the query cache.
func (s *Service) List(ctx context.Context, f Filter) ([]*Appointment, error) {
	var key string
	if s.cache != nil {
		var items []*Appointment
		var hit bool
		// The key is fixed before reading so a write that lands during the
		// read leaves this result under the superseded generation.
		if key, items, hit = s.cache.lookup(ctx, f); hit {
			return items, nil
		}
	}
	items, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if s.cache != nil {
		s.cache.put(ctx, key, items)
	}
	return items, nil
}

// Query narrows a party's appointments. Bucket is applied after the store
// query because it depends on the current time.
type Query struct {
	Statuses []Status
	From     *time.Time
	To       *time.Time
	Bucket   Bucket
	Order    Order
	Limit    int
}

func (q Query) filter() Filter {
	f := Filter{Statuses: q.Statuses, From: q.From, To: q.To, Order: q.Order}
	if q.Bucket == "" {
		f.Limit = q.Limit
	}
	return f
}

func (s *Service) ListByDoctor(ctx context.Context, caller Caller, doctorID string, q Query) ([]View, error) {
	if !caller.isAdmin() && caller.UserID != doctorID {
		return nil, fmt.Errorf("%w: cannot list another doctor's appointments", ErrForbidden)
	}
	f := q.filter()
	f.DoctorID = doctorID
	return s.listViews(ctx, ActorDoctor, f, q)
}

func (s *Service) ListByPatient(ctx context.Context, caller Caller, patientID string, q Query) ([]View, error) {
	if !caller.isAdmin() && caller.UserID != patientID {
		return nil, fmt.Errorf("%w: cannot list another patient's appointments", ErrForbidden)
	}
	f := q.filter()
	f.PatientID = patientID
	return s.listViews(ctx, ActorPatient, f, q)
}

func (s *Service) listViews(ctx context.Context, viewer Actor, f Filter, q Query) ([]View, error) {
	items, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if q.Bucket != "" {
		now := s.now()
		kept := items[:0:0]
		for _, a := range items {
			if a.Bucket(now) == q.Bucket {
				kept = append(kept, a)
			}
		}
		items = kept
		if q.Limit > 0 && len(items) > q.Limit {
			items = items[:q.Limit]
		}
	}
	return s.views(ctx, viewer, items), nil
}

// Subscribe opens a live query on f.
func (s *Service) Subscribe(ctx context.Context, f Filter) (<-chan Snapshot, error) {
	return s.store.Watch(ctx, f)
}

// CanView authorizes websocket subscriptions: users may follow their own
// topic and the topics of appointments they take part in.
func (s *Service) CanView(ctx context.Context, userID, topic string) bool {
	if topic == websocket.UserTopic(userID) {
		return true
	}
	id, ok := strings.CutPrefix(topic, "appointment/")
	if !ok || id == "" {
		return false
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return false
	}
	return a.Involves(userID)
}

func (s *Service) views(ctx context.Context, viewer Actor, items []*Appointment) []View {
	parties := s.resolver.counterparts(ctx, viewer, items)
	now := s.now()
	views := make([]View, len(items))
	for i, a := range items {
		views[i] = View{Appointment: a, Counterpart: parties[i], Bucket: a.Bucket(now)}
	}
	return views
}

// resolver pairs appointments with the profile of the other party.
type resolver struct {
	dir    Directory
	logger zerolog.Logger
}

// counterparts returns, for each item, the party opposite viewer. Lookup
// failures yield placeholders rather than errors.
func (r resolver) counterparts(ctx context.Context, viewer Actor, items []*Appointment) []Party {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, a := range items {
		id := counterpartID(a, viewer)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	var names map[string]string
	if r.dir != nil && len(ids) > 0 {
		var err error
		if viewer == ActorDoctor {
			names, err = r.dir.PatientNames(ctx, ids)
		} else {
			names, err = r.dir.DoctorNames(ctx, ids)
		}
		if err != nil {
			r.logger.Warn().Err(err).Int("count", len(ids)).Msg("counterpart lookup failed")
			names = nil
		}
	}

	placeholder := placeholderDoctor
	if viewer == ActorDoctor {
		placeholder = placeholderPatient
	}
	parties := make([]Party, len(items))
	for i, a := range items {
		id := counterpartID(a, viewer)
		if name, ok := names[id]; ok {
			parties[i] = Party{ID: id, Name: name, Found: true}
		} else {
			parties[i] = Party{ID: id, Name: placeholder}
		}
	}
	return parties
}

func counterpartID(a *Appointment, viewer Actor) string {
	if viewer == ActorDoctor {
		return a.PatientID
	}
	return a.DoctorID
}
