package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "appointments"

// MongoStore keeps appointments as documents. Live queries are driven by a
// change stream, which requires a replica set.
type MongoStore struct {
	coll   *mongo.Collection
	subs   *broadcaster
	now    func() time.Time
	logger zerolog.Logger
}

func NewMongoStore(database *mongo.Database, logger zerolog.Logger) *MongoStore {
	return &MongoStore{
		coll:   database.Collection(mongoCollection),
		subs:   newBroadcaster(),
		now:    time.Now,
		logger: logger.With().Str("component", "appointment-store").Logger(),
	}
}

// EnsureIndexes creates the party/date indexes used by list queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "appointmentDate", Value: 1}}},
		{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "appointmentDate", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create appointment indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := s.now().UTC()
	a.Revision = 1
	a.CreatedAt = now
	a.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, a.toRecord()); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Appointment, error) {
	var r record
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find appointment: %w", err)
	}
	return r.toAppointment()
}

func (s *MongoStore) Update(ctx context.Context, a *Appointment) error {
	r := a.toRecord()
	set := bson.M{
		"appointmentDate": r.AppointmentDate,
		"chiefComplaint":  r.ChiefComplaint,
		"type":            r.Type,
		"status":          r.Status,
		"patientJoined":   r.PatientJoined,
		"doctorJoined":    r.DoctorJoined,
		"updatedAt":       s.now().UTC(),
	}
	unset := bson.M{}
	optional := map[string]interface{}{
		"fee":                  r.Fee,
		"attachedDocumentUrl":  r.AttachedDocumentURL,
		"attachedDocumentName": r.AttachedDocumentName,
		"zegoRoomId":           r.RoomID,
		"symptoms":             r.Symptoms,
		"diagnosis":            r.Diagnosis,
		"treatmentPlan":        r.TreatmentPlan,
		"followUpAdvice":       r.FollowUpAdvice,
	}
	for field, v := range optional {
		switch p := v.(type) {
		case *string:
			if p == nil {
				unset[field] = ""
				continue
			}
			set[field] = *p
		case *float64:
			if p == nil {
				unset[field] = ""
				continue
			}
			set[field] = *p
		}
	}

	update := bson.M{"$set": set, "$inc": bson.M{"revision": 1}}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var updated record
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": a.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	a.Revision = updated.Revision
	a.CreatedAt = updated.CreatedAt
	a.UpdatedAt = updated.UpdatedAt
	return nil
}

func mongoFilter(f Filter) bson.M {
	q := bson.M{}
	if f.DoctorID != "" {
		q["doctorId"] = f.DoctorID
	}
	if f.PatientID != "" {
		q["patientId"] = f.PatientID
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		q["status"] = bson.M{"$in": statuses}
	}
	date := bson.M{}
	if f.From != nil {
		date["$gte"] = *f.From
	}
	if f.To != nil {
		date["$lt"] = *f.To
	}
	if len(date) > 0 {
		q["appointmentDate"] = date
	}
	return q
}

func (s *MongoStore) List(ctx context.Context, f Filter) ([]*Appointment, error) {
	dir := 1
	if f.Order == OrderDateDesc {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "appointmentDate", Value: dir}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cur, err := s.coll.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find appointments: %w", err)
	}
	defer cur.Close(ctx)

	var items []*Appointment
	for cur.Next(ctx) {
		var r record
		if err := cur.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode appointment: %w", err)
		}
		a, err := r.toAppointment()
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, cur.Err()
}

func (s *MongoStore) Watch(ctx context.Context, f Filter) (<-chan Snapshot, error) {
	signal := s.subs.subscribe(ctx)
	return watch(ctx, func(ctx context.Context) ([]*Appointment, error) {
		return s.List(ctx, f)
	}, signal, s.logger)
}

// Listen tails the collection's change stream and wakes every watcher on each
// event until ctx is done. A broken stream is reopened after a short pause.
func (s *MongoStore) Listen(ctx context.Context) error {
	for {
		err := s.tail(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("change stream closed, reopening")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		// Resynchronise in case changes were missed while reconnecting.
		s.subs.notify()
	}
}

func (s *MongoStore) tail(ctx context.Context) error {
	stream, err := s.coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return fmt.Errorf("open change stream: %w", err)
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		s.subs.notify()
	}
	return stream.Err()
}
