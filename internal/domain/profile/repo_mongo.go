package profile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type doctorRepoMongo struct{ coll *mongo.Collection }

func NewDoctorRepoMongo(database *mongo.Database) DoctorRepository {
	return &doctorRepoMongo{coll: database.Collection("doctors")}
}

func (r *doctorRepoMongo) Get(ctx context.Context, id string) (*Doctor, error) {
	var d Doctor
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find doctor: %w", err)
	}
	return &d, nil
}

func (r *doctorRepoMongo) GetMany(ctx context.Context, ids []string) ([]*Doctor, error) {
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find doctors: %w", err)
	}
	var items []*Doctor
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode doctors: %w", err)
	}
	return items, nil
}

func (r *doctorRepoMongo) Upsert(ctx context.Context, d *Doctor) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"fullName":  d.FullName,
			"email":     d.Email,
			"phone":     d.Phone,
			"specialty": d.Specialty,
			"bio":       d.Bio,
			"fee":       d.Fee,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	var stored Doctor
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": d.ID}, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&stored)
	if err != nil {
		return fmt.Errorf("upsert doctor: %w", err)
	}
	d.CreatedAt = stored.CreatedAt
	d.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *doctorRepoMongo) List(ctx context.Context, specialty string, limit, offset int) ([]*Doctor, int, error) {
	filter := bson.M{}
	if specialty != "" {
		filter["specialty"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(specialty) + "$", Options: "i"}
	}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "fullName", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find doctors: %w", err)
	}
	var items []*Doctor
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("decode doctors: %w", err)
	}
	return items, int(total), nil
}

type patientRepoMongo struct{ coll *mongo.Collection }

func NewPatientRepoMongo(database *mongo.Database) PatientRepository {
	return &patientRepoMongo{coll: database.Collection("patients")}
}

func (r *patientRepoMongo) Get(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return &p, nil
}

func (r *patientRepoMongo) GetMany(ctx context.Context, ids []string) ([]*Patient, error) {
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	var items []*Patient
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}
	return items, nil
}

func (r *patientRepoMongo) Upsert(ctx context.Context, p *Patient) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"fullName":    p.FullName,
			"email":       p.Email,
			"phone":       p.Phone,
			"dateOfBirth": p.DateOfBirth,
			"gender":      p.Gender,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	var stored Patient
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&stored)
	if err != nil {
		return fmt.Errorf("upsert patient: %w", err)
	}
	p.CreatedAt = stored.CreatedAt
	p.UpdatedAt = stored.UpdatedAt
	return nil
}
