package medicalrecord

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type repoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(database *mongo.Database) Repository {
	return &repoMongo{coll: database.Collection("medicalRecords")}
}

func (r *repoMongo) Create(ctx context.Context, rec *Record) error {
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert medical record: %w", err)
	}
	return nil
}

func (r *repoMongo) ListByUser(ctx context.Context, userID, docType string, limit, offset int) ([]*Record, int, error) {
	filter := bson.M{"userId": userID}
	if docType != "" {
		filter["documentType"] = docType
	}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count medical records: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find medical records: %w", err)
	}
	var items []*Record
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("decode medical records: %w", err)
	}
	return items, int(total), nil
}

func (r *repoMongo) CountByUser(ctx context.Context, userID string) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"userId": userID})
	return int(n), err
}
