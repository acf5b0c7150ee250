package medicalrecord

import "context"

type Repository interface {
	Create(ctx context.Context, r *Record) error
	// ListByUser returns a page of records newest first. An empty docType matches all.
	ListByUser(ctx context.Context, userID, docType string, limit, offset int) ([]*Record, int, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}
