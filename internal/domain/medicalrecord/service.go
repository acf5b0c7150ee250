package medicalrecord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/blobstore"
)

type Service struct {
	repo  Repository
	blobs blobstore.Store
	now   func() time.Time
}

func NewService(repo Repository, blobs blobstore.Store) *Service {
	return &Service{repo: repo, blobs: blobs, now: time.Now}
}

// Append stores a new record. The id and timestamp are assigned when empty.
func (s *Service) Append(ctx context.Context, r *Record) error {
	if r.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if strings.TrimSpace(r.DocumentType) == "" {
		return fmt.Errorf("%w: documentType is required", ErrValidation)
	}
	if r.FileName == "" || r.FileURL == "" {
		return fmt.Errorf("%w: fileName and fileUrl are required", ErrValidation)
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now().UTC()
	}
	return s.repo.Create(ctx, r)
}

func (s *Service) ListByUser(ctx context.Context, userID, docType string, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByUser(ctx, userID, strings.TrimSpace(docType), limit, offset)
}

func (s *Service) HasDocuments(ctx context.Context, userID string) (bool, error) {
	n, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UploadInput describes a document upload on behalf of UserID.
type UploadInput struct {
	UserID       string
	UploadedBy   string
	DocumentType string
	FileName     string
	ContentType  string
	Content      io.Reader
}

// Upload stores the file and appends a record pointing at it. When the record
// cannot be written the stored file is removed again.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Record, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("%w: document storage is not configured", ErrValidation)
	}
	if in.DocumentType == "" {
		return nil, fmt.Errorf("%w: documentType is required", ErrValidation)
	}
	key := blobstore.ObjectKey("medical-records", in.UserID, in.FileName, s.now())
	obj, err := s.blobs.Upload(ctx, key, in.FileName, in.ContentType, in.Content)
	if err != nil {
		if isClientBlobError(err) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, fmt.Errorf("upload document: %w", err)
	}

	rec := &Record{
		UserID:       in.UserID,
		DocumentType: in.DocumentType,
		FileName:     in.FileName,
		FileURL:      obj.URL,
		UploadedBy:   in.UploadedBy,
	}
	if err := s.Append(ctx, rec); err != nil {
		_ = s.blobs.Delete(context.WithoutCancel(ctx), key)
		return nil, err
	}
	return rec, nil
}

func isClientBlobError(err error) bool {
	return errors.Is(err, blobstore.ErrFileTooLarge) ||
		errors.Is(err, blobstore.ErrInvalidContentType) ||
		errors.Is(err, blobstore.ErrMissingFileName) ||
		errors.Is(err, blobstore.ErrInvalidKey)
}
