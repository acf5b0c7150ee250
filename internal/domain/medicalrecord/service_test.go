package medicalrecord

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/blobstore"
)

type failingRepo struct {
	Repository
	err error
}

func (f failingRepo) Create(context.Context, *Record) error { return f.err }

func newTestService(t *testing.T) (*Service, *blobstore.MemoryStore) {
	t.Helper()
	blobs := blobstore.NewMemoryStore("http://localhost/files")
	svc := NewService(NewMemoryRepo(), blobs)
	return svc, blobs
}

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	svc, _ := newTestService(t)
	rec := &Record{UserID: "pat-1", DocumentType: "Lab Report", FileName: "cbc.pdf", FileURL: "http://x/cbc.pdf"}

	require.NoError(t, svc.Append(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestAppend_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	tests := []struct {
		name string
		rec  Record
	}{
		{"missing user", Record{DocumentType: "X", FileName: "a", FileURL: "u"}},
		{"missing type", Record{UserID: "u", FileName: "a", FileURL: "u"}},
		{"missing file", Record{UserID: "u", DocumentType: "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			err := svc.Append(context.Background(), &rec)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestListByUser_FiltersAndOrders(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	records := []*Record{
		{UserID: "pat-1", DocumentType: "Lab Report", FileName: "old.pdf", FileURL: "u1", Timestamp: base},
		{UserID: "pat-1", DocumentType: "Prescription", FileName: "rx.pdf", FileURL: "u2", Timestamp: base.Add(time.Hour)},
		{UserID: "pat-1", DocumentType: "Lab Report", FileName: "new.pdf", FileURL: "u3", Timestamp: base.Add(2 * time.Hour)},
		{UserID: "pat-2", DocumentType: "Lab Report", FileName: "other.pdf", FileURL: "u4", Timestamp: base},
	}
	for _, r := range records {
		require.NoError(t, svc.Append(ctx, r))
	}

	all, total, err := svc.ListByUser(ctx, "pat-1", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "new.pdf", all[0].FileName)
	assert.Equal(t, "old.pdf", all[2].FileName)

	labs, total, err := svc.ListByUser(ctx, "pat-1", "Lab Report", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, labs, 2)

	page, total, err := svc.ListByUser(ctx, "pat-1", "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "rx.pdf", page[0].FileName)
}

func TestHasDocuments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	has, err := svc.HasDocuments(ctx, "pat-1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, svc.Append(ctx, &Record{UserID: "pat-1", DocumentType: "X", FileName: "a", FileURL: "u"}))
	has, err = svc.HasDocuments(ctx, "pat-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestUpload_StoresBlobAndRecord(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Upload(ctx, UploadInput{
		UserID:       "pat-1",
		UploadedBy:   "pat-1",
		DocumentType: "Lab Report",
		FileName:     "cbc.txt",
		ContentType:  "text/plain",
		Content:      strings.NewReader("hemoglobin 13.5"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.FileURL, "http://localhost/files/medical-records/pat-1/"))

	key := strings.TrimPrefix(rec.FileURL, "http://localhost/files/")
	rc, _, err := blobs.Open(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "hemoglobin 13.5", string(body))
}

func TestUpload_RejectsDisallowedContentType(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Upload(context.Background(), UploadInput{
		UserID:       "pat-1",
		DocumentType: "Lab Report",
		FileName:     "run.sh",
		ContentType:  "application/x-sh",
		Content:      strings.NewReader("#!/bin/sh"),
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpload_RemovesBlobWhenRecordFails(t *testing.T) {
	blobs := blobstore.NewMemoryStore("http://localhost/files")
	svc := NewService(failingRepo{err: errors.New("db down")}, blobs)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	_, err := svc.Upload(context.Background(), UploadInput{
		UserID:       "pat-1",
		DocumentType: "Lab Report",
		FileName:     "cbc.txt",
		ContentType:  "text/plain",
		Content:      strings.NewReader("x"),
	})
	require.Error(t, err)

	key := blobstore.ObjectKey("medical-records", "pat-1", "cbc.txt", fixed)
	_, err = blobs.URL(context.Background(), key)
	assert.ErrorIs(t, err, blobstore.ErrBlobNotFound)
}

func TestUpload_WithoutBlobStore(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	_, err := svc.Upload(context.Background(), UploadInput{UserID: "u", DocumentType: "X", FileName: "a.txt"})
	assert.ErrorIs(t, err, ErrValidation)
}
