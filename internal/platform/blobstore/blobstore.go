// Package blobstore provides binary storage for uploaded documents. It defines
// the Store interface, an S3 implementation, an in-memory implementation
// suitable for testing and development, and an Echo download handler for
// stores that serve their own content.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrInvalidKey         = errors.New("invalid object key")
)

// MaxFileSize is the maximum allowed blob size in bytes (25 MB).
const MaxFileSize = 25 * 1024 * 1024

// AllowedContentTypes lists accepted document MIME types.
var AllowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"application/pdf": true,
	"text/plain":      true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/octet-stream": true,
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store defines the contract for blob storage backends.
type Store interface {
	// Upload writes content under key and returns the stored object with a
	// download URL filled in.
	Upload(ctx context.Context, key, fileName, contentType string, content io.Reader) (*Object, error)
	// URL returns a download URL for key.
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Opener is implemented by stores that can stream content back themselves.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, *Object, error)
}

// ObjectKey builds a storage path of the form "<prefix>/<owner>/<unix-millis>_<file>".
func ObjectKey(prefix, owner, fileName string, at time.Time) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	return fmt.Sprintf("%s/%s/%d_%s", prefix, owner, at.UnixMilli(), base)
}

func validate(key, fileName, contentType string) error {
	if fileName == "" {
		return ErrMissingFileName
	}
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	ct := contentType
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	if ct != "" && !AllowedContentTypes[strings.TrimSpace(ct)] {
		return ErrInvalidContentType
	}
	return nil
}

func readLimited(content io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	object  Object
	content []byte
}

// MemoryStore is a thread-safe, in-memory Store for testing/dev. URLs point at
// baseURL, which is expected to be served by DownloadHandler.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	baseURL string
}

// NewMemoryStore returns a ready-to-use MemoryStore.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string]*storedBlob),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Upload validates inputs, reads the content, computes a SHA-256 hash, and
// stores the blob in memory.
func (s *MemoryStore) Upload(_ context.Context, key, fileName, contentType string, content io.Reader) (*Object, error) {
	if err := validate(key, fileName, contentType); err != nil {
		return nil, err
	}
	data, err := readLimited(content)
	if err != nil {
		return nil, err
	}

	h := sha256.Sum256(data)
	obj := Object{
		Key:         key,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", h),
		URL:         s.baseURL + "/" + key,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[key] = &storedBlob{object: obj, content: data}
	s.mu.Unlock()

	out := obj
	return &out, nil
}

func (s *MemoryStore) URL(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.blobs[key]; !ok {
		return "", ErrBlobNotFound
	}
	return s.baseURL + "/" + key, nil
}

func (s *MemoryStore) Open(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	obj := blob.object
	return io.NopCloser(bytes.NewReader(blob.content)), &obj, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// DownloadHandler streams blobs from stores that implement Opener. The object
// key is taken from the wildcard path parameter.
func DownloadHandler(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		opener, ok := store.(Opener)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "direct download not supported")
		}
		key := c.Param("*")
		rc, obj, err := opener.Open(c.Request().Context(), key)
		if err != nil {
			if errors.Is(err, ErrBlobNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "blob not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		defer rc.Close()

		c.Response().Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", obj.FileName))
		ct := obj.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return c.Stream(http.StatusOK, ct, rc)
	}
}
