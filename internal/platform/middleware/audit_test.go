package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) all() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.entries...)
}

func auditRequest(t *testing.T, mw echo.MiddlewareFunc, method, path string, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "pat-1", "Asha", []string{auth.RolePatient}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(RequestIDKey, "req-1")
	return rec, mw(handler)(c)
}

func TestAudit_RecordsAppointmentAccess(t *testing.T) {
	recorder := &mockRecorder{}
	mw := Audit(zerolog.Nop(), "/api/v1", recorder)

	_, err := auditRequest(t, mw, http.MethodPut, "/api/v1/appointments/appt-9/cancel", okHandler)
	require.NoError(t, err)

	entries := recorder.all()
	require.Len(t, entries, 1)
	got := entries[0]
	assert.Equal(t, "pat-1", got.UserID)
	assert.Equal(t, []string{auth.RolePatient}, got.UserRoles)
	assert.Equal(t, "appointments", got.Resource)
	assert.Equal(t, "appt-9", got.ResourceID)
	assert.Equal(t, "update", got.Action)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.False(t, got.Timestamp.IsZero())
}

func TestAudit_SkipsPathsOutsidePrefix(t *testing.T) {
	recorder := &mockRecorder{}
	mw := Audit(zerolog.Nop(), "/api/v1/", recorder)

	_, err := auditRequest(t, mw, http.MethodGet, "/health", okHandler)
	require.NoError(t, err)
	assert.Empty(t, recorder.all())
}

func TestAudit_CapturesHTTPErrorStatus(t *testing.T) {
	recorder := &mockRecorder{}
	var buf bytes.Buffer
	mw := Audit(zerolog.New(&buf), "/api/v1", recorder)

	_, err := auditRequest(t, mw, http.MethodGet, "/api/v1/doctors/doc-2/appointments", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "not yours")
	})
	require.Error(t, err)

	entries := recorder.all()
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusForbidden, entries[0].StatusCode)
	assert.Equal(t, "doctors", entries[0].Resource)
	assert.Equal(t, "doc-2", entries[0].ResourceID)
	assert.Equal(t, "read", entries[0].Action)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestAudit_RecorderFailureDoesNotFailRequest(t *testing.T) {
	var buf bytes.Buffer
	failing := AuditRecorderFunc(func(AuditEntry) error { return errors.New("disk full") })
	mw := Audit(zerolog.New(&buf), "/api/v1", failing, nil)

	rec, err := auditRequest(t, mw, http.MethodPost, "/api/v1/appointments", okHandler)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(buf.String(), "failed to record audit entry"))
}

func TestAuditTarget(t *testing.T) {
	tests := []struct {
		rest         string
		resource, id string
	}{
		{"appointments", "appointments", ""},
		{"appointments/a1", "appointments", "a1"},
		{"patients/p1/calendar/", "patients", "p1"},
		{"", "unknown", ""},
	}
	for _, tt := range tests {
		resource, id := auditTarget(tt.rest)
		assert.Equal(t, tt.resource, resource, tt.rest)
		assert.Equal(t, tt.id, id, tt.rest)
	}
}

func TestAuditAction(t *testing.T) {
	assert.Equal(t, "read", auditAction(http.MethodGet))
	assert.Equal(t, "create", auditAction(http.MethodPost))
	assert.Equal(t, "update", auditAction(http.MethodPatch))
	assert.Equal(t, "delete", auditAction(http.MethodDelete))
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
