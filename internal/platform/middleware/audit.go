package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/auth"
)

// AuditEntry records one access to appointment, record, or profile data.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string // appointments, doctors, patients, records, call
	ResourceID string
	Action     string // read, create, update, delete
	IPAddress  string
	Path       string
	Method     string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every API request under prefix once the handler has run. Entries
// are also handed to each recorder; recorder failures are logged and ignored.
func Audit(logger zerolog.Logger, prefix string, recorders ...AuditRecorder) echo.MiddlewareFunc {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, prefix) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			resource, id := auditTarget(strings.TrimPrefix(req.URL.Path, prefix))
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(req.Context()),
				UserRoles:  auth.RolesFromContext(req.Context()),
				Resource:   resource,
				ResourceID: id,
				Action:     auditAction(req.Method),
				IPAddress:  c.RealIP(),
				Path:       req.URL.Path,
				Method:     req.Method,
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}
			if rid, ok := c.Get(RequestIDKey).(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if status == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("data_access")

			return err
		}
	}
}

func auditAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// auditTarget splits "appointments/123/accept" into ("appointments", "123").
// Nested collections such as "doctors/7/appointments" resolve to the outer
// resource.
func auditTarget(rest string) (resource, id string) {
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	resource = segments[0]
	if len(segments) > 1 {
		id = segments[1]
	}
	return resource, id
}
