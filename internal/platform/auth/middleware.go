package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	UserNameKey  contextKey = "user_name"
)

const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
	RoleAdmin   = "admin"
)

// Header names honoured by DevAuthMiddleware.
const (
	DevUserIDHeader   = "X-User-ID"
	DevUserRoleHeader = "X-User-Role"
	DevUserNameHeader = "X-User-Name"
)

type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
}

// IssueToken signs an HS256 access token for subject. It is used by tests and
// development tooling; production tokens come from the identity provider.
func IssueToken(cfg JWTConfig, subject, name string, roles []string, ttl time.Duration) (string, error) {
	if len(cfg.SigningKey) == 0 {
		return "", fmt.Errorf("signing key is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:  name,
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

// ParseToken validates tokenStr and returns its claims.
func ParseToken(cfg JWTConfig, tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func bearerToken(c echo.Context) (string, bool) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return "", false
		}
		return parts[1], true
	}
	// Browsers cannot set headers on WebSocket upgrades.
	if tok := c.QueryParam("access_token"); tok != "" {
		return tok, true
	}
	return "", false
}

func withIdentity(c echo.Context, userID, name string, roles []string) {
	ctx := WithIdentity(c.Request().Context(), userID, name, roles)
	c.SetRequest(c.Request().WithContext(ctx))
}

// WithIdentity returns a context carrying the authenticated subject.
func WithIdentity(ctx context.Context, userID, name string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserNameKey, name)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	return ctx
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" && c.QueryParam("access_token") == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			tokenStr, ok := bearerToken(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := ParseToken(cfg, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			withIdentity(c, claims.Subject, claims.Name, claims.Roles)
			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development. A bearer token,
// when present, is validated as in production. Otherwise the identity is taken
// from the X-User-ID / X-User-Role headers, defaulting to an admin dev user.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	strict := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		validated := strict(next)
		return func(c echo.Context) error {
			if _, ok := bearerToken(c); ok && len(cfg.SigningKey) > 0 {
				return validated(c)
			}

			req := c.Request()
			userID := req.Header.Get(DevUserIDHeader)
			role := req.Header.Get(DevUserRoleHeader)
			if userID == "" {
				userID = "dev-user"
			}
			if role == "" {
				role = RoleAdmin
			}
			withIdentity(c, userID, req.Header.Get(DevUserNameHeader), []string{role})
			return next(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func UserNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(UserNameKey).(string)
	return name
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
