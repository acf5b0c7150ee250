package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/auth"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func limitedRequest(mw echo.MiddlewareFunc, userID string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/a1", nil)
	if userID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), userID, "", []string{auth.RolePatient}))
	}
	rec := httptest.NewRecorder()
	return rec, mw(okHandler)(e.NewContext(req, rec))
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mw := rateLimit(newLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}, clock.now))

	for i := 0; i < 2; i++ {
		rec, err := limitedRequest(mw, "pat-1")
		require.NoError(t, err)
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec, err := limitedRequest(mw, "pat-1")
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusTooManyRequests, he.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_RefillsOverTime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mw := rateLimit(newLimiter(RateLimitConfig{RequestsPerSecond: 2, BurstSize: 1}, clock.now))

	_, err := limitedRequest(mw, "pat-1")
	require.NoError(t, err)
	_, err = limitedRequest(mw, "pat-1")
	require.Error(t, err)

	clock.t = clock.t.Add(500 * time.Millisecond)
	_, err = limitedRequest(mw, "pat-1")
	assert.NoError(t, err)
}

func TestRateLimit_BucketsArePerUser(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mw := rateLimit(newLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}, clock.now))

	_, err := limitedRequest(mw, "pat-1")
	require.NoError(t, err)
	_, err = limitedRequest(mw, "pat-2")
	assert.NoError(t, err)
	_, err = limitedRequest(mw, "")
	assert.NoError(t, err)
}

func TestLimiter_SweepsIdleBuckets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute}, clock.now)

	l.take("user:a")
	l.take("user:b")
	assert.Equal(t, 2, l.size())

	clock.t = clock.t.Add(2 * time.Minute)
	l.take("user:c")
	assert.Equal(t, 1, l.size())
}
