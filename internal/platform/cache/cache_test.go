package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	ok, err := m.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_Miss(t *testing.T) {
	_, err := NewMemory().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Second))
	now = now.Add(2 * time.Second)

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	now = now.Add(24 * time.Hour)

	_, err := m.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, m.Delete(ctx, "k"))

	ok, err := m.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestRedis_KeyPrefix(t *testing.T) {
	r := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "telehealth:")
	defer r.Close()
	assert.Equal(t, "telehealth:appt", r.key("appt"))
}

func TestRedis_UnreachableServerIsNotAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewRedisFromClient(client, "")
	defer r.Close()

	_, err := r.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMiss))
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "://bad", "")
	assert.Error(t, err)
}
