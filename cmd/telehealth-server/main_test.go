package main

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/config"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/domain/appointment"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/domain/profile"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/blobstore"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/cache"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/db"
)

func TestMigrationSource_Embedded(t *testing.T) {
	names, err := fs.Glob(migrationSource(""), "*.sql")
	require.NoError(t, err)
	assert.Contains(t, names, "001_telehealth.sql")
}

func TestMigrationSource_Directory(t *testing.T) {
	dir := t.TempDir()
	names, err := fs.Glob(migrationSource(dir), "*.sql")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(&config.Config{Env: "production", LogLevel: tt.level})
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestOpenBackends_Memory(t *testing.T) {
	b, err := openBackends(context.Background(), &config.Config{StoreBackend: config.BackendMemory}, zerolog.Nop())
	require.NoError(t, err)
	defer b.close()

	assert.NotNil(t, b.appointments)
	assert.NotNil(t, b.doctors)
	assert.NotNil(t, b.patients)
	assert.NotNil(t, b.records)
	assert.Nil(t, b.tx)
	assert.Nil(t, b.listen)
	assert.Empty(t, b.checks)
}

func TestOpenBackends_Unsupported(t *testing.T) {
	_, err := openBackends(context.Background(), &config.Config{StoreBackend: "sqlite"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenCache_MemoryWithoutRedis(t *testing.T) {
	checks := map[string]db.Check{}
	provider, closeCache, err := openCache(context.Background(), &config.Config{}, checks)
	require.NoError(t, err)
	defer closeCache()

	assert.IsType(t, &cache.Memory{}, provider)
	assert.NotContains(t, checks, "redis")
}

func TestOpenBlobs_Memory(t *testing.T) {
	store, err := openBlobs(context.Background(), &config.Config{BlobBackend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.MemoryStore{}, store)
}

func TestRoomAuthorizer(t *testing.T) {
	b, err := openBackends(context.Background(), &config.Config{StoreBackend: config.BackendMemory}, zerolog.Nop())
	require.NoError(t, err)
	defer b.close()

	svc := appointment.NewService(b.appointments, profile.NewDirectory(b.doctors, b.patients))
	a, err := svc.Book(context.Background(), appointment.Caller{UserID: "pat-1", Actor: appointment.ActorPatient}, appointment.BookInput{
		DoctorID:       "doc-1",
		Date:           time.Now().Add(24 * time.Hour),
		ChiefComplaint: "fever",
	})
	require.NoError(t, err)

	authorize := roomAuthorizer(svc)
	assert.True(t, authorize(context.Background(), "pat-1", a.ID))
	assert.True(t, authorize(context.Background(), "doc-1", a.ID))
	assert.False(t, authorize(context.Background(), "pat-2", a.ID))
	assert.False(t, authorize(context.Background(), "pat-1", "missing"))
}
