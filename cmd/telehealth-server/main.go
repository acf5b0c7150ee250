package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/config"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/domain/appointment"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/domain/call"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/domain/medicalrecord"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/domain/profile"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/auth"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/blobstore"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/cache"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/db"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/jobs"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/middleware"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/mongodb"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/notification"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/websocket"
	"github.com/rajaaravindrakoti2006-hash/doctor/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "telehealth-server",
		Short: "Telehealth appointment API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationSource returns the embedded migrations unless dir is set.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, func(), error) {
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreBackend != config.BackendPostgres {
		return nil, nil, fmt.Errorf("migrations only apply to STORE_BACKEND=%s, got %q", config.BackendPostgres, cfg.StoreBackend)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationSource(dir)), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closePool()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// backends holds the storage chosen by STORE_BACKEND.
type backends struct {
	appointments appointment.Store
	doctors      profile.DoctorRepository
	patients     profile.PatientRepository
	records      medicalrecord.Repository
	tx           appointment.TxRunner
	checks       map[string]db.Check
	pool         *pgxpool.Pool

	// listen feeds cross-process change notifications to live queries.
	listen func(ctx context.Context) error
	close  func()
}

func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		store := appointment.NewPGStore(pool, logger)
		return &backends{
			appointments: store,
			doctors:      profile.NewDoctorRepoPG(pool),
			patients:     profile.NewPatientRepoPG(pool),
			records:      medicalrecord.NewRepoPG(pool),
			tx:           db.NewTxRunner(pool),
			checks:       map[string]db.Check{"postgres": db.PoolCheck(pool)},
			pool:         pool,
			listen:       store.Listen,
			close:        pool.Close,
		}, nil

	case config.BackendMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.MongoDB)
		store := appointment.NewMongoStore(database, logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &backends{
			appointments: store,
			doctors:      profile.NewDoctorRepoMongo(database),
			patients:     profile.NewPatientRepoMongo(database),
			records:      medicalrecord.NewRepoMongo(database),
			checks:       map[string]db.Check{"mongo": mongodb.Check(client)},
			listen:       store.Listen,
			close:        func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case config.BackendMemory:
		return &backends{
			appointments: appointment.NewMemoryStore(logger),
			doctors:      profile.NewDoctorMemoryRepo(),
			patients:     profile.NewPatientMemoryRepo(),
			records:      medicalrecord.NewMemoryRepo(),
			checks:       map[string]db.Check{},
			close:        func() {},
		}, nil
	}
	return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
}

// openCache returns the shared cache. Redis is used when REDIS_URL is set.
func openCache(ctx context.Context, cfg *config.Config, checks map[string]db.Check) (cache.Provider, func(), error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(), func() {}, nil
	}
	r, err := cache.NewRedis(ctx, cfg.RedisURL, "telehealth:")
	if err != nil {
		return nil, nil, err
	}
	checks["redis"] = r.Ping
	return r, func() { _ = r.Close() }, nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg.BlobBackend == config.BackendS3 {
		return blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			URLTTL:    cfg.S3URLTTL,
		})
	}
	return blobstore.NewMemoryStore("/files"), nil
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.JWTSecret)}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtCfg)
	}
	return auth.JWTMiddleware(jwtCfg)
}

// roomAuthorizer lets a user join a call room only when they can see the
// appointment the room belongs to.
func roomAuthorizer(svc *appointment.Service) call.RoomAuthorizer {
	return func(ctx context.Context, userID, roomID string) bool {
		return svc.CanView(ctx, userID, appointment.AppointmentTopic(roomID))
	}
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Storage
	store, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open storage")
	}
	defer store.close()
	logger.Info().Str("backend", cfg.StoreBackend).Msg("storage ready")

	if store.listen != nil {
		go func() {
			if err := store.listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("change listener stopped")
			}
		}()
	}

	shared, closeCache, err := openCache(ctx, cfg, store.checks)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeCache()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure blob storage")
	}

	// Domain wiring
	hub := websocket.NewHub(logger)
	templates := notification.NewTemplateEngine()
	directory := profile.NewDirectory(store.doctors, store.patients)
	records := medicalrecord.NewService(store.records, blobs)

	opts := []appointment.Option{
		appointment.WithBlobStore(blobs),
		appointment.WithRecords(records),
		appointment.WithPublisher(hub),
		appointment.WithLogger(logger),
	}
	if store.tx != nil {
		opts = append(opts, appointment.WithTxRunner(store.tx))
	}
	if cfg.CacheTTLSeconds > 0 {
		opts = append(opts, appointment.WithQueryCache(shared, time.Duration(cfg.CacheTTLSeconds)*time.Second))
	}
	appointments := appointment.NewService(store.appointments, directory, opts...)

	wsHandler := websocket.NewHandler(hub, appointments.CanView)
	dispatcher := appointment.NewDispatcher(appointments, directory, templates, logger)
	calendar := appointment.NewCalendar(appointments)
	insights := appointment.NewInsights(appointments, records, directory, logger)

	apptHandler := appointment.NewHandler(appointments, calendar, insights, logger)
	apptHandler.EnableNotifications(dispatcher, hub, wsHandler)

	issuer := call.NewTokenIssuer(cfg.CallAppID, cfg.CallServerSecret, cfg.CallTokenTTL)
	callHandler := call.NewHandler(issuer, cfg.CallAPIKey, roomAuthorizer(appointments), logger)

	// Reminders
	scheduler := jobs.NewScheduler(logger)
	reminders := jobs.NewReminderJob(appointment.NewReminders(appointments, directory, templates), hub, shared, cfg.ReminderWindow, logger)
	if err := scheduler.Add("appointment-reminders", cfg.ReminderSchedule, time.Minute, reminders.Job()); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule reminders")
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.Secure())
	// Multipart overhead on top of the largest accepted document.
	e.Use(echomw.BodyLimit("26M"))

	// Unauthenticated routes
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(store.checks))
	if store.pool != nil {
		e.GET("/health/db/pool", db.PoolStatsHandler(store.pool))
	}
	if cfg.BlobBackend == config.BackendMemory {
		e.GET("/files/*", blobstore.DownloadHandler(blobs))
	}

	apiV1 := e.Group("/api/v1",
		authMiddleware(cfg),
		middleware.RateLimit(middleware.DefaultRateLimitConfig()),
		middleware.Audit(logger, "/api/v1"),
	)
	profile.NewHandler(profile.NewService(store.doctors, store.patients)).RegisterRoutes(apiV1)
	medicalrecord.NewHandler(records).RegisterRoutes(apiV1)
	apptHandler.RegisterRoutes(apiV1)
	callHandler.RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
