package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
	BackendS3       = "s3"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreBackend string `mapstructure:"STORE_BACKEND"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DBMaxConns   int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32  `mapstructure:"DB_MIN_CONNS"`
	MongoURI     string `mapstructure:"MONGO_URI"`
	MongoDB      string `mapstructure:"MONGO_DATABASE"`

	RedisURL        string `mapstructure:"REDIS_URL"`
	CacheTTLSeconds int    `mapstructure:"CACHE_TTL_SECONDS"`

	BlobBackend string        `mapstructure:"BLOB_BACKEND"`
	S3Bucket    string        `mapstructure:"S3_BUCKET"`
	S3Region    string        `mapstructure:"S3_REGION"`
	S3Endpoint  string        `mapstructure:"S3_ENDPOINT"`
	S3AccessKey string        `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string        `mapstructure:"S3_SECRET_KEY"`
	S3URLTTL    time.Duration `mapstructure:"S3_URL_TTL"`

	JWTSecret  string `mapstructure:"JWT_SECRET"`
	AuthIssuer string `mapstructure:"AUTH_ISSUER"`

	CallAppID        string        `mapstructure:"CALL_APP_ID"`
	CallServerSecret string        `mapstructure:"CALL_SERVER_SECRET"`
	CallAPIKey       string        `mapstructure:"CALL_API_KEY"`
	CallTokenTTL     time.Duration `mapstructure:"CALL_TOKEN_TTL"`

	ReminderSchedule string        `mapstructure:"REMINDER_SCHEDULE"`
	ReminderWindow   time.Duration `mapstructure:"REMINDER_WINDOW"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MONGO_URI", "MONGO_DATABASE",
	"REDIS_URL", "CACHE_TTL_SECONDS",
	"BLOB_BACKEND", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_URL_TTL",
	"JWT_SECRET", "AUTH_ISSUER",
	"CALL_APP_ID", "CALL_SERVER_SECRET", "CALL_API_KEY", "CALL_TOKEN_TTL",
	"REMINDER_SCHEDULE", "REMINDER_WINDOW",
	"CORS_ORIGINS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MONGO_DATABASE", "telehealth")
	v.SetDefault("CACHE_TTL_SECONDS", 60)
	v.SetDefault("BLOB_BACKEND", BackendMemory)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_URL_TTL", "24h")
	v.SetDefault("CALL_TOKEN_TTL", "1h")
	v.SetDefault("REMINDER_SCHEDULE", "*/5 * * * *")
	v.SetDefault("REMINDER_WINDOW", "15m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	for _, key := range envKeys {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)
	cfg.BlobBackend = strings.ToLower(cfg.BlobBackend)

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=%s", BackendPostgres)
		}
	case BackendMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is required when STORE_BACKEND=%s", BackendMongo)
		}
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests without a bearer token are authenticated from X-User-ID / X-User-Role headers.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMongo, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q, %q, or %q, got %q",
			BackendPostgres, BackendMongo, BackendMemory, c.StoreBackend)
	}

	switch c.BlobBackend {
	case BackendMemory:
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND=%s", BackendS3)
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be %q or %q, got %q", BackendS3, BackendMemory, c.BlobBackend)
	}

	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside development (current ENV=%q)", c.Env)
	}
	if c.IsProduction() && c.StoreBackend == BackendMemory {
		return fmt.Errorf("STORE_BACKEND=%s is not allowed in production", BackendMemory)
	}
	if c.CallServerSecret != "" && len(c.CallServerSecret) < 16 {
		return fmt.Errorf("CALL_SERVER_SECRET must be at least 16 characters, got %d", len(c.CallServerSecret))
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must not be negative")
	}
	if c.ReminderWindow < 0 {
		return fmt.Errorf("REMINDER_WINDOW must not be negative")
	}
	return nil
}
