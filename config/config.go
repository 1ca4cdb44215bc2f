package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Storage  StorageConfig
	Totem    TotemConfig
	Mail     MailConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/totem?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the media bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	MediaBucket     string
	PublicBaseURL   string // CDN or bucket URL prefixed to stored media paths
}

// Storage drivers.
const (
	StorageS3    = "s3"
	StorageLocal = "local"
)

// StorageConfig selects the blob store.
type StorageConfig struct {
	Driver    string
	UploadDir string // local driver root; files live under UploadDir/uploads
	BaseURL   string // local driver public base URL; empty stores bare /uploads paths
}

// TotemConfig holds the public totem feed settings.
type TotemConfig struct {
	TimeZone           string
	CacheTTL           time.Duration
	RateLimitPerMinute int
}

// Location loads the totem time zone.
func (c TotemConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load totem time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// MailConfig holds the mail microservice queue.
type MailConfig struct {
	QueueKey string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 60),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "totem"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			MediaBucket:     getEnv("AWS_S3_MEDIA_BUCKET", ""),
			PublicBaseURL:   getEnv("MEDIA_PUBLIC_BASE_URL", ""),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(getEnv("STORAGE_DRIVER", StorageS3)),
			UploadDir: getEnv("UPLOAD_DIR", "./data"),
			BaseURL:   getEnv("LOCAL_PUBLIC_BASE_URL", ""),
		},
		Totem: TotemConfig{
			TimeZone:           getEnv("TOTEM_TIMEZONE", "America/Sao_Paulo"),
			CacheTTL:           time.Duration(getEnvInt("TOTEM_CACHE_TTL_SEC", 30)) * time.Second,
			RateLimitPerMinute: getEnvInt("TOTEM_RATE_LIMIT_PER_MIN", 120),
		},
		Mail: MailConfig{
			QueueKey: getEnv("MAIL_QUEUE_KEY", "worker:emails"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageS3:
		if c.AWS.MediaBucket == "" {
			return fmt.Errorf("AWS_S3_MEDIA_BUCKET is required when STORAGE_DRIVER=%s", StorageS3)
		}
	case StorageLocal:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want %s or %s)", c.Storage.Driver, StorageS3, StorageLocal)
	}
	if _, err := c.Totem.Location(); err != nil {
		return err
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
