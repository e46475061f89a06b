package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Auth         AuthConfig
	Storage      StorageConfig
	Redis        RedisConfig
	KurrentDB    KurrentDBConfig
	Notification NotificationConfig
	Reminder     ReminderConfig
	Upload       UploadConfig
	Logging      LoggingConfig
}

type ServerConfig struct {
	Port        int
	Env         string
	CORSOrigins []string
	// RateLimit is the sustained requests per second allowed per client IP
	RateLimit float64
	RateBurst int
	// SeedPassword, when set in development, seeds demo villages and accounts
	SeedPassword string
}

// IsDevelopment reports whether the process runs in a development environment
func (s ServerConfig) IsDevelopment() bool {
	return s.Env == "" || s.Env == "development" || s.Env == "dev"
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory"
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
	Issuer    string
}

// StorageConfig configures the MinIO bucket holding case files
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RedisConfig struct {
	URL     string
	Enabled bool
}

type KurrentDBConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type NotificationConfig struct {
	Workers       int
	BufferSize    int
	RetryAttempts int
	RetryDelay    time.Duration
	SendTimeout   time.Duration

	ResendAPIKey string
	MailFrom     string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioBaseURL    string
}

// ReminderConfig drives the pending-case reminder sweep
type ReminderConfig struct {
	Enabled  bool
	Interval time.Duration
	After    time.Duration
	LockTTL  time.Duration
}

type UploadConfig struct {
	MaxBytes int64
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, after loading a .env file when one exists
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			Env:          getEnv("ENV", "development"),
			CORSOrigins:  getEnvSlice("CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimit:    getEnvFloat("RATE_LIMIT_RPS", 20),
			RateBurst:    getEnvInt("RATE_LIMIT_BURST", 40),
			SeedPassword: getEnv("DEV_SEED_PASSWORD", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("STORE", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "signalement"),
			Password: getEnv("DB_PASSWORD", "signalement"),
			Database: getEnv("DB_NAME", "signalement"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 20)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTExpiry: getEnvDuration("JWT_EXPIRY", 12*time.Hour),
			Issuer:    getEnv("JWT_ISSUER", "signalement"),
		},
		Storage: StorageConfig{
			Enabled:   getEnvBool("MINIO_ENABLED", true),
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "signalement-files"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", "redis://localhost:6379"),
			Enabled: getEnvBool("REDIS_ENABLED", false),
		},
		KurrentDB: KurrentDBConfig{
			Enabled:  getEnvBool("KURRENTDB_ENABLED", false),
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Notification: NotificationConfig{
			Workers:          getEnvInt("NOTIFY_WORKERS", 4),
			BufferSize:       getEnvInt("NOTIFY_BUFFER", 1000),
			RetryAttempts:    getEnvInt("NOTIFY_RETRY_ATTEMPTS", 3),
			RetryDelay:       getEnvDuration("NOTIFY_RETRY_DELAY", 30*time.Second),
			SendTimeout:      getEnvDuration("NOTIFY_SEND_TIMEOUT", 10*time.Second),
			ResendAPIKey:     getEnv("RESEND_API_KEY", ""),
			MailFrom:         getEnv("MAIL_FROM", "SOS Villages <no-reply@sos.tn>"),
			TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioFrom:       getEnv("TWILIO_WHATSAPP_FROM", ""),
			TwilioBaseURL:    getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		},
		Reminder: ReminderConfig{
			Enabled:  getEnvBool("PENDING_REMINDER_ENABLED", true),
			Interval: time.Duration(getEnvInt("PENDING_REMINDER_INTERVAL_MIN", 15)) * time.Minute,
			After:    getEnvDuration("PENDING_REMINDER_AFTER", 24*time.Hour),
			LockTTL:  getEnvDuration("PENDING_REMINDER_LOCK_TTL", 5*time.Minute),
		},
		Upload: UploadConfig{
			MaxBytes: int64(getEnvInt("MAX_UPLOAD_MB", 50)) * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		if !cfg.Server.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET is required outside development")
		}
		cfg.Auth.JWTSecret = "dev-secret-change-in-prod"
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "memory" {
		return nil, fmt.Errorf("unknown STORE %q", cfg.Database.Driver)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				result = append(result, v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
