package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv    string
	Port       string
	BaseURL    string // public base URL used in signing links and emails
	SystemName string // appears as PDF creator and email sender name
	JWTSecret  string
	Database   DatabaseConfig
	Storage    StorageConfig
	SMTP       SMTPConfig
	Signing    SigningConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// StorageConfig selects and configures the blob store driver
type StorageConfig struct {
	Driver     string // "local" or "s3"
	LocalDir   string
	S3Bucket   string
	S3Region   string
	S3Endpoint string // optional override for LocalStack / MinIO
}

// SMTPConfig holds outbound mail configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SigningConfig holds tunables for the signing workflow
type SigningConfig struct {
	TokenGracePeriod      time.Duration // absorbs clock skew on token expiry checks
	MinSignatureBytes     int
	MaxSignatureBytes     int
	DefaultExpirationDays int // invitation lifetime when the owner does not choose one
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	graceMinutes, err := strconv.Atoi(getEnv("TOKEN_GRACE_MINUTES", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_GRACE_MINUTES: %w", err)
	}

	return &Config{
		NodeEnv:    getEnv("NODE_ENV", "development"),
		Port:       getEnv("PORT", "3210"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:3210"),
		SystemName: getEnv("SYSTEM_NAME", "QuillSign"),
		JWTSecret:  jwtSecret,
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "quillsign"),
		},
		Storage: StorageConfig{
			Driver:     getEnv("STORAGE_DRIVER", "local"),
			LocalDir:   getEnv("STORAGE_LOCAL_DIR", "./blob_data"),
			S3Bucket:   os.Getenv("S3_BUCKET"),
			S3Region:   getEnv("S3_REGION", "eu-central-1"),
			S3Endpoint: os.Getenv("S3_ENDPOINT"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     smtpPort,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "noreply@quillsign.local"),
		},
		Signing: SigningConfig{
			TokenGracePeriod:      time.Duration(graceMinutes) * time.Minute,
			MinSignatureBytes:     getEnvInt("MIN_SIGNATURE_BYTES", 100),
			MaxSignatureBytes:     getEnvInt("MAX_SIGNATURE_BYTES", 2*1024*1024),
			DefaultExpirationDays: getEnvInt("DEFAULT_EXPIRATION_DAYS", 7),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
