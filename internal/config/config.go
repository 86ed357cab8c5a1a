package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort string
	AppEnv     string
	LogLevel   string
	AppBaseURL string

	// Database
	DatabaseType string
	DatabasePath string
	DatabaseURL  string

	// Identity and admin gateway
	JWTSecret       string
	TokenTTL        time.Duration
	AdminEmails     string // comma-separated
	AllowedOrigins  string // comma-separated
	CSRFSecret      string
	AdminRateLimit  int
	AdminRateWindow time.Duration

	// Redis backs the admin rate limiter when set
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Quota and deletion
	PlansFile       string
	QuotaTimeout    time.Duration
	DeletionTimeout time.Duration

	// Artwork blob storage
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	// Email (Amazon SES)
	AWSRegion    string
	SESFromEmail string
	SESFromName  string

	MetricsEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	return &Config{
		ServerPort: getEnv("PORT", "8080"),
		AppEnv:     getEnv("APP_ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", ""),
		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:8080"),

		DatabaseType: getEnv("DB_TYPE", "sqlite"),
		DatabasePath: getEnv("DB_PATH", "./familygallery.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		JWTSecret:       getEnv("JWT_SECRET", "dev-jwt-secret"),
		TokenTTL:        getDuration("TOKEN_TTL", 12*time.Hour),
		AdminEmails:     getEnv("ADMIN_EMAILS", ""),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "http://localhost:8080"),
		CSRFSecret:      getEnv("CSRF_SECRET", "dev-csrf-secret"),
		AdminRateLimit:  getInt("ADMIN_RATE_LIMIT", 10),
		AdminRateWindow: getDuration("ADMIN_RATE_WINDOW", time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		PlansFile:       getEnv("PLANS_FILE", ""),
		QuotaTimeout:    getDuration("QUOTA_TIMEOUT", 5*time.Second),
		DeletionTimeout: getDuration("DELETION_TIMEOUT", 30*time.Second),

		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3PathStyle: getBool("S3_PATH_STYLE", false),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "Family Gallery"),

		MetricsEnabled: getBool("METRICS_ENABLED", true),
	}
}

// AdminEmailList returns the configured admin identities
func (c *Config) AdminEmailList() []string {
	return splitList(c.AdminEmails)
}

// OriginList returns the origins allowed to call admin endpoints
func (c *Config) OriginList() []string {
	return splitList(c.AllowedOrigins)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			res = append(res, p)
		}
	}
	return res
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("invalid boolean for %s: %v, using default %v", key, err, defaultValue)
			return defaultValue
		}
		return b
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid int for %s: %v, using default %d", key, err, defaultValue)
			return defaultValue
		}
		return i
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using default %v", key, err, defaultValue)
			return defaultValue
		}
		return d
	}
	return defaultValue
}
