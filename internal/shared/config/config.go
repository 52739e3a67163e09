package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration. It is constructed once at startup
// and passed by reference into each component.
type Config struct {
	Port        string
	MetricsPort string

	CORSAllowOrigin []string
	Env             string

	DatabaseURL string

	ObjectStoreType string
	LocalStoreDir   string

	AWSRegion string
	S3Bucket  string
	S3Prefix  string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	MaxFileSizeBytes  int64
	AllowedMimeTypes  []string
	DefaultUserQuota  int64
	URLExpiryDefault  time.Duration
	URLExpiryMax      time.Duration
	DownloadChunkSize int

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	CallTimeout      time.Duration

	StoreBreakerThreshold int
	StoreBreakerCooldown  time.Duration
	DBBreakerThreshold    int
	DBBreakerCooldown     time.Duration

	ReconcileInterval time.Duration
	PendingStaleness  time.Duration
}

const (
	defaultMaxFileSize = 50 << 20  // 50MB
	defaultUserQuota   = 1 << 30   // 1GB
	defaultChunkSize   = 64 * 1024 // 64KB download chunks
)

var defaultMimeTypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	return Config{
		Port:        getEnv("PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9100"),

		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             normalizeEnv(getEnv("ENV", "dev")),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),

		AWSRegion: getEnv("AWS_REGION", ""),
		S3Bucket:  getEnv("S3_BUCKET", ""),
		S3Prefix:  getEnv("S3_PREFIX", ""),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "documents"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		MaxFileSizeBytes:  getEnvInt64("MAX_FILE_SIZE_BYTES", defaultMaxFileSize),
		AllowedMimeTypes:  splitAndTrim(getEnv("ALLOWED_MIME_TYPES", strings.Join(defaultMimeTypes, ","))),
		DefaultUserQuota:  getEnvInt64("DEFAULT_USER_QUOTA_BYTES", defaultUserQuota),
		URLExpiryDefault:  getEnvDuration("URL_EXPIRY_DEFAULT", 30*time.Minute),
		URLExpiryMax:      getEnvDuration("URL_EXPIRY_MAX", 24*time.Hour),
		DownloadChunkSize: int(getEnvInt64("DOWNLOAD_CHUNK_SIZE", defaultChunkSize)),

		RetryMaxAttempts: int(getEnvInt64("RETRY_MAX_ATTEMPTS", 3)),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 200*time.Millisecond),
		RetryMaxDelay:    getEnvDuration("RETRY_MAX_DELAY", 5*time.Second),
		CallTimeout:      getEnvDuration("BACKEND_CALL_TIMEOUT", 10*time.Second),

		StoreBreakerThreshold: int(getEnvInt64("STORE_BREAKER_THRESHOLD", 5)),
		StoreBreakerCooldown:  getEnvDuration("STORE_BREAKER_COOLDOWN", 60*time.Second),
		DBBreakerThreshold:    int(getEnvInt64("DB_BREAKER_THRESHOLD", 3)),
		DBBreakerCooldown:     getEnvDuration("DB_BREAKER_COOLDOWN", 30*time.Second),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		PendingStaleness:  getEnvDuration("PENDING_STALENESS", 15*time.Minute),
	}
}

// Validate rejects configurations the service cannot safely start with.
func (c Config) Validate() error {
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_BYTES must be positive")
	}
	if c.DefaultUserQuota <= 0 {
		return fmt.Errorf("DEFAULT_USER_QUOTA_BYTES must be positive")
	}
	if len(c.AllowedMimeTypes) == 0 {
		return fmt.Errorf("ALLOWED_MIME_TYPES must not be empty")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.DownloadChunkSize <= 0 {
		return fmt.Errorf("DOWNLOAD_CHUNK_SIZE must be positive")
	}
	if c.ObjectStoreType == "s3" && strings.TrimSpace(c.S3Bucket) == "" {
		return fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
	}
	if c.Env == "production" && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}
	return nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return val
}

func getEnvInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return val
}
