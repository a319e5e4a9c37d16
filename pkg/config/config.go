package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	ImageHostHTTP  = "http"
	ImageHostMinio = "minio"
	ImageHostLocal = "local"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	ImageHost    ImageHostConfig
	Gate         GateConfig
	Cache        CacheConfig
	Invalidation InvalidationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ImageHostConfig selects and configures the image host receiving attachments.
type ImageHostConfig struct {
	Driver           string
	Endpoint         string
	APIKey           string
	Timeout          time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	MaxImagesPerItem int
	// MaxRequestBytes caps review and comment bodies; MaxBulkRequestBytes caps the
	// step content route, which carries images for many steps at once.
	MaxRequestBytes     int64
	MaxBulkRequestBytes int64
	PublicBaseURL       string
	LocalDir            string
	Minio               MinioConfig
}

// MinioConfig holds credentials for the S3-compatible image bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// GateConfig controls password-protected project access proofs.
type GateConfig struct {
	ProofSecret  string
	ProofTTL     time.Duration
	CookiePrefix string
	SecureCookie bool
}

// CacheConfig governs the track view cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// InvalidationConfig tunes the background queue that drops stale views.
type InvalidationConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		URL:      v.GetString("REDIS_URL"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxImageSize := v.GetInt64("IMAGE_MAX_FILE_SIZE")
	if maxImageSize <= 0 {
		maxImageSize = 5 * 1024 * 1024
	}
	maxImages := v.GetInt("IMAGE_MAX_PER_ITEM")
	if maxImages <= 0 {
		maxImages = 4
	}
	maxRequest := v.GetInt64("IMAGE_MAX_REQUEST_BYTES")
	if maxRequest <= 0 {
		maxRequest = int64(maxImages)*maxImageSize + 1<<20
	}
	maxBulkRequest := v.GetInt64("IMAGE_MAX_BULK_REQUEST_BYTES")
	if maxBulkRequest < maxRequest {
		maxBulkRequest = maxRequest
	}
	cfg.ImageHost = ImageHostConfig{
		Driver:              strings.ToLower(v.GetString("IMAGE_HOST_DRIVER")),
		Endpoint:            v.GetString("IMAGE_HOST_ENDPOINT"),
		APIKey:              v.GetString("IMAGE_HOST_API_KEY"),
		Timeout:             parseDuration(v.GetString("IMAGE_HOST_TIMEOUT"), 30*time.Second),
		MaxFileSizeBytes:    maxImageSize,
		AllowedMIMEs:        splitAndTrim(v.GetString("IMAGE_ALLOWED_MIME_TYPES")),
		MaxImagesPerItem:    maxImages,
		MaxRequestBytes:     maxRequest,
		MaxBulkRequestBytes: maxBulkRequest,
		PublicBaseURL:       strings.TrimRight(v.GetString("IMAGE_PUBLIC_BASE_URL"), "/"),
		LocalDir:            v.GetString("IMAGE_LOCAL_DIR"),
		Minio: MinioConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
	}

	cfg.Gate = GateConfig{
		ProofSecret:  v.GetString("GATE_PROOF_SECRET"),
		ProofTTL:     parseDuration(v.GetString("GATE_PROOF_TTL"), 24*time.Hour),
		CookiePrefix: v.GetString("GATE_COOKIE_PREFIX"),
		SecureCookie: v.GetBool("GATE_SECURE_COOKIE"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_VIEW_CACHE"),
		TTL:     parseDuration(v.GetString("VIEW_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Invalidation = InvalidationConfig{
		Workers:    v.GetInt("INVALIDATION_WORKERS"),
		MaxRetries: v.GetInt("INVALIDATION_RETRIES"),
		RetryDelay: parseDuration(v.GetString("INVALIDATION_RETRY_DELAY"), time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "cutreview")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "cutreview")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("IMAGE_HOST_DRIVER", ImageHostLocal)
	v.SetDefault("IMAGE_HOST_ENDPOINT", "https://api.imgbb.com/1/upload")
	v.SetDefault("IMAGE_HOST_API_KEY", "")
	v.SetDefault("IMAGE_HOST_TIMEOUT", "30s")
	v.SetDefault("IMAGE_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("IMAGE_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp")
	v.SetDefault("IMAGE_MAX_PER_ITEM", 4)
	v.SetDefault("IMAGE_MAX_REQUEST_BYTES", 0)
	v.SetDefault("IMAGE_MAX_BULK_REQUEST_BYTES", 64*1024*1024)
	v.SetDefault("IMAGE_PUBLIC_BASE_URL", "http://localhost:8080/uploads")
	v.SetDefault("IMAGE_LOCAL_DIR", "./uploads")
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "review-images")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("GATE_PROOF_SECRET", "dev_gate_secret")
	v.SetDefault("GATE_PROOF_TTL", "24h")
	v.SetDefault("GATE_COOKIE_PREFIX", "project_access_")
	v.SetDefault("GATE_SECURE_COOKIE", false)

	v.SetDefault("ENABLE_VIEW_CACHE", false)
	v.SetDefault("VIEW_CACHE_TTL", "5m")

	v.SetDefault("INVALIDATION_WORKERS", 2)
	v.SetDefault("INVALIDATION_RETRIES", 3)
	v.SetDefault("INVALIDATION_RETRY_DELAY", "1s")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
