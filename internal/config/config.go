package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kapu/persona-avatar-bot-go/internal/constants"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
)

type Config struct {
	Records  RecordsConfig
	Search   SearchConfig
	Image    ImageConfig
	Artifact ArtifactConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

type RecordsConfig struct {
	APIURL      string
	APIToken    string
	PageSize    int
	AvatarField string
	AvatarShape string // "url" or "attachment"
	Timeout     time.Duration
}

type SearchConfig struct {
	APIKey               string
	EngineID             string
	MaxCandidates        int
	MaxQueries           int
	QueryDelay           time.Duration
	CacheTTL             time.Duration
	WikiFallback         bool
	OwnDomains           []string
	QuotaCooldownRecords int
}

type ImageConfig struct {
	TargetSize     int
	Quality        int
	MinDimension   int
	MaxAspectRatio float64
	MinBytes       int64
	MaxBytes       int64
	MaxPixels      int64
	FetchTimeout   time.Duration
}

type ArtifactConfig struct {
	Backend       string // "local" or "s3"
	Dir           string
	PublicBaseURL string
	TrustedHosts  []string
	S3            S3Config
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Enabled reports whether a Redis host was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (c PostgresConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

type PipelineConfig struct {
	RecordDelay           time.Duration
	ReplaceOnFetchFailure bool
	ReportFile            string
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Records: RecordsConfig{
			APIURL:      getEnv("RECORDS_API_URL", ""),
			APIToken:    getEnv("RECORDS_API_TOKEN", ""),
			PageSize:    getEnvInt("RECORDS_PAGE_SIZE", constants.APIConfig.RecordsPageSize),
			AvatarField: getEnv("RECORDS_AVATAR_FIELD", "Avatar"),
			AvatarShape: getEnv("RECORDS_AVATAR_SHAPE", "url"),
			Timeout:     time.Duration(getEnvInt("RECORDS_TIMEOUT_SECONDS", int(constants.APIConfig.RecordsTimeout/time.Second))) * time.Second,
		},
		Search: SearchConfig{
			APIKey:               getEnv("GOOGLE_SEARCH_API_KEY", ""),
			EngineID:             getEnv("GOOGLE_SEARCH_CX", ""),
			MaxCandidates:        getEnvInt("SEARCH_MAX_CANDIDATES", constants.SearchConfig.MaxCandidates),
			MaxQueries:           getEnvInt("SEARCH_MAX_QUERIES", constants.SearchConfig.MaxQueries),
			QueryDelay:           time.Duration(getEnvInt("SEARCH_DELAY_MS", int(constants.RateLimit.BetweenSearchQueries/time.Millisecond))) * time.Millisecond,
			CacheTTL:             time.Duration(getEnvInt("SEARCH_CACHE_TTL_HOURS", int(constants.SearchConfig.CacheTTL/time.Hour))) * time.Hour,
			WikiFallback:         getEnvBool("SEARCH_WIKI_FALLBACK", true),
			OwnDomains:           parseCommaSeparated(getEnv("SEARCH_OWN_DOMAINS", "")),
			QuotaCooldownRecords: getEnvInt("SEARCH_QUOTA_COOLDOWN_RECORDS", 0),
		},
		Image: ImageConfig{
			TargetSize:     getEnvInt("IMAGE_TARGET_SIZE", constants.ImageConfig.TargetSize),
			Quality:        getEnvInt("IMAGE_QUALITY", constants.ImageConfig.JPEGQuality),
			MinDimension:   getEnvInt("IMAGE_MIN_DIMENSION", constants.ImageConfig.MinDimension),
			MaxAspectRatio: getEnvFloat("IMAGE_MAX_ASPECT_RATIO", constants.ImageConfig.MaxAspectRatio),
			MinBytes:       int64(getEnvInt("IMAGE_MIN_BYTES", int(constants.ImageConfig.MinBytes))),
			MaxBytes:       int64(getEnvInt("IMAGE_MAX_BYTES", int(constants.ImageConfig.MaxBytes))),
			MaxPixels:      int64(getEnvInt("IMAGE_MAX_PIXELS", int(constants.ImageConfig.MaxPixels))),
			FetchTimeout:   time.Duration(getEnvInt("IMAGE_FETCH_TIMEOUT_SECONDS", int(constants.ImageConfig.FetchTimeout/time.Second))) * time.Second,
		},
		Artifact: ArtifactConfig{
			Backend:       strings.ToLower(getEnv("ARTIFACT_BACKEND", "local")),
			Dir:           getEnv("ARTIFACT_DIR", "public/avatars"),
			PublicBaseURL: strings.TrimRight(getEnv("ARTIFACT_PUBLIC_BASE_URL", ""), "/"),
			TrustedHosts:  parseCommaSeparated(getEnv("ARTIFACT_TRUSTED_HOSTS", "")),
			S3: S3Config{
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				Region:    getEnv("S3_REGION", "us-east-1"),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
				Bucket:    getEnv("S3_BUCKET", ""),
				Prefix:    getEnv("S3_PREFIX", "avatars"),
				UseSSL:    getEnvBool("S3_USE_SSL", true),
			},
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", ""),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "avatarbot"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "avatarbot"),
		},
		Pipeline: PipelineConfig{
			RecordDelay:           time.Duration(getEnvInt("PIPELINE_RECORD_DELAY_MS", int(constants.RateLimit.BetweenRecords/time.Millisecond))) * time.Millisecond,
			ReplaceOnFetchFailure: getEnvBool("PIPELINE_REPLACE_ON_FETCH_FAILURE", true),
			ReportFile:            getEnv("PIPELINE_REPORT_FILE", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", "logs/avatarbot.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the credentials and endpoints a batch cannot start without.
func (c *Config) Validate() error {
	if c.Records.APIURL == "" {
		return errors.NewConfigurationError("RECORDS_API_URL is required", "RECORDS_API_URL")
	}
	if c.Records.APIToken == "" {
		return errors.NewConfigurationError("RECORDS_API_TOKEN is required", "RECORDS_API_TOKEN")
	}
	if c.Records.AvatarShape != "url" && c.Records.AvatarShape != "attachment" {
		return errors.NewConfigurationError("RECORDS_AVATAR_SHAPE must be 'url' or 'attachment'", "RECORDS_AVATAR_SHAPE")
	}
	if c.Search.APIKey == "" {
		return errors.NewConfigurationError("GOOGLE_SEARCH_API_KEY is required", "GOOGLE_SEARCH_API_KEY")
	}
	if c.Search.EngineID == "" {
		return errors.NewConfigurationError("GOOGLE_SEARCH_CX is required", "GOOGLE_SEARCH_CX")
	}
	if c.Artifact.PublicBaseURL == "" {
		return errors.NewConfigurationError("ARTIFACT_PUBLIC_BASE_URL is required", "ARTIFACT_PUBLIC_BASE_URL")
	}
	if _, err := url.Parse(c.Artifact.PublicBaseURL); err != nil {
		return errors.NewConfigurationError("ARTIFACT_PUBLIC_BASE_URL is not a valid URL", "ARTIFACT_PUBLIC_BASE_URL")
	}

	switch c.Artifact.Backend {
	case "local":
		if c.Artifact.Dir == "" {
			return errors.NewConfigurationError("ARTIFACT_DIR is required for the local backend", "ARTIFACT_DIR")
		}
	case "s3":
		if c.Artifact.S3.Endpoint == "" || c.Artifact.S3.Bucket == "" {
			return errors.NewConfigurationError("S3_ENDPOINT and S3_BUCKET are required for the s3 backend", "S3_ENDPOINT")
		}
		if c.Artifact.S3.AccessKey == "" || c.Artifact.S3.SecretKey == "" {
			return errors.NewConfigurationError("S3_ACCESS_KEY and S3_SECRET_KEY are required for the s3 backend", "S3_ACCESS_KEY")
		}
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown ARTIFACT_BACKEND %q", c.Artifact.Backend), "ARTIFACT_BACKEND")
	}

	if c.Image.TargetSize <= 0 || c.Image.Quality <= 0 || c.Image.Quality > 100 {
		return errors.NewConfigurationError("IMAGE_TARGET_SIZE and IMAGE_QUALITY (1-100) must be positive", "IMAGE_TARGET_SIZE")
	}
	if c.Image.MinBytes >= c.Image.MaxBytes {
		return errors.NewConfigurationError("IMAGE_MIN_BYTES must be below IMAGE_MAX_BYTES", "IMAGE_MIN_BYTES")
	}
	return nil
}

// PublicHost returns the host part of the artifact public base URL.
func (c *Config) PublicHost() string {
	u, err := url.Parse(c.Artifact.PublicBaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
