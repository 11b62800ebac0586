// Package config loads runtime settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvStorageDriver = "DENTALCORE_STORAGE_DRIVER"
	EnvSQLitePath    = "DENTALCORE_SQLITE_PATH"
	EnvPostgresDSN   = "DENTALCORE_POSTGRES_DSN"
	EnvBlobDriver    = "DENTALCORE_BLOB_DRIVER"
	EnvBlobFSRoot    = "DENTALCORE_BLOB_FS_ROOT"
	EnvS3Bucket      = "DENTALCORE_BLOB_S3_BUCKET"
	EnvS3Region      = "DENTALCORE_BLOB_S3_REGION"
	EnvS3Endpoint    = "DENTALCORE_BLOB_S3_ENDPOINT"
	EnvS3PathStyle   = "DENTALCORE_BLOB_S3_PATH_STYLE"
	EnvS3AccessKeyID = "DENTALCORE_BLOB_S3_ACCESS_KEY_ID"
	EnvS3SecretKey   = "DENTALCORE_BLOB_S3_SECRET_ACCESS_KEY"
	EnvLogLevel      = "DENTALCORE_LOG_LEVEL"
	EnvLogFormat     = "DENTALCORE_LOG_FORMAT"
	EnvMetrics       = "DENTALCORE_METRICS"
	EnvMetricsFile   = "DENTALCORE_METRICS_FILE"
	EnvTraceFile     = "DENTALCORE_TRACE_FILE"
)

const (
	defaultStorageDriver = "sqlite"
	defaultSQLitePath    = "dental_clinic.db"
	defaultBlobFSRoot    = "./reports"
	defaultDotEnvFile    = ".env"
)

// Config is the full runtime configuration.
type Config struct {
	Storage StorageConfig
	Blob    BlobConfig
	Log     LogConfig
	Metrics MetricsConfig
	// TraceFile receives JSON-lines spans when set.
	TraceFile string
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string // memory|sqlite|postgres
	SQLitePath  string
	PostgresDSN string
}

// BlobConfig selects where exported reports are written.
type BlobConfig struct {
	Driver string // fs|memory|s3
	FSRoot string
	S3     S3Config
}

// S3Config carries bucket connection settings. Empty credentials defer to the
// default AWS chain.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  slog.Level
	Format string // text|json
}

// MetricsConfig selects the metrics exporter.
type MetricsConfig struct {
	Exporter string // none|expvar|prometheus
	// File receives a Prometheus text exposition on shutdown when set.
	File string
}

// Load reads the given .env files (or ./.env when none are given, ignoring a
// missing default file) and then builds a Config from the environment.
// Variables already present in the environment take precedence.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(defaultDotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", defaultDotEnvFile, err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Storage: StorageConfig{
			Driver:      strings.ToLower(getEnv(EnvStorageDriver, defaultStorageDriver)),
			SQLitePath:  getEnv(EnvSQLitePath, defaultSQLitePath),
			PostgresDSN: getEnv(EnvPostgresDSN, ""),
		},
		Blob: BlobConfig{
			Driver: strings.ToLower(getEnv(EnvBlobDriver, "fs")),
			FSRoot: getEnv(EnvBlobFSRoot, defaultBlobFSRoot),
			S3: S3Config{
				Bucket:          getEnv(EnvS3Bucket, ""),
				Region:          getEnv(EnvS3Region, ""),
				Endpoint:        getEnv(EnvS3Endpoint, ""),
				AccessKeyID:     getEnv(EnvS3AccessKeyID, ""),
				SecretAccessKey: getEnv(EnvS3SecretKey, ""),
			},
		},
		Log:       LogConfig{Format: strings.ToLower(getEnv(EnvLogFormat, "text"))},
		Metrics:   MetricsConfig{Exporter: strings.ToLower(getEnv(EnvMetrics, "none")), File: getEnv(EnvMetricsFile, "")},
		TraceFile: getEnv(EnvTraceFile, ""),
	}

	var err error
	if cfg.Blob.S3.PathStyle, err = parseBool(EnvS3PathStyle, getEnv(EnvS3PathStyle, "false")); err != nil {
		return Config{}, err
	}
	if err := cfg.Log.Level.UnmarshalText([]byte(getEnv(EnvLogLevel, "info"))); err != nil {
		return Config{}, fmt.Errorf("%s: %w", EnvLogLevel, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%s is required when %s=postgres", EnvPostgresDSN, EnvStorageDriver)
		}
	default:
		return fmt.Errorf("%s: unknown storage driver %q", EnvStorageDriver, c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("%s is required when %s=s3", EnvS3Bucket, EnvBlobDriver)
		}
	default:
		return fmt.Errorf("%s: unknown blob driver %q", EnvBlobDriver, c.Blob.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%s: unknown log format %q", EnvLogFormat, c.Log.Format)
	}
	switch c.Metrics.Exporter {
	case "none", "expvar", "prometheus":
	default:
		return fmt.Errorf("%s: unknown metrics exporter %q", EnvMetrics, c.Metrics.Exporter)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseBool(key, raw string) (bool, error) {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
