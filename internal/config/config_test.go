package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var allKeys = []string{
	EnvStorageDriver, EnvSQLitePath, EnvPostgresDSN, EnvBlobDriver, EnvBlobFSRoot,
	EnvS3Bucket, EnvS3Region, EnvS3Endpoint, EnvS3PathStyle, EnvS3AccessKeyID,
	EnvS3SecretKey, EnvLogLevel, EnvLogFormat, EnvMetrics, EnvMetricsFile, EnvTraceFile,
}

// clearEnv blanks every setting; blank values fall back to defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

// unsetEnv removes key for the duration of the test so .env files can set it.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SQLitePath != "dental_clinic.db" {
		t.Fatalf("storage defaults: %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != "fs" || cfg.Blob.FSRoot != "./reports" || cfg.Blob.S3.PathStyle {
		t.Fatalf("blob defaults: %+v", cfg.Blob)
	}
	if cfg.Log.Level != slog.LevelInfo || cfg.Log.Format != "text" {
		t.Fatalf("log defaults: %+v", cfg.Log)
	}
	if cfg.Metrics.Exporter != "none" || cfg.Metrics.File != "" || cfg.TraceFile != "" {
		t.Fatalf("observability defaults: %+v %q", cfg.Metrics, cfg.TraceFile)
	}
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStorageDriver, "POSTGRES")
	t.Setenv(EnvPostgresDSN, "postgres://db/clinic")
	t.Setenv(EnvBlobDriver, "s3")
	t.Setenv(EnvS3Bucket, "reports")
	t.Setenv(EnvS3Endpoint, "http://minio:9000")
	t.Setenv(EnvS3PathStyle, "true")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvMetrics, "prometheus")
	t.Setenv(EnvMetricsFile, "metrics.prom")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.PostgresDSN != "postgres://db/clinic" {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
	if cfg.Blob.S3.Bucket != "reports" || !cfg.Blob.S3.PathStyle || cfg.Blob.S3.Endpoint != "http://minio:9000" {
		t.Fatalf("s3: %+v", cfg.Blob.S3)
	}
	if cfg.Log.Level != slog.LevelDebug || cfg.Log.Format != "json" {
		t.Fatalf("log: %+v", cfg.Log)
	}
	if cfg.Metrics.Exporter != "prometheus" || cfg.Metrics.File != "metrics.prom" {
		t.Fatalf("metrics: %+v", cfg.Metrics)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"storage driver", map[string]string{EnvStorageDriver: "mysql"}, EnvStorageDriver},
		{"postgres without dsn", map[string]string{EnvStorageDriver: "postgres"}, EnvPostgresDSN},
		{"blob driver", map[string]string{EnvBlobDriver: "gcs"}, EnvBlobDriver},
		{"s3 without bucket", map[string]string{EnvBlobDriver: "s3"}, EnvS3Bucket},
		{"path style", map[string]string{EnvS3PathStyle: "sometimes"}, EnvS3PathStyle},
		{"log level", map[string]string{EnvLogLevel: "loud"}, EnvLogLevel},
		{"log format", map[string]string{EnvLogFormat: "xml"}, EnvLogFormat},
		{"metrics", map[string]string{EnvMetrics: "statsd"}, EnvMetrics},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error naming %s, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	clearEnv(t)
	unsetEnv(t, EnvSQLitePath)
	unsetEnv(t, EnvLogFormat)
	t.Setenv(EnvMetrics, "expvar")
	dir := t.TempDir()
	chdir(t, dir)
	content := EnvSQLitePath + "=from-file.db\n" + EnvLogFormat + "=json\n" + EnvMetrics + "=prometheus\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.SQLitePath != "from-file.db" || cfg.Log.Format != "json" {
		t.Fatalf(".env values not applied: %+v %+v", cfg.Storage, cfg.Log)
	}
	if cfg.Metrics.Exporter != "expvar" {
		t.Fatalf("environment must win over .env, got %q", cfg.Metrics.Exporter)
	}
}

func TestLoadWithoutDotEnv(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	if _, err := Load(); err != nil {
		t.Fatalf("missing default .env must be ignored: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("explicit missing file must fail")
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent to testing.T.Chdir in Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
