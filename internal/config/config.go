package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// InsecureDefaultSecret is only accepted when Env is "development".
	InsecureDefaultSecret = "supersecretkey"

	UpdateModeReplace = "replace"
	UpdateModeMerge   = "merge"

	BackendLocal = "local"
	BackendS3    = "s3"
)

var (
	ErrInsecureJWTSecret = errors.New("config: jwt_secret must be changed outside development")
	ErrUnknownUpdateMode = errors.New("config: listing_update_mode must be replace or merge")
	ErrUnknownBackend    = errors.New("config: blob_backend must be local or s3")
	ErrS3Incomplete      = errors.New("config: s3 backend requires s3_bucket and s3_region")
)

type Config struct {
	Addr          string        `yaml:"addr" env:"JOBBOARD_ADDR, default=:9000"`
	Env           string        `yaml:"env" env:"JOBBOARD_ENV, default=production"`
	JWTSecret     string        `yaml:"jwt_secret" env:"JOBBOARD_JWT_SECRET, default=supersecretkey"`
	APITimeout    time.Duration `yaml:"timeout" env:"JOBBOARD_TIMEOUT, default=15s"`
	DatabasePath  string        `yaml:"database_path" env:"JOBBOARD_DATABASE_PATH, default=jobboard.db"`
	TokenDuration time.Duration `yaml:"token_duration" env:"JOBBOARD_TOKEN_DURATION, default=1h"`
	CORSOrigin    string        `yaml:"cors_origin" env:"JOBBOARD_CORS_ORIGIN, default=*"`

	// Password policy; 0 disables the length rule.
	PasswordMinLength int `yaml:"password_min_length" env:"JOBBOARD_PASSWORD_MIN_LENGTH, default=6"`

	ListingUpdateMode string `yaml:"listing_update_mode" env:"JOBBOARD_LISTING_UPDATE_MODE, default=replace"`

	Blob BlobConfig `yaml:"blob"`

	// Login/registration throttling per client address.
	AuthRateLimit float64 `yaml:"auth_rate_limit" env:"JOBBOARD_AUTH_RATE_LIMIT, default=5"`
	AuthRateBurst int     `yaml:"auth_rate_burst" env:"JOBBOARD_AUTH_RATE_BURST, default=10"`

	ReclaimWorkers int `yaml:"reclaim_workers" env:"JOBBOARD_RECLAIM_WORKERS, default=2"`

	LogFormat string `yaml:"log_format" env:"JOBBOARD_LOG_FORMAT, default=json"`
	LogLevel  string `yaml:"log_level" env:"JOBBOARD_LOG_LEVEL, default=info"`
}

type BlobConfig struct {
	Backend      string `yaml:"backend" env:"JOBBOARD_BLOB_BACKEND, default=local"`
	UploadDir    string `yaml:"upload_dir" env:"JOBBOARD_UPLOAD_DIR, default=uploads"`
	MaxBytes     int64  `yaml:"max_bytes" env:"JOBBOARD_BLOB_MAX_BYTES, default=5242880"`
	SniffContent bool   `yaml:"sniff_content" env:"JOBBOARD_BLOB_SNIFF, default=true"`

	S3Bucket           string `yaml:"s3_bucket" env:"JOBBOARD_S3_BUCKET"`
	S3Region           string `yaml:"s3_region" env:"JOBBOARD_S3_REGION"`
	S3Endpoint         string `yaml:"s3_endpoint" env:"JOBBOARD_S3_ENDPOINT"`
	S3Prefix           string `yaml:"s3_prefix" env:"JOBBOARD_S3_PREFIX, default=resumes/"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id" env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`

	// Orphan sweep; a zero interval disables it.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"JOBBOARD_SWEEP_INTERVAL, default=1h"`
	OrphanMaxAge  time.Duration `yaml:"orphan_max_age" env:"JOBBOARD_ORPHAN_MAX_AGE, default=24h"`
	SweepLockPath string        `yaml:"sweep_lock_path" env:"JOBBOARD_SWEEP_LOCK_PATH"`
}

// LoadConfig reads defaults and overrides from the environment, then applies
// the YAML file at path on top when path is not empty.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether internal error details may be exposed.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" || (c.JWTSecret == InsecureDefaultSecret && !c.IsDevelopment()) {
		return ErrInsecureJWTSecret
	}
	switch c.ListingUpdateMode {
	case UpdateModeReplace, UpdateModeMerge:
	default:
		return ErrUnknownUpdateMode
	}
	switch c.Blob.Backend {
	case BackendLocal:
	case BackendS3:
		if c.Blob.S3Bucket == "" || c.Blob.S3Region == "" {
			return ErrS3Incomplete
		}
	default:
		return ErrUnknownBackend
	}
	if c.Blob.MaxBytes <= 0 {
		return fmt.Errorf("config: blob.max_bytes must be positive")
	}
	if c.TokenDuration <= 0 {
		return fmt.Errorf("config: token_duration must be positive")
	}
	return nil
}

// NewLogger creates a structured logger from LogFormat and LogLevel.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
