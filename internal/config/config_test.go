package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/jobboard/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Addr:              ":9000",
		Env:               "production",
		JWTSecret:         "strongsecret",
		APITimeout:        5 * time.Second,
		DatabasePath:      "jobboard.db",
		TokenDuration:     time.Hour,
		ListingUpdateMode: config.UpdateModeReplace,
		Blob: config.BlobConfig{
			Backend:   config.BackendLocal,
			UploadDir: "uploads",
			MaxBytes:  5 << 20,
		},
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 15*time.Second, cfg.APITimeout)
	assert.Equal(t, time.Hour, cfg.TokenDuration)
	assert.Equal(t, 6, cfg.PasswordMinLength)
	assert.Equal(t, config.UpdateModeReplace, cfg.ListingUpdateMode)
	assert.Equal(t, config.BackendLocal, cfg.Blob.Backend)
	assert.Equal(t, int64(5*1024*1024), cfg.Blob.MaxBytes)
	assert.True(t, cfg.Blob.SniffContent)
	assert.Equal(t, 24*time.Hour, cfg.Blob.OrphanMaxAge)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("JOBBOARD_ADDR", ":7070")
	t.Setenv("JOBBOARD_TOKEN_DURATION", "2h")
	t.Setenv("JOBBOARD_PASSWORD_MIN_LENGTH", "0")
	t.Setenv("JOBBOARD_UPLOAD_DIR", "/srv/resumes")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, 2*time.Hour, cfg.TokenDuration)
	assert.Equal(t, 0, cfg.PasswordMinLength)
	assert.Equal(t, "/srv/resumes", cfg.Blob.UploadDir)
}

func TestLoadConfig_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "addr: \":8181\"\n" +
		"listing_update_mode: merge\n" +
		"token_duration: 30m\n" +
		"blob:\n  upload_dir: /tmp/cv\n  max_bytes: 1024\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8181", cfg.Addr)
	assert.Equal(t, config.UpdateModeMerge, cfg.ListingUpdateMode)
	assert.Equal(t, 30*time.Minute, cfg.TokenDuration)
	assert.Equal(t, "/tmp/cv", cfg.Blob.UploadDir)
	assert.Equal(t, int64(1024), cfg.Blob.MaxBytes)
	// untouched keys keep their env defaults
	assert.Equal(t, config.BackendLocal, cfg.Blob.Backend)
}

func TestLoadConfig_BadPath(t *testing.T) {
	_, err := config.LoadConfig("/path/that/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml :::"), 0o600))

	_, err := config.LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr error
	}{
		{name: "valid", mutate: func(c *config.Config) {}},
		{
			name:    "insecure secret in production",
			mutate:  func(c *config.Config) { c.JWTSecret = config.InsecureDefaultSecret },
			wantErr: config.ErrInsecureJWTSecret,
		},
		{
			name: "insecure secret in development",
			mutate: func(c *config.Config) {
				c.JWTSecret = config.InsecureDefaultSecret
				c.Env = "development"
			},
		},
		{
			name:    "empty secret",
			mutate:  func(c *config.Config) { c.JWTSecret = "" },
			wantErr: config.ErrInsecureJWTSecret,
		},
		{
			name:    "unknown update mode",
			mutate:  func(c *config.Config) { c.ListingUpdateMode = "patch" },
			wantErr: config.ErrUnknownUpdateMode,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *config.Config) { c.Blob.Backend = "ftp" },
			wantErr: config.ErrUnknownBackend,
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *config.Config) { c.Blob.Backend = config.BackendS3; c.Blob.S3Region = "us-east-1" },
			wantErr: config.ErrS3Incomplete,
		},
		{
			name: "s3 complete",
			mutate: func(c *config.Config) {
				c.Blob.Backend = config.BackendS3
				c.Blob.S3Bucket = "resumes"
				c.Blob.S3Region = "us-east-1"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := validConfig()
	cfg.LogFormat = "text"
	cfg.LogLevel = "debug"
	assert.NotNil(t, cfg.NewLogger())

	cfg.LogFormat = "json"
	cfg.LogLevel = "bogus"
	assert.NotNil(t, cfg.NewLogger())
}
