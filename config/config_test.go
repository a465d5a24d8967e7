package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("sqlite_db", "")
	t.Setenv("PORT", "")
	t.Setenv("MODE", "")
	t.Setenv("GIN_MODE", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "blogs.db", cfg.DBDSN)
	assert.Equal(t, "static/uploads", cfg.UploadsDir)
	assert.Equal(t, 8, cfg.MaxUploadMB)
	assert.False(t, cfg.IsProd)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_UnsupportedDriver(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_DotEnvFile(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("PORT", "")
	t.Setenv("MAX_UPLOAD_MB", "")
	t.Setenv("MODE", "")
	// godotenv never overrides variables that are already set, so make sure
	// the ones under test are absent.
	os.Unsetenv("SESSION_SECRET")
	os.Unsetenv("PORT")
	os.Unsetenv("MAX_UPLOAD_MB")
	os.Unsetenv("MODE")

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SESSION_SECRET=fromfile\nPORT=9090\nMAX_UPLOAD_MB=2\nMODE=production\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("SESSION_SECRET")
		os.Unsetenv("PORT")
		os.Unsetenv("MAX_UPLOAD_MB")
		os.Unsetenv("MODE")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "fromfile", cfg.SessionSecret)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2, cfg.MaxUploadMB)
	assert.True(t, cfg.IsProd)
}
