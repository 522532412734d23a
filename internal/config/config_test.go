package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GOOGLE_REDIRECT_URL", "")
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("TRANSCRIPT_TIMEOUT", "")

	cfg := Load()

	assert.True(t, cfg.DevMode)
	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, "http://localhost:3000", cfg.FrontendURL)
	assert.Equal(t, "http://localhost:8080/auth/callback", cfg.GoogleRedirectURL)
	assert.Equal(t, "/notabl/jwt-secret", cfg.JWTSecretParam)
	assert.Equal(t, 30*time.Second, cfg.TranscriptTimeout)
}

func TestLoad_BackendSelection(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{"explicit", map[string]string{"STORAGE_BACKEND": "Postgres"}, BackendPostgres},
		{"database url", map[string]string{"DATABASE_URL": "postgres://localhost/notabl"}, BackendPostgres},
		{"production default", map[string]string{"DEV_MODE": "false"}, BackendDynamoDB},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("STORAGE_BACKEND", "")
			t.Setenv("DATABASE_URL", "")
			t.Setenv("DEV_MODE", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tc.expected, Load().StorageBackend)
		})
	}
}

func TestLoad_ProductionRedirectURL(t *testing.T) {
	t.Setenv("DEV_MODE", "false")
	t.Setenv("GOOGLE_REDIRECT_URL", "")
	t.Setenv("FRONTEND_URL", "https://notabl.example.com")

	assert.Equal(t, "https://notabl.example.com/api/auth/callback", Load().GoogleRedirectURL)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DEV_MODE", "maybe")
	t.Setenv("TRANSCRIPT_TIMEOUT", "-5s")

	cfg := Load()
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 30*time.Second, cfg.TranscriptTimeout)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("NOTABL_DOTENV_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("NOTABL_DOTENV_PROBE") })

	LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "loaded", os.Getenv("NOTABL_DOTENV_PROBE"))
}
