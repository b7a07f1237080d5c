package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"keyframes-backend/internal/config"
)

func setRequired(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_PUBLISHABLE_KEY", "anon-key")
	t.Setenv("SUPABASE_JWT_SECRET", "jwt-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "media", cfg.SupabaseMediaBucket)
	assert.Equal(t, config.ExportModeFunction, cfg.ExportMode)
	assert.Equal(t, "export-video", cfg.ExportFunctionName)
	assert.Equal(t, 2*time.Second, cfg.ExportPollInterval)
	assert.Equal(t, 3, cfg.ExportMaxRetries)
	assert.Equal(t, 1500*time.Millisecond, cfg.AutosaveDebounce)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("EXPORT_MODE", "simulated")
	t.Setenv("EXPORT_POLL_INTERVAL", "250")
	t.Setenv("AUTOSAVE_DEBOUNCE", "3s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.ExportModeSimulated, cfg.ExportMode)
	assert.Equal(t, 250*time.Millisecond, cfg.ExportPollInterval)
	assert.Equal(t, 3*time.Second, cfg.AutosaveDebounce)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoad_MissingSupabaseURL(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_PUBLISHABLE_KEY", "anon-key")
	t.Setenv("SUPABASE_JWT_SECRET", "jwt-secret")

	_, err := config.Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL is required")
}

func TestValidate_BadExportMode(t *testing.T) {
	cfg := &config.Config{
		SupabaseURL:            "https://example.supabase.co",
		SupabasePublishableKey: "k",
		SupabaseJWTSecret:      "s",
		ExportMode:             "local",
		ExportPollInterval:     time.Second,
		ExportMaxRetries:       1,
		AutosaveDebounce:       time.Second,
	}
	assert.Error(t, cfg.Validate())
}
