package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_TYPE", "")
	t.Setenv("DELETION_TIMEOUT", "")
	t.Setenv("ADMIN_RATE_LIMIT", "")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, 30*time.Second, cfg.DeletionTimeout)
	assert.Equal(t, 10, cfg.AdminRateLimit)
	assert.Equal(t, time.Minute, cfg.AdminRateWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DELETION_TIMEOUT", "45s")
	t.Setenv("ADMIN_RATE_LIMIT", "3")
	t.Setenv("S3_PATH_STYLE", "true")

	cfg := Load()

	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.Equal(t, 45*time.Second, cfg.DeletionTimeout)
	assert.Equal(t, 3, cfg.AdminRateLimit)
	assert.True(t, cfg.S3PathStyle)
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("ADMIN_RATE_LIMIT", "many")
	t.Setenv("ADMIN_RATE_WINDOW", "soon")
	t.Setenv("METRICS_ENABLED", "perhaps")

	cfg := Load()

	assert.Equal(t, 10, cfg.AdminRateLimit)
	assert.Equal(t, time.Minute, cfg.AdminRateWindow)
	assert.True(t, cfg.MetricsEnabled)
}

func TestLists(t *testing.T) {
	cfg := &Config{
		AdminEmails:    " admin@example.com, ,ops@example.com ",
		AllowedOrigins: "https://gallery.example.com",
	}

	assert.Equal(t, []string{"admin@example.com", "ops@example.com"}, cfg.AdminEmailList())
	assert.Equal(t, []string{"https://gallery.example.com"}, cfg.OriginList())
	assert.Empty(t, (&Config{}).AdminEmailList())
}
