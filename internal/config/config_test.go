package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "GIN_MODE", "DOWNLOAD_DIR", "REGISTRY_BACKEND",
		"PROGRESS_POLL_MS", "STALE_AFTER_MINUTES", "REGISTRY_TTL_MINUTES",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "downloads", cfg.DownloadDir)
	assert.Equal(t, "mp3", cfg.AudioFormat)
	assert.Equal(t, RegistryBackendMemory, cfg.RegistryBackend)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, time.Duration(0), cfg.RegistryTTL())
	assert.Equal(t, time.Hour, cfg.StaleAfter())
}

func TestLoadJanitorScheduleCanBeDisabled(t *testing.T) {
	t.Setenv("JANITOR_SCHEDULE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.JanitorSchedule)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("REGISTRY_BACKEND", "REDIS")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("PROGRESS_POLL_MS", "50")
	t.Setenv("REGISTRY_TTL_MINUTES", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, RegistryBackendRedis, cfg.RegistryBackend)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 30*time.Minute, cfg.RegistryTTL())
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Config{
		Port:               "5000",
		DownloadDir:        "downloads",
		YtDlpPath:          "yt-dlp",
		AudioFormat:        "mp3",
		ProgressPollMillis: 200,
		RegistryBackend:    RegistryBackendMemory,
		StaleAfterMinutes:  60,
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"non numeric port":  func(c *Config) { c.Port = "http" },
		"empty download":    func(c *Config) { c.DownloadDir = " " },
		"zero poll":         func(c *Config) { c.ProgressPollMillis = 0 },
		"unknown backend":   func(c *Config) { c.RegistryBackend = "etcd" },
		"redis without url": func(c *Config) { c.RegistryBackend = RegistryBackendRedis; c.RedisURL = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: "http://a.example, http://b.example,,"}
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins())
}
