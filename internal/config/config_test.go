package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"adloader/internal/ads"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adloader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, StoreNone, cfg.Store)
	require.Equal(t, ads.DefaultEnvRoot, cfg.Ads.EnvRoot)
	require.Equal(t, ads.DefaultCardEndpoint, cfg.Ads.CardEndpoint)
	require.Equal(t, time.Minute, cfg.Ads.CardCacheTTLs.Fresh)
	require.Equal(t, 4*time.Minute, cfg.Ads.CardCacheTTLs.Max)
	require.Empty(t, cfg.Ads.PixelURL)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
port: "9000"
app_secret: from-file
store: scylla
scylla:
  hosts: [scylla-1]
  keyspace: ads
ads:
  server: https://platform.example.com/
  card_cache_ttls:
    fresh: 30s
    max: 2m
`)
	t.Setenv("API_PORT", "9100")
	t.Setenv("SCYLLA_HOSTS", "a, b,")
	t.Setenv("ADS_CARD_CACHE_MAX", "10s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9100", cfg.Port)
	require.Equal(t, "from-file", cfg.AppSecret)
	require.Equal(t, []string{"a", "b"}, cfg.Scylla.Hosts)
	require.Equal(t, "ads", cfg.Scylla.Keyspace)
	require.Equal(t, 30*time.Second, cfg.Ads.CardCacheTTLs.Fresh)
	require.Equal(t, 30*time.Second, cfg.Ads.CardCacheTTLs.Max, "max is raised to fresh")
	require.Equal(t, "https://platform.example.com/pixel.gif", cfg.Ads.PixelURL)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("APP_SECRET", "")
	_, err := Load("")
	require.ErrorContains(t, err, "APP_SECRET")

	t.Setenv("APP_SECRET", "s3cret")
	t.Setenv("EXPERIENCE_STORE", "postgres")
	_, err = Load("")
	require.ErrorContains(t, err, "DB_URL")

	t.Setenv("EXPERIENCE_STORE", "redis")
	_, err = Load("")
	require.ErrorContains(t, err, "unknown experience store")

	_, err = Load(writeFile(t, "port: [oops"))
	require.ErrorContains(t, err, "parse config")
}
