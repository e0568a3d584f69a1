package ads

import (
	"os"
	"strconv"
	"strings"
	"time"

	"adloader/internal/freshcache"
)

// Example env config:
// ADS_SERVER=https://platform.example.com
// ADS_ENV_ROOT=http://content.internal
// ADS_CARD_ENDPOINT=/api/public/content/cards/
// ADS_CARD_CACHE_FRESH=1m
// ADS_CARD_CACHE_MAX=4m
// ADS_CARD_CACHE_SIZE=10000
// ADS_HTTP_TIMEOUT=10s
// ADS_PIXEL_URL=https://pixels.example.com/pixel.gif
type Config struct {
	// Server is the public origin of this platform. When PixelURL is unset
	// pixels are served from Server + DefaultPixelPath.
	Server        string        `yaml:"server"`
	EnvRoot       string        `yaml:"env_root"`
	CardEndpoint  string        `yaml:"card_endpoint"`
	CardCacheTTLs TTLs          `yaml:"card_cache_ttls"`
	CardCacheSize int           `yaml:"card_cache_size"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	PixelURL      string        `yaml:"pixel_url"`
}

type TTLs struct {
	Fresh time.Duration `yaml:"fresh"`
	Max   time.Duration `yaml:"max"`
}

const (
	DefaultEnvRoot      = "http://localhost"
	DefaultCardEndpoint = "/api/public/content/cards/"
	DefaultPixelPath    = "/pixel.gif"
	DefaultHTTPTimeout  = 10 * time.Second
)

func DefaultConfig() Config {
	return Config{
		EnvRoot:      DefaultEnvRoot,
		CardEndpoint: DefaultCardEndpoint,
		CardCacheTTLs: TTLs{
			Fresh: freshcache.DefaultFreshTTL,
			Max:   freshcache.DefaultMaxTTL,
		},
		CardCacheSize: freshcache.DefaultMaxEntries,
		HTTPTimeout:   DefaultHTTPTimeout,
	}
}

// FromEnv returns c with any ADS_* environment overrides applied.
func (c Config) FromEnv() Config {
	if v := strings.TrimSpace(os.Getenv("ADS_SERVER")); v != "" {
		c.Server = v
	}
	if v := strings.TrimSpace(os.Getenv("ADS_ENV_ROOT")); v != "" {
		c.EnvRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("ADS_CARD_ENDPOINT")); v != "" {
		c.CardEndpoint = v
	}
	if d, ok := envDuration("ADS_CARD_CACHE_FRESH"); ok {
		c.CardCacheTTLs.Fresh = d
	}
	if d, ok := envDuration("ADS_CARD_CACHE_MAX"); ok {
		c.CardCacheTTLs.Max = d
	}
	if v := os.Getenv("ADS_CARD_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.CardCacheSize = n
		}
	}
	if d, ok := envDuration("ADS_HTTP_TIMEOUT"); ok {
		c.HTTPTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("ADS_PIXEL_URL")); v != "" {
		c.PixelURL = v
	}
	return c
}

// Normalize fills defaults for unset fields and keeps fresh <= max.
func (c Config) Normalize() Config {
	if c.EnvRoot == "" {
		c.EnvRoot = DefaultEnvRoot
	}
	if c.CardEndpoint == "" {
		c.CardEndpoint = DefaultCardEndpoint
	}
	if c.CardCacheTTLs.Fresh <= 0 {
		c.CardCacheTTLs.Fresh = freshcache.DefaultFreshTTL
	}
	if c.CardCacheTTLs.Max <= 0 {
		c.CardCacheTTLs.Max = freshcache.DefaultMaxTTL
	}
	if c.CardCacheTTLs.Max < c.CardCacheTTLs.Fresh {
		c.CardCacheTTLs.Max = c.CardCacheTTLs.Fresh
	}
	if c.CardCacheSize <= 0 {
		c.CardCacheSize = freshcache.DefaultMaxEntries
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.PixelURL == "" && c.Server != "" {
		c.PixelURL = strings.TrimRight(c.Server, "/") + DefaultPixelPath
	}
	return c
}

func envDuration(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
