// Package config assembles the process configuration: optional YAML file,
// then environment overrides, then defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"adloader/internal/ads"
)

const (
	StoreNone     = "none"
	StoreScylla   = "scylla"
	StorePostgres = "postgres"
)

// Example file:
//
//	port: "8080"
//	log_level: debug
//	store: scylla
//	scylla:
//	  hosts: [scylla-1, scylla-2]
//	  keyspace: adloader
//	ads:
//	  server: https://platform.example.com
//	  card_cache_ttls: {fresh: 1m, max: 4m}
type Config struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
	AppSecret string `yaml:"app_secret"`
	Store     string `yaml:"store"`

	Scylla   Scylla     `yaml:"scylla"`
	Postgres Postgres   `yaml:"postgres"`
	Ads      ads.Config `yaml:"ads"`
}

type Scylla struct {
	Hosts       []string `yaml:"hosts"`
	Port        int      `yaml:"port"`
	Keyspace    string   `yaml:"keyspace"`
	Consistency string   `yaml:"consistency"`
	Replication int      `yaml:"replication"`
}

type Postgres struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

func Default() Config {
	return Config{
		Port:     "8080",
		LogLevel: "info",
		Store:    StoreNone,
		Scylla: Scylla{
			Port:        9042,
			Keyspace:    "adloader",
			Consistency: "QUORUM",
			Replication: 3,
		},
		Postgres: Postgres{MaxConns: 10},
		Ads:      ads.DefaultConfig(),
	}
}

// Load reads path when it is non-empty, applies env overrides and validates
// the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg = cfg.fromEnv()
	cfg.normalize()
	return cfg, cfg.validate()
}

func (c Config) fromEnv() Config {
	c.Port = envDefault("API_PORT", envDefault("PORT", c.Port))
	c.LogLevel = envDefault("LOG_LEVEL", c.LogLevel)
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		c.LogPretty, _ = strconv.ParseBool(v)
	}
	c.AppSecret = envDefault("APP_SECRET", c.AppSecret)
	c.Store = envDefault("EXPERIENCE_STORE", c.Store)

	if v := os.Getenv("SCYLLA_HOSTS"); v != "" {
		c.Scylla.Hosts = splitList(v)
	}
	c.Scylla.Port = envDefaultInt("SCYLLA_PORT", c.Scylla.Port)
	c.Scylla.Keyspace = envDefault("SCYLLA_KEYSPACE", c.Scylla.Keyspace)
	c.Scylla.Consistency = envDefault("SCYLLA_CONSISTENCY", c.Scylla.Consistency)
	c.Scylla.Replication = envDefaultInt("SCYLLA_RF", c.Scylla.Replication)

	c.Postgres.URL = envDefault("DB_URL", c.Postgres.URL)

	c.Ads = c.Ads.FromEnv()
	return c
}

func (c *Config) normalize() {
	if c.Port == "" {
		c.Port = "8080"
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = StoreNone
	}
	if c.Scylla.Keyspace == "" {
		c.Scylla.Keyspace = "adloader"
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 10
	}
	c.Ads = c.Ads.Normalize()
}

func (c Config) validate() error {
	if c.AppSecret == "" {
		return fmt.Errorf("APP_SECRET is required")
	}
	switch c.Store {
	case StoreNone:
	case StoreScylla:
		if len(c.Scylla.Hosts) == 0 {
			return fmt.Errorf("SCYLLA_HOSTS is required for the scylla store")
		}
	case StorePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("DB_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown experience store %q", c.Store)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDefault(key, val string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return val
}

func envDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
