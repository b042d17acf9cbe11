package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. RACE_REDIS_ADDR.
const EnvPrefix = "RACE_"

type Config struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Redis       RedisConfig       `yaml:"redis" envPrefix:"REDIS_"`
	Postgres    PostgresConfig    `yaml:"postgres" envPrefix:"POSTGRES_"`
	Catalog     CatalogConfig     `yaml:"catalog" envPrefix:"CATALOG_"`
	Competition CompetitionConfig `yaml:"competition" envPrefix:"COMPETITION_"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	// TTL bounds presence markers and attempt dedupe keys.
	TTL     string `yaml:"ttl" env:"TTL"`
	Channel string `yaml:"channel" env:"CHANNEL"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type CatalogConfig struct {
	TTL     string `yaml:"ttl" env:"TTL"`
	Fixture string `yaml:"fixture" env:"FIXTURE"`
}

type CompetitionConfig struct {
	Cooldown        string  `yaml:"cooldown" env:"COOLDOWN"`
	CommitTimeout   string  `yaml:"commitTimeout" env:"COMMIT_TIMEOUT"`
	PollInterval    string  `yaml:"pollInterval" env:"POLL_INTERVAL"`
	LeaderboardSize int     `yaml:"leaderboardSize" env:"LEADERBOARD_SIZE"`
	Lookback        float64 `yaml:"lookback" env:"LOOKBACK"`
	Lookahead       float64 `yaml:"lookahead" env:"LOOKAHEAD"`
	StreamRetries   int     `yaml:"streamRetries" env:"STREAM_RETRIES"`
	RetryInterval   string  `yaml:"retryInterval" env:"RETRY_INTERVAL"`
}

// Load reads YAML config from path and applies RACE_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Seconds returns v, or fallback when v is not positive.
func Seconds(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
