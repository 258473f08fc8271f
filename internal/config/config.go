package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Stats struct {
		// CacheTTL bounds how long a snapshot outlives the refresh cycle.
		CacheTTL string `yaml:"cacheTtl"`
		// RefreshInterval is the scheduled refresh cadence.
		RefreshInterval string `yaml:"refreshInterval"`
		// RefreshSecret guards the external refresh trigger endpoint.
		RefreshSecret string `yaml:"refreshSecret"`
		// FallbackTimeout bounds the gateway's direct counter-store read.
		FallbackTimeout string `yaml:"fallbackTimeout"`
	} `yaml:"stats"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty/invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
