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
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Quiz struct {
		DefaultTimerDuration int    `yaml:"defaultTimerDuration"`
		BasePoints           int    `yaml:"basePoints"`
		MaxTimeBonus         int    `yaml:"maxTimeBonus"`
		ResultsGap           string `yaml:"resultsGap"`
	} `yaml:"quiz"`
	Timer struct {
		Tick string `yaml:"tick"`
	} `yaml:"timer"`
	SSE struct {
		PushInterval string `yaml:"pushInterval"`
	} `yaml:"sse"`
	Notifier struct {
		PollInterval string `yaml:"pollInterval"`
	} `yaml:"notifier"`
	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`
}

// Load reads YAML config from path. A Mongo URI absent from the file falls
// back to the MONGODB_URI environment variable.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Mongo.URI == "" {
		cfg.Mongo.URI = os.Getenv("MONGODB_URI")
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
