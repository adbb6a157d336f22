package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"
)

// Config is the race CLI configuration: yaml file first, then TYPERACE_*
// env overrides, then flags.
type Config struct {
	Broker struct {
		Kind string `yaml:"kind"` // "nats" or "relay"
		URL  string `yaml:"url"`
	} `yaml:"broker"`
	Race struct {
		Name               string `yaml:"name"`
		JoinTimeoutSec     int    `yaml:"join_timeout_sec"`
		ProgressIntervalMs int    `yaml:"progress_interval_ms"`
	} `yaml:"race"`
	Leaderboard struct {
		Path string `yaml:"path"`
	} `yaml:"leaderboard"`
	LogPath string `yaml:"log_path"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Broker.Kind = "nats"
	cfg.Broker.URL = nats.DefaultURL
	cfg.Race.Name = "Player"
	cfg.Race.JoinTimeoutSec = 120
	cfg.Race.ProgressIntervalMs = 200
	cfg.Leaderboard.Path = "leaderboard.db"
	cfg.LogPath = "typerace.log"
	return cfg
}

// loadConfig reads the yaml file when present; a missing file just means
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Broker.Kind = getEnv("TYPERACE_BROKER_KIND", c.Broker.Kind)
	c.Broker.URL = getEnv("TYPERACE_BROKER_URL", c.Broker.URL)
	c.Race.Name = getEnv("TYPERACE_NAME", c.Race.Name)
	c.Race.JoinTimeoutSec = getEnvAsInt("TYPERACE_JOIN_TIMEOUT_SEC", c.Race.JoinTimeoutSec)
	c.Race.ProgressIntervalMs = getEnvAsInt("TYPERACE_PROGRESS_INTERVAL_MS", c.Race.ProgressIntervalMs)
	c.Leaderboard.Path = getEnv("TYPERACE_LEADERBOARD_PATH", c.Leaderboard.Path)
	c.LogPath = getEnv("TYPERACE_LOG_PATH", c.LogPath)
}

func (c Config) joinTimeout() time.Duration {
	return time.Duration(c.Race.JoinTimeoutSec) * time.Second
}

func (c Config) progressInterval() time.Duration {
	return time.Duration(c.Race.ProgressIntervalMs) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
