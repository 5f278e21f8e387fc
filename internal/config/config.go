package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config for the arena server. Values come from an optional YAML file
// (ARENA_CONFIG) with environment variables taking precedence.
type Config struct {
	ListenAddr     string        `yaml:"listen_addr"`
	OriginPatterns []string      `yaml:"origin_patterns"`
	SendBuffer     int           `yaml:"send_buffer"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	RoomTimeout    time.Duration `yaml:"room_timeout"`
	PollWait       time.Duration `yaml:"poll_wait"`
	PollSessionTTL time.Duration `yaml:"poll_session_ttl"`
}

func defaults() *Config {
	return &Config{
		ListenAddr:     ":8080",
		OriginPatterns: []string{"*"},
		SendBuffer:     32,
		SweepInterval:  30 * time.Second,
		RoomTimeout:    5 * time.Minute,
		PollWait:       25 * time.Second,
		PollSessionTTL: 60 * time.Second,
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("ARENA_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_ORIGINS")); v != "" {
		cfg.OriginPatterns = nil
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.OriginPatterns = append(cfg.OriginPatterns, s)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_SEND_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SendBuffer = n
		}
	}
	for _, f := range []struct {
		env string
		dst *time.Duration
	}{
		{"ARENA_SWEEP_INTERVAL", &cfg.SweepInterval},
		{"ARENA_ROOM_TIMEOUT", &cfg.RoomTimeout},
		{"ARENA_POLL_WAIT", &cfg.PollWait},
		{"ARENA_POLL_TTL", &cfg.PollSessionTTL},
	} {
		if v := strings.TrimSpace(os.Getenv(f.env)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.env, err)
			}
			*f.dst = d
		}
	}

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.SweepInterval <= 0 || cfg.RoomTimeout <= 0 {
		return nil, fmt.Errorf("sweep interval and room timeout must be positive")
	}
	return cfg, nil
}
