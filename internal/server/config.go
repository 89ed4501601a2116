// Package server provides configuration helpers that define runtime defaults,
// validation, and file/env loading for the hub.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/Tyrowin/relayhub/internal/logx"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:8080"

// Config holds the hub configuration.
type Config struct {
	Addr             string        `yaml:"addr"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	MaxMessageSize   int64         `yaml:"max_message_size"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongWait         time.Duration `yaml:"pong_wait"`
	WriteWait        time.Duration `yaml:"write_wait"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`

	// AcceptRetryInterval throttles the accept loop after a failed accept.
	AcceptRetryInterval time.Duration `yaml:"accept_retry_interval"`

	// Heartbeat is a cron spec for the periodic status line; empty disables it.
	Heartbeat string `yaml:"heartbeat"`

	Metrics bool        `yaml:"metrics"`
	Log     logx.Config `yaml:"log"`
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		Addr:                DefaultAddr,
		AllowedOrigins:      []string{"*"},
		MaxMessageSize:      64 << 10,
		PingInterval:        54 * time.Second,
		PongWait:            60 * time.Second,
		WriteWait:           10 * time.Second,
		HandshakeTimeout:    10 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		AcceptRetryInterval: 100 * time.Millisecond,
		Heartbeat:           "@every 30s",
		Metrics:             true,
		Log: logx.Config{
			Level:   "info",
			Console: true,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.AcceptRetryInterval <= 0 {
		cfg.AcceptRetryInterval = def.AcceptRetryInterval
	}
	cfg.Heartbeat = strings.TrimSpace(cfg.Heartbeat)
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// LoadConfig reads a YAML config file on top of the defaults, applies
// environment overrides and sanitizes the result. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	return sanitizeConfig(cfg), nil
}

func parseConfig(data []byte) (Config, error) {
	cfg := defaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnv(&cfg)
	sanitized := sanitizeConfig(cfg)
	return &sanitized
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv("HUB_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}
