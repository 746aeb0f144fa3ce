// Package config loads server configuration from an optional YAML file
// overlaid by environment variables, which always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the server needs at startup.
type Config struct {
	Addr         string `yaml:"addr"`
	MaxClients   int    `yaml:"max_clients"`
	TLSCertPath  string `yaml:"tls_cert_path"`
	TLSKeyPath   string `yaml:"tls_key_path"`
	ObsAddr      string `yaml:"obs_addr"`
	AuditDBPath  string `yaml:"audit_db_path"`
	BroadcastBuf int    `yaml:"broadcast_buffer"`
	RateLimit    int    `yaml:"rate_limit"`
}

// Defaults returns the baseline configuration before any file or env
// overlay is applied.
func Defaults() Config {
	return Config{
		Addr:         "0.0.0.0:8080",
		MaxClients:   100,
		ObsAddr:      "127.0.0.1:9090",
		BroadcastBuf: 256,
		RateLimit:    10,
	}
}

// Load builds a Config starting from Defaults, applying path (if non-empty)
// as a YAML overlay, then applying recognized environment variables on
// top.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CHAT_SERVER_ADDR")); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("CHAT_SERVER_MAX_CLIENTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxClients = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TLS_CERT_PATH")); v != "" {
		cfg.TLSCertPath = v
	}
	if v := strings.TrimSpace(os.Getenv("TLS_KEY_PATH")); v != "" {
		cfg.TLSKeyPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CHAT_OBS_ADDR")); v != "" {
		cfg.ObsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("CHAT_AUDIT_DB_PATH")); v != "" {
		cfg.AuditDBPath = v
	}
}

// TLSEnabled reports whether both cert and key paths were provided.
func (c Config) TLSEnabled() bool {
	return c.TLSCertPath != "" && c.TLSKeyPath != ""
}
