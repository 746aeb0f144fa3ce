package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "0.0.0.0:8080" || cfg.MaxClients != 100 {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.TLSEnabled() {
		t.Fatalf("expected TLS disabled by default")
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yaml")
	if err := os.WriteFile(path, []byte("addr: 0.0.0.0:9999\nmax_clients: 5\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9999" || cfg.MaxClients != 5 {
		t.Fatalf("unexpected overlay result: %#v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yaml")
	if err := os.WriteFile(path, []byte("addr: 0.0.0.0:9999\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CHAT_SERVER_ADDR", "0.0.0.0:7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "0.0.0.0:7777" {
		t.Fatalf("expected env to override file, got %q", cfg.Addr)
	}
}
