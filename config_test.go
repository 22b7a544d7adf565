package hxstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hxstate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.GlobalName != "$hxstate" || cfg.GlobalContext != "__HXSTATE__" {
		t.Errorf("globals = %q, %q", cfg.GlobalName, cfg.GlobalContext)
	}
	if cfg.Transport != TransportJSON || cfg.Logger == nil {
		t.Errorf("Transport = %q, Logger = %v", cfg.Transport, cfg.Logger)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
global_context: __APP__
dev: true
fetch_delay: 200ms
transport: sealed
seal_key: s3cret
sensitive: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.GlobalContext != "__APP__" || cfg.GlobalName != "$hxstate" {
		t.Errorf("globals = %q, %q", cfg.GlobalContext, cfg.GlobalName)
	}
	if !cfg.Dev || !cfg.Sensitive || cfg.SealKey != "s3cret" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.FetchDelay != 200*time.Millisecond {
		t.Errorf("FetchDelay = %v, want 200ms", cfg.FetchDelay)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"sealed without key", "transport: sealed\n"},
		{"unknown transport", "transport: xml\n"},
		{"bad yaml", "dev: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.body)); err == nil {
				t.Error("LoadConfig() error = nil")
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Errorf("LoadConfig(missing) error = %v, want not exist", err)
	}
}

func TestPageConfig(t *testing.T) {
	p := NewServerPage(WithConfig(Config{GlobalContext: "__X__"}), WithPageID("req-1"), WithHotReload(true))
	if p.ID() != "req-1" {
		t.Errorf("ID() = %q", p.ID())
	}
	cfg := p.Config()
	if cfg.GlobalContext != "__X__" || cfg.GlobalName != "$hxstate" || !cfg.HotReload {
		t.Errorf("Config() = %+v", cfg)
	}
	if NewServerPage().ID() == "" {
		t.Error("page without ID option has no ID")
	}
	if p.Side() != Server || p.Side().String() != "server" || Client.String() != "client" {
		t.Errorf("Side() = %v", p.Side())
	}
}
