package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadResolvesRelativeSQLitePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"basic_config": {"server_address": ":8000", "driver": "sqlite3"},
		"databases": {"sqlite3": {"dsn": "data/app.db"}}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":8000" {
		t.Fatalf("unexpected server address %q", cfg.BasicConfig.ServerAddress)
	}
	want := filepath.Join(dir, "data", "app.db")
	if got := cfg.Databases["sqlite3"].DSN; got != want {
		t.Fatalf("dsn not resolved, got %q want %q", got, want)
	}
}

func TestLoadKeepsMemoryDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"basic_config": {"driver": "sqlite3"},
		"databases": {"sqlite3": {"dsn": ":memory:"}}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := cfg.Databases["sqlite3"].DSN; got != ":memory:" {
		t.Fatalf("memory dsn rewritten to %q", got)
	}
}

func TestLoadRejectsMissingDriverEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"basic_config": {"driver": "mysql"},
		"databases": {"sqlite3": {"dsn": ":memory:"}}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing driver entry")
	}
}
