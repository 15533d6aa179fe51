package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultsValidate(t *testing.T) {
	c := defaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	c := defaults()
	c.Port = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for port 0")
	}
}

func TestValidateRejectsNonIPAddress(t *testing.T) {
	c := defaults()
	c.Address = "not-an-ip"
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for non-IP address")
	}
}

func TestValidateAcceptsAnyAndIPLiterals(t *testing.T) {
	for _, addr := range []string{AnyAddress, "127.0.0.1", "::1"} {
		c := defaults()
		c.Address = addr
		if err := c.Validate(); err != nil {
			t.Fatalf("address %q should validate, got %v", addr, err)
		}
	}
}

func TestNewWatcherLoadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulsenet.yaml")
	contents := "address: 127.0.0.1\nport: 9090\nworkers: 8\nlogLevel: DEBUG\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	cfg := w.Current()
	if cfg.Address != "127.0.0.1" || cfg.Port != 9090 || cfg.Workers != 8 || cfg.LogLevel != "DEBUG" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	// Unset fields fall back to defaults.
	if cfg.MaxBodySize != defaults().MaxBodySize {
		t.Fatalf("expected default MaxBodySize, got %d", cfg.MaxBodySize)
	}
}

func TestNewWatcherLoadsPropertiesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulsenet.properties")
	contents := "address=ANY\nport=7000\nworkers=2\nlogLevel=WARN\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	cfg := w.Current()
	if cfg.Port != 7000 || cfg.Workers != 2 || cfg.LogLevel != "WARN" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestNewWatcherWithFlagsOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulsenet.yaml")
	if err := os.WriteFile(path, []byte("port: 9090\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	if err := flags.Set("port", "6000"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	w, err := NewWatcherWithFlags(path, flags, nil)
	if err != nil {
		t.Fatalf("NewWatcherWithFlags: %v", err)
	}
	if got := w.Current().Port; got != 6000 {
		t.Fatalf("expected flag override to win, got port %d", got)
	}
}

func TestNewWatcherRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulsenet.yaml")
	if err := os.WriteFile(path, []byte("port: -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("expected validation error for negative port")
	}
}
