package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeStartup(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Startup.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write startup file: %v", err)
	}
	return path
}

func TestLoadStartup(t *testing.T) {
	path := writeStartup(t, "# comment line\n"+
		"admin.password \"s3cret\"\r\n"+
		"vars.serverName \"My VU Server\" extra\n"+
		"lonely\n"+
		"\n"+
		"vars.maxPlayers 64\n"+
		"vars.maxPlayers 32\n")

	cfg, err := LoadStartup(path)
	if err != nil {
		t.Fatalf("LoadStartup returned error: %v", err)
	}

	if got := cfg["admin.password"]; got != "s3cret" {
		t.Fatalf("expected quotes stripped from password, got %q", got)
	}
	if got := cfg["vars.serverName"]; got != "My VU Server" {
		t.Fatalf("expected quoted value kept as one word, got %q", got)
	}
	if _, ok := cfg["lonely"]; ok {
		t.Fatalf("expected single-word line to be skipped")
	}
	if _, ok := cfg["#"]; ok {
		t.Fatalf("expected comment to be skipped")
	}
	if got := cfg["vars.maxPlayers"]; got != "32" {
		t.Fatalf("expected last duplicate to win, got %q", got)
	}
}

func TestLoadStartupMissingFile(t *testing.T) {
	if _, err := LoadStartup(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestStartupManagerRequireAdminPassword(t *testing.T) {
	path := writeStartup(t, "vars.serverName test\n")
	sm := NewStartupManager(path)

	if _, err := sm.RequireAdminPassword(); !errors.Is(err, ErrMissingAdminPassword) {
		t.Fatalf("expected ErrMissingAdminPassword, got %v", err)
	}

	if err := os.WriteFile(path, []byte("admin.password hunter2\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite startup file: %v", err)
	}

	pwd, err := sm.RequireAdminPassword()
	if err != nil {
		t.Fatalf("RequireAdminPassword returned error: %v", err)
	}
	if pwd != "hunter2" {
		t.Fatalf("expected hunter2, got %q", pwd)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove startup file: %v", err)
	}
	if _, err := sm.RequireAdminPassword(); err == nil || errors.Is(err, ErrMissingAdminPassword) {
		t.Fatalf("expected a read error for a missing file, got %v", err)
	}
}

func TestLaunchOptionsValidate(t *testing.T) {
	vuDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(vuDir, ServerBinary), nil, 0755); err != nil {
		t.Fatalf("failed to create vu.exe: %v", err)
	}

	opts := DefaultLaunchOptions()
	opts.Path = vuDir
	opts.InstancePath = t.TempDir()
	if err := opts.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opts.GamePath = t.TempDir()
	if err := opts.Validate(); err == nil {
		t.Fatalf("expected error when bf3.exe is missing")
	}

	opts.GamePath = ""
	opts.Path = t.TempDir()
	if err := opts.Validate(); err == nil {
		t.Fatalf("expected error when vu.exe is missing")
	}
}

func TestLaunchOptionsStartupConfigPath(t *testing.T) {
	opts := LaunchOptions{InstancePath: "/srv/vu"}
	if got := opts.StartupConfigPath(); got != filepath.Join("/srv/vu", "Admin", "Startup.txt") {
		t.Fatalf("unexpected startup path %s", got)
	}
	opts.StartupPath = "/tmp/custom.txt"
	if got := opts.StartupConfigPath(); got != "/tmp/custom.txt" {
		t.Fatalf("expected override, got %s", got)
	}
}

func TestParseFrequency(t *testing.T) {
	tests := map[string]Frequency{
		"":        FrequencyDefault,
		"default": FrequencyDefault,
		"high60":  FrequencyHigh60,
		"HIGH120": FrequencyHigh120,
	}
	for in, want := range tests {
		got, err := ParseFrequency(in)
		if err != nil {
			t.Fatalf("ParseFrequency(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseFrequency(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseFrequency("240"); err == nil {
		t.Fatalf("expected error for unknown frequency")
	}
}
