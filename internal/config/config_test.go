package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveConfigPathUsesLocalConfigs(t *testing.T) {
	root := t.TempDir()
	configsDir := filepath.Join(root, "configs")
	if err := os.MkdirAll(configsDir, 0755); err != nil {
		t.Fatalf("failed to create configs dir: %v", err)
	}
	configPath := filepath.Join(configsDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("api:\n  host: 0.0.0.0\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get cwd: %v", err)
	}
	defer func() {
		_ = os.Chdir(cwd)
	}()

	if err := os.Chdir(root); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}

	resolved := resolveConfigPath()
	if resolved != "./configs/config.yaml" {
		t.Fatalf("expected ./configs/config.yaml, got %s", resolved)
	}
}

func TestNormalizeStoragePathsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.normalizeStoragePaths("configs/config.yaml")

	if cfg.Storage.DataDir == "" {
		t.Fatalf("expected DataDir to be set")
	}
	if cfg.Storage.BackupDir == "" {
		t.Fatalf("expected BackupDir to be set")
	}
	if cfg.Storage.LogDir == "" {
		t.Fatalf("expected LogDir to be set")
	}
	if cfg.Backup.Destination.Path != cfg.Storage.BackupDir {
		t.Fatalf("expected local backup destination to default to %s, got %s", cfg.Storage.BackupDir, cfg.Backup.Destination.Path)
	}
}

func TestLoadAppliesFileAndEnvironment(t *testing.T) {
	root := t.TempDir()
	configPath := filepath.Join(root, "config.yaml")
	content := "watchdog:\n  interval: 45s\nmetrics:\n  interval: 10\ndatabase:\n  path: state.db\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if got := cfg.WatchdogInterval().String(); got != "45s" {
		t.Fatalf("expected watchdog interval 45s, got %s", got)
	}
	if cfg.Metrics.Interval != 10 {
		t.Fatalf("expected metrics interval 10, got %d", cfg.Metrics.Interval)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected LOG_LEVEL override, got %s", cfg.Logging.Level)
	}
	if cfg.Database.Path != filepath.Join(root, "state.db") {
		t.Fatalf("expected database path to be resolved, got %s", cfg.Database.Path)
	}
	if !cfg.Watchdog.Enabled {
		t.Fatalf("expected watchdog to stay enabled by default")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:    "api without secret",
			mutate:  func(c *Config) { c.API.Enabled = true; c.Auth.AdminPasswordHash = "hash" },
			wantErr: true,
		},
		{
			name: "api with secret and hash",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.Auth.JWTSecret = "a-long-enough-secret"
				c.Auth.AdminPasswordHash = "hash"
			},
		},
		{
			name:    "unexpanded secret",
			mutate:  func(c *Config) { c.RPC.Enabled = true; c.Auth.JWTSecret = "${JWT_SECRET}" },
			wantErr: true,
		},
		{
			name:    "bad watchdog interval",
			mutate:  func(c *Config) { c.Watchdog.Interval = "soon" },
			wantErr: true,
		},
		{
			name:    "sub-second watchdog interval",
			mutate:  func(c *Config) { c.Watchdog.Interval = "10ms" },
			wantErr: true,
		},
		{
			name:    "unknown backup destination",
			mutate:  func(c *Config) { c.Backup.Destination.Type = "ftp" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
