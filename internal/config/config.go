package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the manager configuration
type Config struct {
	API      APIConfig      `yaml:"api" json:"api"`
	RPC      RPCConfig      `yaml:"rpc" json:"rpc"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Console  ConsoleConfig  `yaml:"console" json:"console"`
	Watchdog WatchdogConfig `yaml:"watchdog" json:"watchdog"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Backup   BackupConfig   `yaml:"backup" json:"backup"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	Enabled   bool            `yaml:"enabled" json:"enabled"`
	Host      string          `yaml:"host" json:"host"`
	Port      int             `yaml:"port" json:"port"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
}

// RateLimitConfig contains rate limiting settings. RequestsPerMinute covers
// reads; ControlPerMinute covers start, stop, restart, commands and backups;
// LoginPerMinute covers login attempts. A zero budget falls back to
// RequestsPerMinute.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
	ControlPerMinute  int  `yaml:"control_per_minute" json:"control_per_minute"`
	LoginPerMinute    int  `yaml:"login_per_minute" json:"login_per_minute"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// RPCConfig contains gRPC control service settings
type RPCConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Listen      string `yaml:"listen" json:"listen"`
	RequireAuth bool   `yaml:"require_auth" json:"require_auth"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	JWTSecret           string `yaml:"jwt_secret" json:"jwt_secret"`
	AccessTokenDuration string `yaml:"access_token_duration" json:"access_token_duration"`
	AdminUsername       string `yaml:"admin_username" json:"admin_username"`
	AdminPasswordHash   string `yaml:"admin_password_hash" json:"admin_password_hash"`
	BcryptCost          int    `yaml:"bcrypt_cost" json:"bcrypt_cost"`
}

// StorageConfig contains storage paths
type StorageConfig struct {
	DataDir   string `yaml:"data_dir" json:"data_dir"`
	BackupDir string `yaml:"backup_dir" json:"backup_dir"`
	LogDir    string `yaml:"log_dir" json:"log_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// ConsoleConfig contains console history and persistence settings
type ConsoleConfig struct {
	BufferLines int  `yaml:"buffer_lines" json:"buffer_lines"`
	Persist     bool `yaml:"persist" json:"persist"`
	MaxSize     int  `yaml:"max_size" json:"max_size"` // megabytes
	MaxBackups  int  `yaml:"max_backups" json:"max_backups"`
}

// WatchdogConfig contains the crash-restart policy
type WatchdogConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Interval string `yaml:"interval" json:"interval"`
}

// MetricsConfig contains metrics collection settings
type MetricsConfig struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	Interval      int  `yaml:"interval" json:"interval"` // seconds
	RetentionDays int  `yaml:"retention_days" json:"retention_days"`
}

// ScheduleConfig contains cron-driven jobs
type ScheduleConfig struct {
	Restart  string             `yaml:"restart" json:"restart"`
	Commands []ScheduledCommand `yaml:"commands" json:"commands"`
}

// ScheduledCommand is an RCON command sent on a cron schedule
type ScheduledCommand struct {
	Cron    string `yaml:"cron" json:"cron"`
	Command string `yaml:"command" json:"command"`
}

// BackupConfig contains instance backup settings
type BackupConfig struct {
	Enabled     bool                    `yaml:"enabled" json:"enabled"`
	Schedule    string                  `yaml:"schedule" json:"schedule"`
	Retention   int                     `yaml:"retention" json:"retention"`
	Compression string                  `yaml:"compression" json:"compression"`
	Destination BackupDestinationConfig `yaml:"destination" json:"destination"`
}

// BackupDestinationConfig selects where archives are uploaded
type BackupDestinationConfig struct {
	Type string `yaml:"type" json:"type"` // local, s3, sftp
	Path string `yaml:"path" json:"path"`

	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"-"`

	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	Username        string `yaml:"username" json:"username"`
	Password        string `yaml:"password" json:"-"`
	KeyPath         string `yaml:"key_path" json:"key_path"`
	KnownHostsPath  string `yaml:"known_hosts_path" json:"known_hosts_path"`
	TrustOnFirstUse bool   `yaml:"trust_on_first_use" json:"trust_on_first_use"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8080,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				ControlPerMinute:  30,
				LoginPerMinute:    10,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:5173"},
			},
		},
		RPC: RPCConfig{
			Enabled:     false,
			Listen:      "127.0.0.1:9090",
			RequireAuth: true,
		},
		Database: DatabaseConfig{
			Path: "./data/vuserver.db",
		},
		Auth: AuthConfig{
			AccessTokenDuration: "1h",
			AdminUsername:       "admin",
			BcryptCost:          12,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Console: ConsoleConfig{
			BufferLines: 1000,
			Persist:     true,
			MaxSize:     50,
			MaxBackups:  10,
		},
		Watchdog: WatchdogConfig{
			Enabled:  true,
			Interval: "30s",
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			Interval:      60,
			RetentionDays: 2,
		},
		Backup: BackupConfig{
			Enabled:     false,
			Retention:   7,
			Compression: "gzip",
			Destination: BackupDestinationConfig{
				Type: "local",
			},
		},
	}
}

// Load loads configuration from the given file (or CONFIG_PATH / default
// locations when empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	configPath := path
	if configPath == "" {
		configPath = GetConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if path != "" {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Override with environment variables
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	cfg.normalizeStoragePaths(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.Enabled || (c.RPC.Enabled && c.RPC.RequireAuth) {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set when the API or authenticated RPC is enabled")
		}
		if len(c.Auth.JWTSecret) > 1 && c.Auth.JWTSecret[0] == '$' && c.Auth.JWTSecret[1] == '{' {
			return fmt.Errorf("JWT_SECRET contains unexpanded environment variable")
		}
		if _, err := time.ParseDuration(c.Auth.AccessTokenDuration); err != nil {
			return fmt.Errorf("invalid access_token_duration: %w", err)
		}
	}

	if c.API.Enabled && c.Auth.AdminPasswordHash == "" {
		return fmt.Errorf("auth.admin_password_hash must be set when the API is enabled")
	}

	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 14 {
		return fmt.Errorf("bcrypt_cost must be between 10 and 14")
	}

	if c.Watchdog.Enabled {
		interval, err := time.ParseDuration(c.Watchdog.Interval)
		if err != nil {
			return fmt.Errorf("invalid watchdog interval: %w", err)
		}
		if interval < time.Second {
			return fmt.Errorf("watchdog interval must be at least 1s")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Interval <= 0 {
		return fmt.Errorf("metrics interval must be positive")
	}

	switch c.Backup.Destination.Type {
	case "", "local", "s3", "sftp":
	default:
		return fmt.Errorf("unsupported backup destination type: %s", c.Backup.Destination.Type)
	}

	return nil
}

// WatchdogInterval returns the parsed watchdog interval, falling back to 30s.
func (c *Config) WatchdogInterval() time.Duration {
	interval, err := time.ParseDuration(c.Watchdog.Interval)
	if err != nil || interval <= 0 {
		return 30 * time.Second
	}
	return interval
}

// AccessTokenTTL returns the parsed access token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	ttl, err := time.ParseDuration(c.Auth.AccessTokenDuration)
	if err != nil || ttl <= 0 {
		return time.Hour
	}
	return ttl
}

func resolveConfigPath() string {
	candidates := []string{"./configs/config.yaml", "./config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

// Save writes the configuration back to disk
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) normalizeStoragePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(rootDir, trimmed))
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = filepath.Join(rootDir, "data")
	}
	c.Storage.DataDir = resolvePath(c.Storage.DataDir)

	if strings.TrimSpace(c.Storage.BackupDir) == "" {
		c.Storage.BackupDir = filepath.Join(c.Storage.DataDir, "backups")
	}
	c.Storage.BackupDir = resolvePath(c.Storage.BackupDir)

	if strings.TrimSpace(c.Storage.LogDir) == "" {
		c.Storage.LogDir = filepath.Join(c.Storage.DataDir, "logs")
	}
	c.Storage.LogDir = resolvePath(c.Storage.LogDir)

	if strings.TrimSpace(c.Database.Path) != "" {
		c.Database.Path = resolvePath(c.Database.Path)
	}

	if c.Backup.Destination.Type == "local" || c.Backup.Destination.Type == "" {
		if strings.TrimSpace(c.Backup.Destination.Path) == "" {
			c.Backup.Destination.Path = c.Storage.BackupDir
		}
		c.Backup.Destination.Path = resolvePath(c.Backup.Destination.Path)
	}

	if c.Backup.Destination.Type == "sftp" && strings.TrimSpace(c.Backup.Destination.KnownHostsPath) == "" {
		c.Backup.Destination.KnownHostsPath = filepath.Join(c.Storage.DataDir, "known_hosts")
	}
}
