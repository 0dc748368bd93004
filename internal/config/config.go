package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the tool reads
const EnvPrefix = "SCHEMA_REPLAY_"

const appName = "schema-replay"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `json:"database"`
	Cache    CacheConfig    `json:"cache"`
	Logging  LoggingConfig  `json:"logging"`
	Replay   ReplayConfig   `json:"replay"`
	Dotnet   DotnetConfig   `json:"dotnet"`
	Watch    WatchConfig    `json:"watch"`
	Debug    DebugConfig    `json:"debug"`
}

// DatabaseConfig locates the snapshot history store
type DatabaseConfig struct {
	Path         string `json:"path"          env:"DB_PATH"          envDefault:"~/.config/schema-replay/snapshots.db"`
	QueryTimeout string `json:"query_timeout" env:"DB_QUERY_TIMEOUT" envDefault:"30s"`
}

// CacheConfig represents caching configuration
type CacheConfig struct {
	Directory   string `json:"directory"         env:"CACHE_DIR"          envDefault:"~/.cache/schema-replay"`
	MaxSizeMB   int    `json:"max_size_mb"       env:"CACHE_MAX_SIZE_MB"  envDefault:"50"`
	TTLHours    int    `json:"ttl_hours"         env:"CACHE_TTL_HOURS"    envDefault:"24"`
	CleanupFreq string `json:"cleanup_frequency" env:"CACHE_CLEANUP_FREQ" envDefault:"1h"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `json:"level"      env:"LOG_LEVEL"      envDefault:"info"`                                       // debug, info, warn, error
	Format    string `json:"format"     env:"LOG_FORMAT"     envDefault:"text"`                                       // text, json
	Output    string `json:"output"     env:"LOG_OUTPUT"     envDefault:"stderr"`                                     // stdout, stderr, file
	File      string `json:"file"       env:"LOG_FILE"       envDefault:"~/.config/schema-replay/logs/schema-replay.log"` // used when output is file
	AddSource bool   `json:"add_source" env:"LOG_ADD_SOURCE" envDefault:"false"`
}

// ReplayConfig tunes schema reconstruction
type ReplayConfig struct {
	UpOnly           bool `json:"up_only"            env:"UP_ONLY"            envDefault:"true"`
	Workers          int  `json:"workers"            env:"WORKERS"            envDefault:"4"`
	ExtractCacheSize int  `json:"extract_cache_size" env:"EXTRACT_CACHE_SIZE" envDefault:"512"`
}

// DotnetConfig configures the `dotnet ef` collaborator
type DotnetConfig struct {
	Binary  string `json:"binary"  env:"DOTNET"         envDefault:"dotnet"`
	Timeout string `json:"timeout" env:"DOTNET_TIMEOUT" envDefault:"5m"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	Debounce string `json:"debounce" env:"WATCH_DEBOUNCE" envDefault:"300ms"`
}

// DebugConfig represents debug configuration
type DebugConfig struct {
	Enabled bool `json:"enabled" env:"DEBUG"   envDefault:"false"`
	Verbose bool `json:"verbose" env:"VERBOSE" envDefault:"false"`
}

// LoadConfig loads configuration from file, environment variables, and command-line flags
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides layers, lowest first: struct defaults, the JSON
// config file, the environment (after loading .env), then flag overrides.
func LoadConfigWithOverrides(flagOverrides map[string]any) (*Config, error) {
	if err := loadDotEnv(dotEnvPath()); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config, err := DefaultConfig()
	if err != nil {
		return nil, err
	}

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvironment(config); err != nil {
		return nil, err
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// DefaultConfig returns the configuration with only envDefault values applied
func DefaultConfig() (*Config, error) {
	config := &Config{}
	if err := env.ParseWithOptions(config, env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{},
	}); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	return config, nil
}

// applyEnvironment overlays only the values the environment actually changes,
// so a config file value survives when no variable is set
func applyEnvironment(config *Config) error {
	defaults, err := DefaultConfig()
	if err != nil {
		return err
	}

	fromEnv := &Config{}
	if err := env.ParseWithOptions(fromEnv, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	overlayChanged(config, defaults, fromEnv)

	return nil
}

// loadDotEnv loads a .env file without overriding variables already set
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return err
	}

	return nil
}

func dotEnvPath() string {
	if p, ok := os.LookupEnv(EnvPrefix + "ENV_FILE"); ok {
		return expandPath(p)
	}

	return ".env"
}

// loadConfigFromFile decodes the JSON file over config; absent keys keep
// their current values
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]any) error {
	for key, value := range overrides {
		switch key {
		case "db-path":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Path = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "cache-dir":
			if str, ok := value.(string); ok && str != "" {
				config.Cache.Directory = str
			}
		case "dotnet":
			if str, ok := value.(string); ok && str != "" {
				config.Dotnet.Binary = str
			}
		case "verbose":
			if b, ok := value.(bool); ok {
				config.Debug.Verbose = b
			}
		case "debug":
			if b, ok := value.(bool); ok {
				config.Debug.Enabled = b
			}
		case "up-only":
			if b, ok := value.(bool); ok {
				config.Replay.UpOnly = b
			}
		case "workers":
			if n, ok := value.(int); ok && n > 0 {
				config.Replay.Workers = n
			}
		default:
			return fmt.Errorf("unknown override: %s", key)
		}
	}

	if config.Debug.Enabled || config.Debug.Verbose {
		config.Logging.Level = "debug"
	}

	return nil
}

// overlayChanged copies into target every leaf of overlay that differs from base
func overlayChanged(target, base, overlay *Config) {
	var walk func(t, b, o reflect.Value)
	walk = func(t, b, o reflect.Value) {
		if t.Kind() == reflect.Struct {
			for i := range t.NumField() {
				walk(t.Field(i), b.Field(i), o.Field(i))
			}

			return
		}

		if !reflect.DeepEqual(b.Interface(), o.Interface()) {
			t.Set(o)
		}
	}

	walk(reflect.ValueOf(target).Elem(), reflect.ValueOf(base).Elem(), reflect.ValueOf(overlay).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	durations := map[string]string{
		"database query timeout":  config.Database.QueryTimeout,
		"cache cleanup frequency": config.Cache.CleanupFreq,
		"dotnet timeout":          config.Dotnet.Timeout,
		"watch debounce":          config.Watch.Debounce,
	}
	for name, value := range durations {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Replay.Workers <= 0 {
		return fmt.Errorf("replay workers must be positive: %d", config.Replay.Workers)
	}

	if config.Replay.ExtractCacheSize <= 0 {
		return fmt.Errorf("extract cache size must be positive: %d", config.Replay.ExtractCacheSize)
	}

	if config.Cache.MaxSizeMB <= 0 {
		return fmt.Errorf("cache max size must be positive: %d", config.Cache.MaxSizeMB)
	}

	if config.Dotnet.Binary == "" {
		return errors.New("dotnet binary must not be empty")
	}

	return nil
}

// CacheTTL returns the cache entry lifetime
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// CacheCleanupFreq returns the parsed cleanup interval
func (c *Config) CacheCleanupFreq() time.Duration {
	d, _ := time.ParseDuration(c.Cache.CleanupFreq)
	return d
}

// DotnetTimeout returns the parsed per-invocation timeout
func (c *Config) DotnetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Dotnet.Timeout)
	return d
}

// WatchDebounce returns the parsed debounce interval
func (c *Config) WatchDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Watch.Debounce)
	return d
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the configuration file location
func ConfigPath() string {
	return getConfigPath()
}

func getConfigPath() string {
	if configPath := os.Getenv(EnvPrefix + "CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	return filepath.Join(GetConfigDir(), "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Database.Path = expandPath(c.Database.Path)
	c.Cache.Directory = expandPath(c.Cache.Directory)
	c.Logging.File = expandPath(c.Logging.File)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", appName)
	}

	return filepath.Join(homeDir, ".config", appName)
}

// EnsureDirectories creates the directories the configured paths live in
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Database.Path),
		c.Cache.Directory,
	}

	if strings.EqualFold(c.Logging.Output, "file") {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
