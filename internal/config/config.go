// ABOUTME: Configuration loading and parsing for mcp-console
// ABOUTME: Supports YAML or TOML files, env var expansion, env overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding an explicit config path
const EnvConfigPath = "MCP_CONSOLE_CONFIG"

// Storage drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config represents the complete mcp-console configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the backend service location
type ServerConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// StorageConfig holds one backend per session scope
type StorageConfig struct {
	Persistent ScopeConfig `yaml:"persistent" toml:"persistent"`
	Transient  ScopeConfig `yaml:"transient" toml:"transient"`
}

// ScopeConfig selects and configures a key-value backend
type ScopeConfig struct {
	Driver    string `yaml:"driver" toml:"driver"`
	Path      string `yaml:"path" toml:"path"`             // sqlite
	RedisAddr string `yaml:"redis_addr" toml:"redis_addr"` // redis
	KeyPrefix string `yaml:"key_prefix" toml:"key_prefix"` // redis
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// envOverrides are applied after the file is read. Unset variables leave
// the file value alone.
type envOverrides struct {
	BaseURL          string `env:"MCP_CONSOLE_URL"`
	Timeout          string `env:"MCP_CONSOLE_TIMEOUT"`
	LogLevel         string `env:"MCP_CONSOLE_LOG_LEVEL"`
	LogFormat        string `env:"MCP_CONSOLE_LOG_FORMAT"`
	PersistentDriver string `env:"MCP_CONSOLE_STORAGE_DRIVER"`
	PersistentPath   string `env:"MCP_CONSOLE_STORAGE_PATH"`
	RedisAddr        string `env:"MCP_CONSOLE_REDIS_ADDR"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:    "http://localhost:5000",
			TimeoutRaw: "30s",
		},
		Storage: StorageConfig{
			Persistent: defaultPersistent(),
			Transient:  defaultTransient(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultPersistent() ScopeConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		return ScopeConfig{Driver: DriverMemory}
	}
	return ScopeConfig{
		Driver: DriverSQLite,
		Path:   filepath.Join(home, ".config", "mcp-console", "session.db"),
	}
}

// defaultTransient lives in the per-login runtime dir so it does not
// outlive the user's OS session.
func defaultTransient() ScopeConfig {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("mcp-console-%d", os.Getuid()))
	} else {
		dir = filepath.Join(dir, "mcp-console")
	}
	return ScopeConfig{
		Driver: DriverSQLite,
		Path:   filepath.Join(dir, "session.db"),
	}
}

// ResolvePath returns the config file to use and whether it was named
// explicitly. Order: $MCP_CONSOLE_CONFIG, ./mcp-console.yaml,
// ~/.config/mcp-console/config.yaml.
func ResolvePath() (string, bool) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, true
	}
	if _, err := os.Stat("mcp-console.yaml"); err == nil {
		return "mcp-console.yaml", false
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".config", "mcp-console", "config.yaml"), false
}

// LoadDefault loads the resolved config file. A missing file that was not
// named explicitly yields defaults plus environment overrides.
func LoadDefault() (*Config, string, error) {
	path, explicit := ResolvePath()
	if path == "" {
		cfg, err := finish(Default())
		return cfg, "", err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		cfg, err := finish(Default())
		return cfg, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then
// MCP_CONSOLE_* overrides are applied on top of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.Storage.Persistent.Path = expandHome(cfg.Storage.Persistent.Path)
	cfg.Storage.Transient.Path = expandHome(cfg.Storage.Transient.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return err
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.BaseURL, env.BaseURL)
	set(&cfg.Server.TimeoutRaw, env.Timeout)
	set(&cfg.Logging.Level, env.LogLevel)
	set(&cfg.Logging.Format, env.LogFormat)
	set(&cfg.Storage.Persistent.Driver, env.PersistentDriver)
	set(&cfg.Storage.Persistent.Path, env.PersistentPath)
	set(&cfg.Storage.Persistent.RedisAddr, env.RedisAddr)
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url must be an http(s) URL, got %q", c.Server.BaseURL)
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative")
	}

	if err := c.Storage.Persistent.validate("storage.persistent"); err != nil {
		return err
	}
	if err := c.Storage.Transient.validate("storage.transient"); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (s ScopeConfig) validate(section string) error {
	switch s.Driver {
	case "", DriverMemory:
	case DriverSQLite:
		if s.Path == "" {
			return fmt.Errorf("%s.path is required for the sqlite driver", section)
		}
	case DriverRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("%s.redis_addr is required for the redis driver", section)
		}
	default:
		return fmt.Errorf("%s.driver %q is not one of memory, sqlite, redis", section, s.Driver)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.TimeoutRaw != "" {
		cfg.Server.Timeout, err = time.ParseDuration(cfg.Server.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Server.TimeoutRaw, err)
		}
	}

	return nil
}
