// Package config loads the application configuration from a YAML file and
// PROFILEDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/profile-desk/backend/internal/inspect"
	"github.com/profile-desk/backend/internal/listener"
)

// DefaultFile is the config file looked up when no path is given.
const DefaultFile = "profiledesk.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROFILEDESK"

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Backend   BackendConfig   `yaml:"backend" mapstructure:"backend"`
	Reconnect ReconnectConfig `yaml:"reconnect" mapstructure:"reconnect"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Security  SecurityConfig  `yaml:"security" mapstructure:"security"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`

	// File is the config file that was read.
	File string `yaml:"-" mapstructure:"-"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	BindAddress  string        `yaml:"bind_address" mapstructure:"bind_address"`
	EnableCORS   bool          `yaml:"enable_cors" mapstructure:"enable_cors"`
	AllowOrigins string        `yaml:"allow_origins" mapstructure:"allow_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	BodyLimit    string        `yaml:"body_limit" mapstructure:"body_limit"`
}

// BackendConfig points at the extraction service.
type BackendConfig struct {
	APIBaseURL           string        `yaml:"api_base_url" mapstructure:"api_base_url"`
	WSBaseURL            string        `yaml:"ws_base_url" mapstructure:"ws_base_url"`
	UploadTimeout        time.Duration `yaml:"upload_timeout" mapstructure:"upload_timeout"`
	MaxConcurrentUploads int           `yaml:"max_concurrent_uploads" mapstructure:"max_concurrent_uploads"`
	MaxMessageSizeKB     int           `yaml:"max_message_size_kb" mapstructure:"max_message_size_kb"`
}

// ReconnectConfig selects the push-channel reconnect policy.
type ReconnectConfig struct {
	Policy      string        `yaml:"policy" mapstructure:"policy"` // fixed | backoff
	Delay       time.Duration `yaml:"delay" mapstructure:"delay"`
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter      float64       `yaml:"jitter" mapstructure:"jitter"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// StorageConfig contains staging directories.
type StorageConfig struct {
	DataDirectory    string `yaml:"data_directory" mapstructure:"data_directory"`
	UploadsDirectory string `yaml:"uploads_directory" mapstructure:"uploads_directory"`
}

// SessionConfig tunes session lifetime and the per-session state store.
type SessionConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	KeepAliveWindow   time.Duration `yaml:"keep_alive_window" mapstructure:"keep_alive_window"`
	MaxSessions       int           `yaml:"max_sessions" mapstructure:"max_sessions"`
	NotificationLimit int           `yaml:"notification_limit" mapstructure:"notification_limit"`
	PendingTTL        time.Duration `yaml:"pending_ttl" mapstructure:"pending_ttl"`
	PendingPerJob     int           `yaml:"pending_per_job" mapstructure:"pending_per_job"`
}

// SecurityConfig restricts what can be selected.
type SecurityConfig struct {
	AllowedFileTypes string `yaml:"allowed_file_types" mapstructure:"allowed_file_types"`
	MaxFileSizeMB    int    `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level          string `yaml:"level" mapstructure:"level"`
	Format         string `yaml:"format" mapstructure:"format"`
	RequestLogging bool   `yaml:"request_logging" mapstructure:"request_logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.enable_cors", true)
	v.SetDefault("server.allow_origins", "*")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "2m")
	v.SetDefault("server.idle_timeout", "2m")
	v.SetDefault("server.body_limit", "512M")

	v.SetDefault("backend.api_base_url", "http://localhost:8000")
	v.SetDefault("backend.ws_base_url", "ws://localhost:8000/ws")
	v.SetDefault("backend.upload_timeout", "2m")
	v.SetDefault("backend.max_concurrent_uploads", 4)
	v.SetDefault("backend.max_message_size_kb", 1024)

	v.SetDefault("reconnect.policy", "fixed")
	v.SetDefault("reconnect.delay", "3s")
	v.SetDefault("reconnect.max_delay", "1m")
	v.SetDefault("reconnect.multiplier", 2.0)
	v.SetDefault("reconnect.jitter", 0.2)
	v.SetDefault("reconnect.max_attempts", 0)

	v.SetDefault("storage.data_directory", "./data")
	v.SetDefault("storage.uploads_directory", "./data/uploads")

	v.SetDefault("session.timeout", "30m")
	v.SetDefault("session.cleanup_interval", "5m")
	v.SetDefault("session.keep_alive_window", "5m")
	v.SetDefault("session.max_sessions", 10)
	v.SetDefault("session.notification_limit", 5)
	v.SetDefault("session.pending_ttl", "5m")
	v.SetDefault("session.pending_per_job", 32)

	v.SetDefault("security.allowed_file_types", ".pdf")
	v.SetDefault("security.max_file_size_mb", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.request_logging", true)
}

// Load reads configuration from path (DefaultFile when empty) and the
// environment. A missing file is created with the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}

	v := viper.New()
	setDefaults(v)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeDefaults(v, path); err != nil {
			return nil, err
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, eris.Wrap(err, "config: read file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.File = path
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// writeDefaults generates the config file on first run.
func writeDefaults(v *viper.Viper, path string) error {
	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return eris.Wrap(err, "config: marshal defaults")
	}
	header := "# Profile Desk configuration\n# This file is auto-generated on first run\n\n"
	if err := os.WriteFile(path, append([]byte(header), out...), 0644); err != nil {
		return eris.Wrap(err, "config: write default file")
	}
	return nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	var errs []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Backend.APIBaseURL == "" {
		errs = append(errs, "backend.api_base_url is required")
	}
	if c.Backend.WSBaseURL == "" {
		errs = append(errs, "backend.ws_base_url is required")
	}
	switch c.Reconnect.Policy {
	case "fixed", "backoff":
	default:
		errs = append(errs, fmt.Sprintf("reconnect.policy %q must be fixed or backoff", c.Reconnect.Policy))
	}
	if c.Reconnect.Delay <= 0 {
		errs = append(errs, "reconnect.delay must be positive")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// resolvePaths converts relative paths to absolute based on config file location.
func (c *Config) resolvePaths(configDir string) {
	if abs, err := filepath.Abs(configDir); err == nil {
		configDir = abs
	}
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
}

// GetServerAddr returns the server bind address.
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDirectory, c.Storage.UploadsDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return eris.Wrapf(err, "config: create directory %s", dir)
		}
	}
	return nil
}

// ReconnectPolicy builds the listener policy.
func (c *Config) ReconnectPolicy() listener.Policy {
	r := c.Reconnect
	if r.Policy == "backoff" {
		return listener.Policy{
			Delay:          r.Delay,
			MaxDelay:       r.MaxDelay,
			Multiplier:     r.Multiplier,
			JitterFraction: r.Jitter,
			MaxAttempts:    r.MaxAttempts,
		}
	}
	p := listener.FixedPolicy(r.Delay)
	p.MaxAttempts = r.MaxAttempts
	return p
}

// UploadPolicy builds the file selection policy.
func (c *Config) UploadPolicy() inspect.Policy {
	return inspect.ParsePolicy(c.Security.AllowedFileTypes, int64(c.Security.MaxFileSizeMB)<<20)
}

// MaxMessageSize returns the push-channel read limit in bytes.
func (c *Config) MaxMessageSize() int64 {
	return int64(c.Backend.MaxMessageSizeKB) << 10
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
