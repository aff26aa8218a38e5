// Package config loads and validates the agent's configuration: the
// filesystem watch surface, the hot-swap policy knobs, the event-log
// backend selection, and the ambient logging/metrics/identity settings.
//
// Grounded on the teacher's internal/config package: LoadConfig/
// LoadConfigFromEnv/setDefaults/Validate keep the same viper-backed shape
// (SetDefault table, AutomaticEnv with a "." -> "_" key replacer,
// UnmarshalExact into a mapstructure-tagged struct, then a structural Validate
// pass), generalized from the alert-history domain's Storage/Server/
// Database/Redis/LLM/Webhook sections to the §6 hot-swap configuration
// surface and the two-profile (lite/standard) event-log backend choice.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rydnr/bytehot-go/internal/domain"
)

// ConfigError reports a configuration-loading failure classified per §4.10's
// closed error taxonomy, so callers can route it through internal/errclass
// without re-deriving its kind from the error text.
type ConfigError struct {
	Kind    domain.ErrorKind
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// DeploymentProfile selects the event-log backend and its required
// ambient infrastructure.
type DeploymentProfile string

const (
	// ProfileLite runs a single-node agent against an embedded SQLite
	// event log. No external dependencies.
	ProfileLite DeploymentProfile = "lite"

	// ProfileStandard runs against a shared, durable PostgreSQL event
	// log suitable for a fleet of watch processes.
	ProfileStandard DeploymentProfile = "standard"
)

// Config is the agent's full configuration surface.
type Config struct {
	// Profile selects the event-log backend: "lite" (SQLite,
	// single-node) or "standard" (PostgreSQL, durable/shared).
	Profile DeploymentProfile `mapstructure:"profile" validate:"required,oneof=lite standard"`

	Watch      WatchConfig      `mapstructure:"watch"`
	Rollback   RollbackConfig   `mapstructure:"rollback"`
	Instance   InstanceConfig   `mapstructure:"instance"`
	Validation ValidationConfig `mapstructure:"validation"`
	EventLog   EventLogConfig   `mapstructure:"event_log"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        LogConfig        `mapstructure:"log"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	App        AppConfig        `mapstructure:"app"`
}

// WatchConfig configures the filesystem watcher (§4.1).
type WatchConfig struct {
	// Paths is the list of directories to watch, recursively, for
	// artifact create/modify/delete events. Required: at least one
	// entry.
	Paths []string `mapstructure:"paths" validate:"required,min=1"`

	// PollInterval is handed to each watcher session, which stores it but
	// does not read it; cmd/agent also uses it as the drain timeout when
	// stopping sessions.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// SettlingAttempts is how many consecutive equal size reads a
	// just-created artifact must pass before the classifier considers it
	// settled; it also bounds the total number of reads.
	SettlingAttempts int `mapstructure:"settling_attempts" validate:"min=1"`

	// SettlingDelay is the pause between settling attempts.
	SettlingDelay time.Duration `mapstructure:"settling_delay"`
}

// RollbackConfig configures the snapshot & rollback manager (§4.9).
type RollbackConfig struct {
	// SnapshotRetentionPerClass is how many of the most recent
	// snapshots the manager retains per type key before evicting the
	// oldest.
	SnapshotRetentionPerClass int `mapstructure:"snapshot_retention_per_class" validate:"min=1"`

	// Timeout bounds how long a single Rollback call may run before it
	// is reported as RollbackTimeout rather than RollbackFailed.
	Timeout time.Duration `mapstructure:"timeout"`
}

// InstanceConfig configures instance tracking and the update strategy
// (§4.4-§4.6).
type InstanceConfig struct {
	// StrictMode escalates ANY per-instance update failure straight to
	// RollingBack, rather than tolerating partial failure.
	StrictMode bool `mapstructure:"strict_mode"`
}

// ValidationConfig configures the bytecode validator (§4.3).
type ValidationConfig struct {
	// SessionVerbosity names the validation-session detail level
	// ("summary" or "detailed"). Validate checks the value;
	// internal/validator does not read it.
	SessionVerbosity string `mapstructure:"session_verbosity" validate:"oneof=summary detailed"`
}

// EventLogConfig configures the event-log backend shared by both
// deployment profiles.
type EventLogConfig struct {
	// Root is the filesystem root the SQLite backend stores its
	// database file under (lite profile only).
	Root string `mapstructure:"root"`
}

// IdentityConfig configures the §4.12 user-identity resolution chain.
type IdentityConfig struct {
	// Override is the `user_identity_override` configuration value:
	// when set, it wins over every other resolution strategy.
	Override string `mapstructure:"override"`

	// EnvVar names the environment variable consulted when no override
	// is configured (e.g. "USER").
	EnvVar string `mapstructure:"env_var"`
}

// DatabaseConfig holds the PostgreSQL connection settings used by the
// "standard" profile's event-log backend.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	URL             string        `mapstructure:"url"`
}

// LogConfig holds logging configuration, consumed by pkg/logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AdminConfig holds the admin HTTP/websocket dashboard feed's server
// settings (§7 supplemented feature), consumed by internal/realtime.
type AdminConfig struct {
	Enabled                 bool          `mapstructure:"enabled"`
	Port                    int           `mapstructure:"port"`
	Host                    string        `mapstructure:"host"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// MetricsConfig holds Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// AppConfig holds process-level metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LoadConfig loads configuration from configPath (if non-empty) layered
// over defaults and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.UnmarshalExact(&cfg); err != nil {
		return nil, &ConfigError{Kind: domain.ErrorConfiguration, Message: fmt.Sprintf("unknown or malformed configuration keys: %s", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables and
// defaults only, skipping any file lookup.
func LoadConfigFromEnv() (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	var cfg Config
	if err := viper.UnmarshalExact(&cfg); err != nil {
		return nil, &ConfigError{Kind: domain.ErrorConfiguration, Message: fmt.Sprintf("unknown or malformed configuration keys: %s", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("profile", "lite")

	viper.SetDefault("watch.paths", []string{})
	viper.SetDefault("watch.poll_interval", "1s")
	viper.SetDefault("watch.settling_attempts", 3)
	viper.SetDefault("watch.settling_delay", "100ms")

	viper.SetDefault("rollback.snapshot_retention_per_class", 5)
	viper.SetDefault("rollback.timeout", "30s")

	viper.SetDefault("instance.strict_mode", false)

	viper.SetDefault("validation.session_verbosity", "summary")

	viper.SetDefault("event_log.root", "./data/eventlog")

	viper.SetDefault("identity.override", "")
	viper.SetDefault("identity.env_var", "USER")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "hotswap")
	viper.SetDefault("database.username", "hotswap")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 20)
	viper.SetDefault("database.min_connections", 2)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "10m")
	viper.SetDefault("database.connect_timeout", "5s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.filename", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("admin.enabled", true)
	viper.SetDefault("admin.port", 8090)
	viper.SetDefault("admin.host", "0.0.0.0")
	viper.SetDefault("admin.read_timeout", "15s")
	viper.SetDefault("admin.write_timeout", "15s")
	viper.SetDefault("admin.graceful_shutdown_timeout", "10s")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 8090)

	viper.SetDefault("app.name", "bytehot-agent")
	viper.SetDefault("app.version", "0.1.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// Validate checks the configuration's structural invariants by hand,
// including the cross-field and profile-dependent rules. The `validate`
// struct tags are not evaluated: no struct-tag validator runs over Config.
func (c *Config) Validate() error {
	if err := c.validateProfile(); err != nil {
		return fmt.Errorf("profile validation failed: %w", err)
	}

	if len(c.Watch.Paths) == 0 {
		return fmt.Errorf("watch.paths must list at least one directory")
	}

	if c.Watch.SettlingAttempts < 1 {
		return fmt.Errorf("watch.settling_attempts must be >= 1")
	}

	if c.Rollback.SnapshotRetentionPerClass < 1 {
		return fmt.Errorf("rollback.snapshot_retention_per_class must be >= 1")
	}

	switch c.Validation.SessionVerbosity {
	case "summary", "detailed":
	default:
		return fmt.Errorf("validation.session_verbosity must be 'summary' or 'detailed', got %q", c.Validation.SessionVerbosity)
	}

	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}

	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}

	return nil
}

func (c *Config) validateProfile() error {
	switch c.Profile {
	case ProfileLite:
		if c.EventLog.Root == "" {
			return fmt.Errorf("lite profile requires event_log.root")
		}
	case ProfileStandard:
		if c.Database.Host == "" {
			return fmt.Errorf("standard profile requires database.host")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("standard profile requires database.database")
		}
	default:
		return fmt.Errorf("invalid deployment profile: %s (must be 'lite' or 'standard')", c.Profile)
	}
	return nil
}

// GetDatabaseURL constructs the PostgreSQL DSN from the discrete fields,
// unless an explicit URL was configured.
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		sslMode,
	)
}

// IsDevelopment reports whether the process is running in development mode.
func (c *Config) IsDevelopment() bool { return c.App.Environment == "development" }

// IsProduction reports whether the process is running in production mode.
func (c *Config) IsProduction() bool { return c.App.Environment == "production" }

// IsDebug reports whether debug-level behavior is enabled.
func (c *Config) IsDebug() bool { return c.App.Debug || c.IsDevelopment() }

// IsLiteProfile reports whether the configured profile is "lite".
func (c *Config) IsLiteProfile() bool { return c.Profile == ProfileLite }

// IsStandardProfile reports whether the configured profile is "standard".
func (c *Config) IsStandardProfile() bool { return c.Profile == ProfileStandard }

// RequiresPostgres reports whether the configured profile needs a
// PostgreSQL connection.
func (c *Config) RequiresPostgres() bool { return c.Profile == ProfileStandard }

// GetProfileName returns a human-readable profile name.
func (c *Config) GetProfileName() string {
	switch c.Profile {
	case ProfileLite:
		return "Lite (embedded SQLite event log)"
	case ProfileStandard:
		return "Standard (PostgreSQL event log)"
	default:
		return string(c.Profile)
	}
}
