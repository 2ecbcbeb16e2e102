package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete MPLP runtime configuration
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	ConfigStore  ConfigStoreConfig  `mapstructure:"configstore"`
	Resources    ResourceConfig     `mapstructure:"resources"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
	Security     SecurityConfig     `mapstructure:"security"`
	Modules      ModulesConfig      `mapstructure:"modules"`
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// OrchestratorConfig controls the core orchestrator
type OrchestratorConfig struct {
	// ID identifies this orchestrator on every workflow it creates (default: "core-orchestrator")
	ID string `mapstructure:"id"`
	// DefaultStages are used when a workflow is created without explicit stages
	DefaultStages []string `mapstructure:"default_stages"`
	// DefaultPriority is applied to workflows that don't specify one (default: "normal")
	DefaultPriority string `mapstructure:"default_priority"`
	// OperationTimeoutSeconds bounds a single coordinated module operation (default: 30)
	OperationTimeoutSeconds int `mapstructure:"operation_timeout_seconds"`
	// DefinitionsFile is an optional YAML file of named workflow definitions
	DefinitionsFile string `mapstructure:"definitions_file"`
}

// ConfigStoreConfig controls the runtime key/value configuration store
type ConfigStoreConfig struct {
	// CacheEnabled turns on the read cache (default: true)
	CacheEnabled bool `mapstructure:"cache_enabled"`
	// CacheTTLSeconds is how long a cached read stays valid (default: 300)
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
	// HistoryRetention is the number of versions kept per key (default: 50)
	HistoryRetention int `mapstructure:"history_retention"`
	// EncryptionKey is a hex-encoded 32 byte key for encrypted values.
	// Empty generates a process-local key, so encrypted values don't survive restarts.
	EncryptionKey string `mapstructure:"encryption_key"`
}

// ResourceConfig controls the resource pool used for workflow allocations
type ResourceConfig struct {
	// AutoDetect sizes the pool from the host's CPU, memory and disk (default: true)
	AutoDetect bool `mapstructure:"auto_detect"`
	// CPUCores is the pool size when AutoDetect is off or detection fails
	CPUCores int `mapstructure:"cpu_cores"`
	// MemoryMB is the pool size when AutoDetect is off or detection fails
	MemoryMB int `mapstructure:"memory_mb"`
	// DiskSpaceMB is the pool size when AutoDetect is off or detection fails
	DiskSpaceMB int `mapstructure:"disk_space_mb"`
	// WarningThreshold logs a warning once utilization crosses this fraction (default: 0.8)
	WarningThreshold float64 `mapstructure:"warning_threshold"`
}

// MonitoringConfig controls the performance and error-handling managers
type MonitoringConfig struct {
	// Enabled controls whether new workflows are monitored at all (default: true)
	Enabled bool `mapstructure:"enabled"`
	// MaxMonitored caps concurrently monitored workflows (default: 100)
	MaxMonitored int `mapstructure:"max_monitored"`
	// ErrorHistory is the number of error records kept (default: 200)
	ErrorHistory int `mapstructure:"error_history"`
	// EventHistory is the number of bus events kept for inspection (default: 500)
	EventHistory int `mapstructure:"event_history"`
}

// SecurityConfig controls authorization of cross-module operations
type SecurityConfig struct {
	// DefaultAllow is the decision when no rule matches (default: true)
	DefaultAllow bool `mapstructure:"default_allow"`
	// Rules are evaluated in order; the first match decides
	Rules []SecurityRule `mapstructure:"rules"`
}

// SecurityRule matches an operation by glob patterns on source, target and operation.
// Empty patterns match everything.
type SecurityRule struct {
	Source    string `mapstructure:"source"`
	Target    string `mapstructure:"target"`
	Operation string `mapstructure:"operation"`
	Allow     bool   `mapstructure:"allow"`
}

// ModulesConfig controls which protocol modules are started and how
type ModulesConfig struct {
	// Enabled lists the modules to register (default: all nine)
	Enabled []string `mapstructure:"enabled"`
	// TimeoutSeconds is each module's configured operation timeout (default: 30)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// MaxConnections is each module's connection limit (default: 100)
	MaxConnections int `mapstructure:"max_connections"`
	// AutoComplete makes modules report step completion back to the workflow manager (default: true)
	AutoComplete bool `mapstructure:"auto_complete"`
	// ProtocolVersion is the runtime protocol version modules must be compatible with (default: "v1.0.0")
	ProtocolVersion string `mapstructure:"protocol_version"`
}

// ServerConfig controls the admin HTTP API
type ServerConfig struct {
	// Address is the listen address for `mplp serve` (default: "127.0.0.1:8080")
	Address string `mapstructure:"address"`
	// ShutdownTimeoutSeconds bounds graceful shutdown (default: 10)
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// StorageConfig controls persistence of config history
type StorageConfig struct {
	// Driver is "memory" (default) or "postgres"
	Driver string `mapstructure:"driver"`
	// DSN is the Postgres connection string when Driver is "postgres"
	DSN string `mapstructure:"dsn"`
}

// LoggingConfig controls runtime logging
type LoggingConfig struct {
	// Enabled controls whether logs are written to a file; otherwise stderr (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory; empty uses <config dir>/logs
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress"`
}

// StandardModules returns the module names registered by default, in startup order.
func StandardModules() []string {
	return []string{"context", "plan", "confirm", "trace", "role", "extension", "dialog", "collab", "network"}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			ID:                      "core-orchestrator",
			DefaultStages:           []string{"context", "plan", "confirm", "trace"},
			DefaultPriority:         "normal",
			OperationTimeoutSeconds: 30,
			DefinitionsFile:         "",
		},
		ConfigStore: ConfigStoreConfig{
			CacheEnabled:     true,
			CacheTTLSeconds:  300,
			HistoryRetention: 50,
			EncryptionKey:    "",
		},
		Resources: ResourceConfig{
			AutoDetect:       true,
			CPUCores:         16,
			MemoryMB:         32768,
			DiskSpaceMB:      102400,
			WarningThreshold: 0.8,
		},
		Monitoring: MonitoringConfig{
			Enabled:      true,
			MaxMonitored: 100,
			ErrorHistory: 200,
			EventHistory: 500,
		},
		Security: SecurityConfig{
			DefaultAllow: true,
			Rules:        []SecurityRule{},
		},
		Modules: ModulesConfig{
			Enabled:         StandardModules(),
			TimeoutSeconds:  30,
			MaxConnections:  100,
			AutoComplete:    true,
			ProtocolVersion: "v1.0.0",
		},
		Server: ServerConfig{
			Address:                "127.0.0.1:8080",
			ShutdownTimeoutSeconds: 10,
		},
		Storage: StorageConfig{
			Driver: "memory",
			DSN:    "",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// OperationTimeout returns the per-operation timeout as a time.Duration
func (c *OrchestratorConfig) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutSeconds) * time.Second
}

// CacheTTL returns the cache TTL as a time.Duration
func (c *ConfigStoreConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Timeout returns the module operation timeout as a time.Duration
func (c *ModulesConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown bound as a time.Duration
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// ResolveDir returns the log directory, defaulting to <config dir>/logs.
func (c *LoggingConfig) ResolveDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}

// SetDefaults registers default values with viper
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values on a specific viper instance
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Orchestrator defaults
	v.SetDefault("orchestrator.id", defaults.Orchestrator.ID)
	v.SetDefault("orchestrator.default_stages", defaults.Orchestrator.DefaultStages)
	v.SetDefault("orchestrator.default_priority", defaults.Orchestrator.DefaultPriority)
	v.SetDefault("orchestrator.operation_timeout_seconds", defaults.Orchestrator.OperationTimeoutSeconds)
	v.SetDefault("orchestrator.definitions_file", defaults.Orchestrator.DefinitionsFile)

	// Config store defaults
	v.SetDefault("configstore.cache_enabled", defaults.ConfigStore.CacheEnabled)
	v.SetDefault("configstore.cache_ttl_seconds", defaults.ConfigStore.CacheTTLSeconds)
	v.SetDefault("configstore.history_retention", defaults.ConfigStore.HistoryRetention)
	v.SetDefault("configstore.encryption_key", defaults.ConfigStore.EncryptionKey)

	// Resource defaults
	v.SetDefault("resources.auto_detect", defaults.Resources.AutoDetect)
	v.SetDefault("resources.cpu_cores", defaults.Resources.CPUCores)
	v.SetDefault("resources.memory_mb", defaults.Resources.MemoryMB)
	v.SetDefault("resources.disk_space_mb", defaults.Resources.DiskSpaceMB)
	v.SetDefault("resources.warning_threshold", defaults.Resources.WarningThreshold)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", defaults.Monitoring.Enabled)
	v.SetDefault("monitoring.max_monitored", defaults.Monitoring.MaxMonitored)
	v.SetDefault("monitoring.error_history", defaults.Monitoring.ErrorHistory)
	v.SetDefault("monitoring.event_history", defaults.Monitoring.EventHistory)

	// Security defaults
	v.SetDefault("security.default_allow", defaults.Security.DefaultAllow)
	v.SetDefault("security.rules", defaults.Security.Rules)

	// Module defaults
	v.SetDefault("modules.enabled", defaults.Modules.Enabled)
	v.SetDefault("modules.timeout_seconds", defaults.Modules.TimeoutSeconds)
	v.SetDefault("modules.max_connections", defaults.Modules.MaxConnections)
	v.SetDefault("modules.auto_complete", defaults.Modules.AutoComplete)
	v.SetDefault("modules.protocol_version", defaults.Modules.ProtocolVersion)

	// Server defaults
	v.SetDefault("server.address", defaults.Server.Address)
	v.SetDefault("server.shutdown_timeout_seconds", defaults.Server.ShutdownTimeoutSeconds)

	// Storage defaults
	v.SetDefault("storage.driver", defaults.Storage.Driver)
	v.SetDefault("storage.dsn", defaults.Storage.DSN)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from the global viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mplp")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mplp"
	}
	return filepath.Join(home, ".config", "mplp")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
