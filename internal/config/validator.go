package config

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/mod/semver"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "configstore.history_retention")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidPriorities returns the list of valid workflow priorities
func ValidPriorities() []string {
	return []string{"low", "normal", "high", "critical"}
}

// ValidStorageDrivers returns the list of valid storage drivers
func ValidStorageDrivers() []string {
	return []string{"memory", "postgres"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateOrchestrator()...)
	errors = append(errors, c.validateConfigStore()...)
	errors = append(errors, c.validateResources()...)
	errors = append(errors, c.validateMonitoring()...)
	errors = append(errors, c.validateSecurity()...)
	errors = append(errors, c.validateModules()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateStorage()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateOrchestrator validates the OrchestratorConfig
func (c *Config) validateOrchestrator() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Orchestrator.ID) == "" {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.id",
			Value:   c.Orchestrator.ID,
			Message: "cannot be empty",
		})
	}

	if len(c.Orchestrator.DefaultStages) == 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.default_stages",
			Value:   c.Orchestrator.DefaultStages,
			Message: "must list at least one stage",
		})
	}
	for i, stage := range c.Orchestrator.DefaultStages {
		if !slices.Contains(StandardModules(), stage) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("orchestrator.default_stages[%d]", i),
				Value:   stage,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(StandardModules(), ", ")),
			})
		}
	}

	if !slices.Contains(ValidPriorities(), c.Orchestrator.DefaultPriority) {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.default_priority",
			Value:   c.Orchestrator.DefaultPriority,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidPriorities(), ", ")),
		})
	}

	const maxOperationTimeout = 3600
	if c.Orchestrator.OperationTimeoutSeconds < 1 || c.Orchestrator.OperationTimeoutSeconds > maxOperationTimeout {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.operation_timeout_seconds",
			Value:   c.Orchestrator.OperationTimeoutSeconds,
			Message: fmt.Sprintf("must be between 1 and %d", maxOperationTimeout),
		})
	}

	return errors
}

// validateConfigStore validates the ConfigStoreConfig
func (c *Config) validateConfigStore() []ValidationError {
	var errors []ValidationError

	if c.ConfigStore.CacheTTLSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "configstore.cache_ttl_seconds",
			Value:   c.ConfigStore.CacheTTLSeconds,
			Message: "must be non-negative",
		})
	}

	const maxRetention = 10000
	if c.ConfigStore.HistoryRetention < 1 {
		errors = append(errors, ValidationError{
			Field:   "configstore.history_retention",
			Value:   c.ConfigStore.HistoryRetention,
			Message: "must be at least 1",
		})
	}
	if c.ConfigStore.HistoryRetention > maxRetention {
		errors = append(errors, ValidationError{
			Field:   "configstore.history_retention",
			Value:   c.ConfigStore.HistoryRetention,
			Message: fmt.Sprintf("exceeds maximum of %d", maxRetention),
		})
	}

	if key := c.ConfigStore.EncryptionKey; key != "" {
		raw, err := hex.DecodeString(key)
		if err != nil || len(raw) != 32 {
			// Never echo the key back in the error.
			errors = append(errors, ValidationError{
				Field:   "configstore.encryption_key",
				Value:   "<redacted>",
				Message: "must be 64 hex characters (32 bytes)",
			})
		}
	}

	return errors
}

// validateResources validates the ResourceConfig
func (c *Config) validateResources() []ValidationError {
	var errors []ValidationError

	fields := []struct {
		name  string
		value int
	}{
		{"resources.cpu_cores", c.Resources.CPUCores},
		{"resources.memory_mb", c.Resources.MemoryMB},
		{"resources.disk_space_mb", c.Resources.DiskSpaceMB},
	}
	for _, f := range fields {
		if f.value < 1 {
			errors = append(errors, ValidationError{
				Field:   f.name,
				Value:   f.value,
				Message: "must be at least 1",
			})
		}
	}

	if c.Resources.WarningThreshold <= 0 || c.Resources.WarningThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "resources.warning_threshold",
			Value:   c.Resources.WarningThreshold,
			Message: "must be in (0, 1]",
		})
	}

	return errors
}

// validateMonitoring validates the MonitoringConfig
func (c *Config) validateMonitoring() []ValidationError {
	var errors []ValidationError

	if c.Monitoring.MaxMonitored < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitoring.max_monitored",
			Value:   c.Monitoring.MaxMonitored,
			Message: "must be at least 1",
		})
	}
	if c.Monitoring.ErrorHistory < 0 {
		errors = append(errors, ValidationError{
			Field:   "monitoring.error_history",
			Value:   c.Monitoring.ErrorHistory,
			Message: "must be non-negative",
		})
	}
	if c.Monitoring.EventHistory < 0 {
		errors = append(errors, ValidationError{
			Field:   "monitoring.event_history",
			Value:   c.Monitoring.EventHistory,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateSecurity validates every rule pattern compiles
func (c *Config) validateSecurity() []ValidationError {
	var errors []ValidationError

	for i, rule := range c.Security.Rules {
		patterns := []struct {
			name    string
			pattern string
		}{
			{"source", rule.Source},
			{"target", rule.Target},
			{"operation", rule.Operation},
		}
		for _, p := range patterns {
			if p.pattern == "" {
				continue
			}
			if _, err := glob.Compile(p.pattern); err != nil {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("security.rules[%d].%s", i, p.name),
					Value:   p.pattern,
					Message: fmt.Sprintf("invalid glob pattern: %v", err),
				})
			}
		}
	}

	return errors
}

// validateModules validates the ModulesConfig
func (c *Config) validateModules() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for i, name := range c.Modules.Enabled {
		field := fmt.Sprintf("modules.enabled[%d]", i)
		if !slices.Contains(StandardModules(), name) {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(StandardModules(), ", ")),
			})
			continue
		}
		if seen[name] {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: "duplicate module",
			})
		}
		seen[name] = true
	}

	if c.Modules.TimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "modules.timeout_seconds",
			Value:   c.Modules.TimeoutSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Modules.MaxConnections < 1 {
		errors = append(errors, ValidationError{
			Field:   "modules.max_connections",
			Value:   c.Modules.MaxConnections,
			Message: "must be at least 1",
		})
	}
	if !semver.IsValid(c.Modules.ProtocolVersion) {
		errors = append(errors, ValidationError{
			Field:   "modules.protocol_version",
			Value:   c.Modules.ProtocolVersion,
			Message: "must be a semantic version such as v1.0.0",
		})
	}

	return errors
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Address == "" {
		errors = append(errors, ValidationError{
			Field:   "server.address",
			Value:   c.Server.Address,
			Message: "cannot be empty",
		})
	}
	if c.Server.ShutdownTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "server.shutdown_timeout_seconds",
			Value:   c.Server.ShutdownTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateStorage validates the StorageConfig
func (c *Config) validateStorage() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidStorageDrivers(), c.Storage.Driver) {
		errors = append(errors, ValidationError{
			Field:   "storage.driver",
			Value:   c.Storage.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStorageDrivers(), ", ")),
		})
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.dsn",
			Value:   c.Storage.DSN,
			Message: "required when storage.driver is postgres",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
