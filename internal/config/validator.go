package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "tunnel.base_port")
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

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Monitor config
	errors = append(errors, c.validateMonitor()...)

	// Validate Tunnel config
	errors = append(errors, c.validateTunnel()...)

	// Validate SSH config
	errors = append(errors, c.validateSSH()...)

	// Validate State config
	errors = append(errors, c.validateState()...)

	// Validate Logging config
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateMonitor validates the MonitorConfig
func (c *Config) validateMonitor() []ValidationError {
	var errors []ValidationError

	const minPollInterval = 1
	const maxPollInterval = 3600
	if c.Monitor.PollIntervalSeconds < minPollInterval {
		errors = append(errors, ValidationError{
			Field:   "monitor.poll_interval_seconds",
			Value:   c.Monitor.PollIntervalSeconds,
			Message: fmt.Sprintf("must be at least %d", minPollInterval),
		})
	}
	if c.Monitor.PollIntervalSeconds > maxPollInterval {
		errors = append(errors, ValidationError{
			Field:   "monitor.poll_interval_seconds",
			Value:   c.Monitor.PollIntervalSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d", maxPollInterval),
		})
	}

	if c.Monitor.TimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "monitor.timeout_minutes",
			Value:   c.Monitor.TimeoutMinutes,
			Message: "must be non-negative (0 disables the overall timeout)",
		})
	}

	if c.Monitor.StallThresholdMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "monitor.stall_threshold_minutes",
			Value:   c.Monitor.StallThresholdMinutes,
			Message: "must be non-negative (0 disables stall detection)",
		})
	}

	if c.Monitor.MaxFailures < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.max_failures",
			Value:   c.Monitor.MaxFailures,
			Message: "must be at least 1",
		})
	}

	const maxFetchAttempts = 20
	if c.Monitor.FetchAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.fetch_attempts",
			Value:   c.Monitor.FetchAttempts,
			Message: "must be at least 1",
		})
	}
	if c.Monitor.FetchAttempts > maxFetchAttempts {
		errors = append(errors, ValidationError{
			Field:   "monitor.fetch_attempts",
			Value:   c.Monitor.FetchAttempts,
			Message: fmt.Sprintf("exceeds maximum of %d", maxFetchAttempts),
		})
	}

	const minBackoff = 100 // 100ms minimum
	if c.Monitor.BackoffInitialMs < minBackoff {
		errors = append(errors, ValidationError{
			Field:   "monitor.backoff_initial_ms",
			Value:   c.Monitor.BackoffInitialMs,
			Message: fmt.Sprintf("must be at least %dms", minBackoff),
		})
	}
	if c.Monitor.BackoffCapMs < c.Monitor.BackoffInitialMs {
		errors = append(errors, ValidationError{
			Field:   "monitor.backoff_cap_ms",
			Value:   c.Monitor.BackoffCapMs,
			Message: "must be at least backoff_initial_ms",
		})
	}

	const minLogLines = 10
	const maxLogLines = 10000
	if c.Monitor.LogLines < minLogLines {
		errors = append(errors, ValidationError{
			Field:   "monitor.log_lines",
			Value:   c.Monitor.LogLines,
			Message: fmt.Sprintf("must be at least %d", minLogLines),
		})
	}
	if c.Monitor.LogLines > maxLogLines {
		errors = append(errors, ValidationError{
			Field:   "monitor.log_lines",
			Value:   c.Monitor.LogLines,
			Message: fmt.Sprintf("exceeds maximum of %d", maxLogLines),
		})
	}

	if c.Monitor.RemoteLog == "" {
		errors = append(errors, ValidationError{
			Field:   "monitor.remote_log",
			Value:   c.Monitor.RemoteLog,
			Message: "must not be empty",
		})
	} else if !filepath.IsAbs(c.Monitor.RemoteLog) {
		errors = append(errors, ValidationError{
			Field:   "monitor.remote_log",
			Value:   c.Monitor.RemoteLog,
			Message: "must be an absolute path on the instance",
		})
	}

	return errors
}

// validateTunnel validates the TunnelConfig
func (c *Config) validateTunnel() []ValidationError {
	var errors []ValidationError

	// Unprivileged port range; the allocator never binds below 1024
	const minPort = 1024
	const maxPort = 65535

	if c.Tunnel.BasePort < minPort || c.Tunnel.BasePort > maxPort {
		errors = append(errors, ValidationError{
			Field:   "tunnel.base_port",
			Value:   c.Tunnel.BasePort,
			Message: fmt.Sprintf("must be between %d and %d", minPort, maxPort),
		})
	}

	if c.Tunnel.ScanWindow < 1 {
		errors = append(errors, ValidationError{
			Field:   "tunnel.scan_window",
			Value:   c.Tunnel.ScanWindow,
			Message: "must be at least 1",
		})
	} else if c.Tunnel.BasePort >= minPort && c.Tunnel.BasePort+c.Tunnel.ScanWindow-1 > maxPort {
		errors = append(errors, ValidationError{
			Field:   "tunnel.scan_window",
			Value:   c.Tunnel.ScanWindow,
			Message: fmt.Sprintf("scan range must not extend past port %d", maxPort),
		})
	}

	if c.Tunnel.DefaultRemotePort < 1 || c.Tunnel.DefaultRemotePort > maxPort {
		errors = append(errors, ValidationError{
			Field:   "tunnel.default_remote_port",
			Value:   c.Tunnel.DefaultRemotePort,
			Message: fmt.Sprintf("must be between 1 and %d", maxPort),
		})
	}

	const maxGraceDelay = 60000 // 1 minute
	if c.Tunnel.GraceDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "tunnel.grace_delay_ms",
			Value:   c.Tunnel.GraceDelayMs,
			Message: "must be non-negative",
		})
	}
	if c.Tunnel.GraceDelayMs > maxGraceDelay {
		errors = append(errors, ValidationError{
			Field:   "tunnel.grace_delay_ms",
			Value:   c.Tunnel.GraceDelayMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxGraceDelay),
		})
	}

	if c.Tunnel.StopGraceSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "tunnel.stop_grace_seconds",
			Value:   c.Tunnel.StopGraceSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Tunnel.KeepaliveIntervalSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "tunnel.keepalive_interval_seconds",
			Value:   c.Tunnel.KeepaliveIntervalSeconds,
			Message: "must be non-negative (0 disables keepalives)",
		})
	}
	if c.Tunnel.KeepaliveCountMax < 0 {
		errors = append(errors, ValidationError{
			Field:   "tunnel.keepalive_count_max",
			Value:   c.Tunnel.KeepaliveCountMax,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateSSH validates the SSHConfig
func (c *Config) validateSSH() []ValidationError {
	var errors []ValidationError

	if c.SSH.User == "" {
		errors = append(errors, ValidationError{
			Field:   "ssh.user",
			Value:   c.SSH.User,
			Message: "must not be empty",
		})
	}

	if c.SSH.ConnectTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "ssh.connect_timeout_seconds",
			Value:   c.SSH.ConnectTimeoutSeconds,
			Message: "must be at least 1",
		})
	}

	if c.SSH.CommandTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "ssh.command_timeout_seconds",
			Value:   c.SSH.CommandTimeoutSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateState validates the StateConfig
func (c *Config) validateState() []ValidationError {
	var errors []ValidationError

	const minLockWait = 100    // 100ms minimum
	const maxLockWait = 600000 // 10 minutes
	if c.State.LockWaitMs < minLockWait {
		errors = append(errors, ValidationError{
			Field:   "state.lock_wait_ms",
			Value:   c.State.LockWaitMs,
			Message: fmt.Sprintf("must be at least %dms", minLockWait),
		})
	}
	if c.State.LockWaitMs > maxLockWait {
		errors = append(errors, ValidationError{
			Field:   "state.lock_wait_ms",
			Value:   c.State.LockWaitMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxLockWait),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
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
			Message: "must be non-negative (0 disables rotation)",
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
