package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete berth configuration
type Config struct {
	Monitor MonitorConfig `mapstructure:"monitor"`
	Tunnel  TunnelConfig  `mapstructure:"tunnel"`
	SSH     SSHConfig     `mapstructure:"ssh"`
	State   StateConfig   `mapstructure:"state"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// MonitorConfig controls readiness monitoring behavior
type MonitorConfig struct {
	// PollIntervalSeconds is how often the remote log is fetched (default: 10)
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// TimeoutMinutes is the maximum total monitoring time before giving up (default: 60)
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
	// StallThresholdMinutes is the number of minutes without a stage advance
	// before the instance is considered stalled (default: 10, 0 = disabled)
	StallThresholdMinutes int `mapstructure:"stall_threshold_minutes"`
	// MaxFailures is the number of consecutive failed poll cycles before the
	// instance is reported unreachable (default: 18, which is 3 minutes at the
	// default poll interval)
	MaxFailures int `mapstructure:"max_failures"`
	// FetchAttempts is the maximum attempts per log fetch, with exponential
	// backoff between attempts (default: 5)
	FetchAttempts int `mapstructure:"fetch_attempts"`
	// BackoffInitialMs is the initial backoff between fetch attempts (default: 1000)
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	// BackoffCapMs is the maximum backoff between fetch attempts (default: 30000)
	BackoffCapMs int `mapstructure:"backoff_cap_ms"`
	// LogLines is how many lines of the remote log to fetch per poll (default: 200)
	LogLines int `mapstructure:"log_lines"`
	// RemoteLog is the path of the provisioning log on the instance
	// (default: /var/log/onstart.log)
	RemoteLog string `mapstructure:"remote_log"`
}

// TunnelConfig controls tunnel and port allocation behavior
type TunnelConfig struct {
	// BasePort is the first local port considered for allocation (default: 8188)
	BasePort int `mapstructure:"base_port"`
	// ScanWindow is how many ports above BasePort are scanned before the
	// allocator reports exhaustion (default: 1000)
	ScanWindow int `mapstructure:"scan_window"`
	// DefaultRemotePort is the remote port forwarded when none is given (default: 8188)
	DefaultRemotePort int `mapstructure:"default_remote_port"`
	// GraceDelayMs is how long to wait after spawning the ssh subprocess
	// before confirming it is still alive (default: 2000)
	GraceDelayMs int `mapstructure:"grace_delay_ms"`
	// StopGraceSeconds is how long to wait after SIGTERM before escalating
	// to SIGKILL (default: 5)
	StopGraceSeconds int `mapstructure:"stop_grace_seconds"`
	// KeepaliveIntervalSeconds is the ServerAliveInterval passed to ssh (default: 60)
	KeepaliveIntervalSeconds int `mapstructure:"keepalive_interval_seconds"`
	// KeepaliveCountMax is the ServerAliveCountMax passed to ssh (default: 3)
	KeepaliveCountMax int `mapstructure:"keepalive_count_max"`
}

// SSHConfig controls how berth reaches instances over SSH
type SSHConfig struct {
	// User is the remote login user (default: "root")
	User string `mapstructure:"user"`
	// KeyPath is the private key used for authentication. Empty means
	// auto-detect: $BERTH_SSH_KEY, then common keys under ~/.ssh.
	KeyPath string `mapstructure:"key_path"`
	// ConnectTimeoutSeconds is the SSH dial timeout (default: 10)
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds"`
	// CommandTimeoutSeconds is the per-command deadline for remote commands (default: 30)
	CommandTimeoutSeconds int `mapstructure:"command_timeout_seconds"`
}

// StateConfig controls where berth persists its state documents
type StateConfig struct {
	// Dir is the state directory holding ports.json, tunnels.json, locks and
	// the debug log. Empty means the XDG state directory
	// ($XDG_STATE_HOME/berth, falling back to ~/.local/state/berth).
	// Supports ~ for home directory expansion.
	Dir string `mapstructure:"dir"`
	// LockWaitMs is how long an invocation waits for a busy state lock
	// before giving up (default: 5000)
	LockWaitMs int `mapstructure:"lock_wait_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			PollIntervalSeconds:   10,
			TimeoutMinutes:        60,
			StallThresholdMinutes: 10,
			MaxFailures:           18, // 3 minutes of consecutive failures at 10s polls
			FetchAttempts:         5,
			BackoffInitialMs:      1000,
			BackoffCapMs:          30000,
			LogLines:              200,
			RemoteLog:             "/var/log/onstart.log",
		},
		Tunnel: TunnelConfig{
			BasePort:                 8188,
			ScanWindow:               1000,
			DefaultRemotePort:        8188,
			GraceDelayMs:             2000,
			StopGraceSeconds:         5,
			KeepaliveIntervalSeconds: 60,
			KeepaliveCountMax:        3,
		},
		SSH: SSHConfig{
			User:                  "root",
			KeyPath:               "", // Empty means auto-detect
			ConnectTimeoutSeconds: 10,
			CommandTimeoutSeconds: 30,
		},
		State: StateConfig{
			Dir:        "", // Empty means use the XDG state directory
			LockWaitMs: 5000,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// PollInterval returns the monitor poll interval as a time.Duration
func (c *MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Timeout returns the overall monitoring timeout as a time.Duration (0 means disabled)
func (c *MonitorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// StallThreshold returns the stall threshold as a time.Duration (0 means disabled)
func (c *MonitorConfig) StallThreshold() time.Duration {
	return time.Duration(c.StallThresholdMinutes) * time.Minute
}

// BackoffInitial returns the initial fetch backoff as a time.Duration
func (c *MonitorConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffCap returns the maximum fetch backoff as a time.Duration
func (c *MonitorConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapMs) * time.Millisecond
}

// GraceDelay returns the post-spawn confirmation delay as a time.Duration
func (c *TunnelConfig) GraceDelay() time.Duration {
	return time.Duration(c.GraceDelayMs) * time.Millisecond
}

// StopGrace returns the SIGTERM-to-SIGKILL escalation delay as a time.Duration
func (c *TunnelConfig) StopGrace() time.Duration {
	return time.Duration(c.StopGraceSeconds) * time.Second
}

// ConnectTimeout returns the SSH dial timeout as a time.Duration
func (c *SSHConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// CommandTimeout returns the remote command deadline as a time.Duration
func (c *SSHConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// LockWait returns the lock acquisition wait as a time.Duration
func (c *StateConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitMs) * time.Millisecond
}

// ResolveDir returns the resolved state directory path.
// If Dir is empty, it returns the XDG state directory.
// If Dir starts with ~, it expands to the user's home directory.
func (c *StateConfig) ResolveDir() string {
	if c.Dir == "" {
		return defaultStateDir()
	}

	path := c.Dir

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return path
}

// defaultStateDir returns $XDG_STATE_HOME/berth, falling back to
// ~/.local/state/berth per the XDG base directory spec.
func defaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "berth")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".berth"
	}
	return filepath.Join(home, ".local", "state", "berth")
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Monitor defaults
	viper.SetDefault("monitor.poll_interval_seconds", defaults.Monitor.PollIntervalSeconds)
	viper.SetDefault("monitor.timeout_minutes", defaults.Monitor.TimeoutMinutes)
	viper.SetDefault("monitor.stall_threshold_minutes", defaults.Monitor.StallThresholdMinutes)
	viper.SetDefault("monitor.max_failures", defaults.Monitor.MaxFailures)
	viper.SetDefault("monitor.fetch_attempts", defaults.Monitor.FetchAttempts)
	viper.SetDefault("monitor.backoff_initial_ms", defaults.Monitor.BackoffInitialMs)
	viper.SetDefault("monitor.backoff_cap_ms", defaults.Monitor.BackoffCapMs)
	viper.SetDefault("monitor.log_lines", defaults.Monitor.LogLines)
	viper.SetDefault("monitor.remote_log", defaults.Monitor.RemoteLog)

	// Tunnel defaults
	viper.SetDefault("tunnel.base_port", defaults.Tunnel.BasePort)
	viper.SetDefault("tunnel.scan_window", defaults.Tunnel.ScanWindow)
	viper.SetDefault("tunnel.default_remote_port", defaults.Tunnel.DefaultRemotePort)
	viper.SetDefault("tunnel.grace_delay_ms", defaults.Tunnel.GraceDelayMs)
	viper.SetDefault("tunnel.stop_grace_seconds", defaults.Tunnel.StopGraceSeconds)
	viper.SetDefault("tunnel.keepalive_interval_seconds", defaults.Tunnel.KeepaliveIntervalSeconds)
	viper.SetDefault("tunnel.keepalive_count_max", defaults.Tunnel.KeepaliveCountMax)

	// SSH defaults
	viper.SetDefault("ssh.user", defaults.SSH.User)
	viper.SetDefault("ssh.key_path", defaults.SSH.KeyPath)
	viper.SetDefault("ssh.connect_timeout_seconds", defaults.SSH.ConnectTimeoutSeconds)
	viper.SetDefault("ssh.command_timeout_seconds", defaults.SSH.CommandTimeoutSeconds)

	// State defaults
	viper.SetDefault("state.dir", defaults.State.Dir)
	viper.SetDefault("state.lock_wait_ms", defaults.State.LockWaitMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
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
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "berth")
	}
	// Fall back to ~/.config/berth
	home, err := os.UserHomeDir()
	if err != nil {
		return ".berth"
	}
	return filepath.Join(home, ".config", "berth")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
