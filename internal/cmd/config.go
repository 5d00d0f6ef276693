package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rigstead/berth/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify berth configuration",
	Long: `View or modify berth configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  berth config set monitor.poll_interval_seconds 5
  berth config set tunnel.base_port 9000
  berth config set ssh.key_path ~/.ssh/vast_ed25519

Valid keys:
  monitor.poll_interval_seconds   - Seconds between provisioning log polls
  monitor.timeout_minutes         - Overall monitoring timeout (0 disables)
  monitor.stall_threshold_minutes - Minutes without a stage advance before
                                    giving up (0 disables)
  monitor.max_failures            - Consecutive poll failures before the
                                    instance counts as unreachable
  monitor.log_lines               - Log lines fetched per poll
  monitor.remote_log              - Provisioning log path on the instance
  tunnel.base_port                - First local port tried for tunnels
  tunnel.scan_window              - Ports scanned above base_port
  tunnel.default_remote_port      - Remote port forwarded when none is given
  ssh.user                        - Remote login user
  ssh.key_path                    - Private key path (empty = auto-detect)
  state.dir                       - State directory (empty = XDG default)
  logging.enabled                 - Write a debug log (true/false)
  logging.level                   - Debug log level: debug, info, warn, error`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/berth/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "monitor:")
	fmt.Fprintf(out, "  poll_interval_seconds: %d\n", cfg.Monitor.PollIntervalSeconds)
	fmt.Fprintf(out, "  timeout_minutes: %d\n", cfg.Monitor.TimeoutMinutes)
	fmt.Fprintf(out, "  stall_threshold_minutes: %d\n", cfg.Monitor.StallThresholdMinutes)
	fmt.Fprintf(out, "  max_failures: %d\n", cfg.Monitor.MaxFailures)
	fmt.Fprintf(out, "  fetch_attempts: %d\n", cfg.Monitor.FetchAttempts)
	fmt.Fprintf(out, "  log_lines: %d\n", cfg.Monitor.LogLines)
	fmt.Fprintf(out, "  remote_log: %s\n", cfg.Monitor.RemoteLog)

	fmt.Fprintln(out, "tunnel:")
	fmt.Fprintf(out, "  base_port: %d\n", cfg.Tunnel.BasePort)
	fmt.Fprintf(out, "  scan_window: %d\n", cfg.Tunnel.ScanWindow)
	fmt.Fprintf(out, "  default_remote_port: %d\n", cfg.Tunnel.DefaultRemotePort)
	fmt.Fprintf(out, "  grace_delay_ms: %d\n", cfg.Tunnel.GraceDelayMs)
	fmt.Fprintf(out, "  stop_grace_seconds: %d\n", cfg.Tunnel.StopGraceSeconds)
	fmt.Fprintf(out, "  keepalive_interval_seconds: %d\n", cfg.Tunnel.KeepaliveIntervalSeconds)
	fmt.Fprintf(out, "  keepalive_count_max: %d\n", cfg.Tunnel.KeepaliveCountMax)

	fmt.Fprintln(out, "ssh:")
	fmt.Fprintf(out, "  user: %s\n", cfg.SSH.User)
	if cfg.SSH.KeyPath != "" {
		fmt.Fprintf(out, "  key_path: %s\n", cfg.SSH.KeyPath)
	} else {
		fmt.Fprintf(out, "  key_path: (auto-detect)\n")
	}
	fmt.Fprintf(out, "  connect_timeout_seconds: %d\n", cfg.SSH.ConnectTimeoutSeconds)
	fmt.Fprintf(out, "  command_timeout_seconds: %d\n", cfg.SSH.CommandTimeoutSeconds)

	fmt.Fprintln(out, "state:")
	fmt.Fprintf(out, "  dir: %s\n", cfg.State.ResolveDir())
	fmt.Fprintf(out, "  lock_wait_ms: %d\n", cfg.State.LockWaitMs)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Validate the key exists
	validKeys := map[string]string{
		"monitor.poll_interval_seconds":   "int",
		"monitor.timeout_minutes":         "int",
		"monitor.stall_threshold_minutes": "int",
		"monitor.max_failures":            "int",
		"monitor.log_lines":               "int",
		"monitor.remote_log":              "string",
		"tunnel.base_port":                "int",
		"tunnel.scan_window":              "int",
		"tunnel.default_remote_port":      "int",
		"ssh.user":                        "string",
		"ssh.key_path":                    "string",
		"state.dir":                       "string",
		"logging.enabled":                 "bool",
		"logging.level":                   "string",
	}

	keyType, ok := validKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'berth config set --help' to see valid keys", key)
	}

	// Validate the value based on type
	var typedValue interface{}
	switch keyType {
	case "string":
		if key == "logging.level" && !isValidLogLevel(value) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidLogLevels(), ", "))
		}
		typedValue = value
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = value == "true"
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set the value in viper
	viper.Set(key, typedValue)

	// Write to config file
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Set %s = %v\n", key, typedValue)
	fmt.Printf("Config saved to %s\n", configFile)

	return nil
}

func isValidLogLevel(level string) bool {
	for _, valid := range config.ValidLogLevels() {
		if strings.EqualFold(level, valid) {
			return true
		}
	}
	return false
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'berth config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# berth configuration
# See: https://github.com/rigstead/berth

# Readiness monitoring
monitor:
  # Seconds between provisioning log polls
  poll_interval_seconds: 10
  # Overall monitoring timeout in minutes (0 disables)
  timeout_minutes: 60
  # Minutes without a stage advance before the run counts as stalled (0 disables)
  stall_threshold_minutes: 10
  # Consecutive poll failures before the instance counts as unreachable
  max_failures: 18
  # Lines of the provisioning log fetched per poll
  log_lines: 200
  # Provisioning log path on the instance
  remote_log: /var/log/onstart.log

# Tunnels and local port allocation
tunnel:
  # First local port tried for tunnels
  base_port: 8188
  # Ports scanned above base_port before reporting exhaustion
  scan_window: 1000
  # Remote port forwarded when a create names none
  default_remote_port: 8188

# How berth reaches instances
ssh:
  # Remote login user
  user: root
  # Private key path; leave empty to auto-detect common keys under ~/.ssh
  key_path: ""

# Where berth keeps ports.json, tunnels.json, and the debug log
state:
  # Empty means $XDG_STATE_HOME/berth (falling back to ~/.local/state/berth)
  dir: ""

# Debug logging (read it back with 'berth logs')
logging:
  enabled: true
  # debug, info, warn, or error
  level: info
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit this file to customize berth's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintf(out, "  2. $HOME/.config/berth/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: BERTH_* (e.g., BERTH_MONITOR_TIMEOUT_MINUTES)")

	return nil
}
