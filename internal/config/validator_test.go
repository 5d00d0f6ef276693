package config

import (
	"strings"
	"testing"
)

// mutate returns a default config modified by fn.
func mutate(fn func(*Config)) *Config {
	cfg := Default()
	fn(cfg)
	return cfg
}

// fieldsOf extracts the Field names from validation errors.
func fieldsOf(errs []ValidationError) []string {
	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	return fields
}

func TestValidate_DefaultIsClean(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Fatalf("default config should have no validation errors, got: %v", ValidationErrors(errs))
	}
}

func TestValidate_Monitor(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantField string
	}{
		{
			name:      "poll interval too small",
			cfg:       mutate(func(c *Config) { c.Monitor.PollIntervalSeconds = 0 }),
			wantField: "monitor.poll_interval_seconds",
		},
		{
			name:      "poll interval too large",
			cfg:       mutate(func(c *Config) { c.Monitor.PollIntervalSeconds = 7200 }),
			wantField: "monitor.poll_interval_seconds",
		},
		{
			name:      "negative timeout",
			cfg:       mutate(func(c *Config) { c.Monitor.TimeoutMinutes = -1 }),
			wantField: "monitor.timeout_minutes",
		},
		{
			name:      "negative stall threshold",
			cfg:       mutate(func(c *Config) { c.Monitor.StallThresholdMinutes = -5 }),
			wantField: "monitor.stall_threshold_minutes",
		},
		{
			name:      "zero max failures",
			cfg:       mutate(func(c *Config) { c.Monitor.MaxFailures = 0 }),
			wantField: "monitor.max_failures",
		},
		{
			name:      "zero fetch attempts",
			cfg:       mutate(func(c *Config) { c.Monitor.FetchAttempts = 0 }),
			wantField: "monitor.fetch_attempts",
		},
		{
			name:      "too many fetch attempts",
			cfg:       mutate(func(c *Config) { c.Monitor.FetchAttempts = 100 }),
			wantField: "monitor.fetch_attempts",
		},
		{
			name:      "backoff initial too small",
			cfg:       mutate(func(c *Config) { c.Monitor.BackoffInitialMs = 10 }),
			wantField: "monitor.backoff_initial_ms",
		},
		{
			name:      "backoff cap below initial",
			cfg:       mutate(func(c *Config) { c.Monitor.BackoffCapMs = 500 }),
			wantField: "monitor.backoff_cap_ms",
		},
		{
			name:      "log lines too small",
			cfg:       mutate(func(c *Config) { c.Monitor.LogLines = 1 }),
			wantField: "monitor.log_lines",
		},
		{
			name:      "empty remote log",
			cfg:       mutate(func(c *Config) { c.Monitor.RemoteLog = "" }),
			wantField: "monitor.remote_log",
		},
		{
			name:      "relative remote log",
			cfg:       mutate(func(c *Config) { c.Monitor.RemoteLog = "onstart.log" }),
			wantField: "monitor.remote_log",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.cfg.Validate()
			if len(errs) == 0 {
				t.Fatalf("expected validation error on %s, got none", tt.wantField)
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %s, got fields %v", tt.wantField, fieldsOf(errs))
			}
		})
	}
}

func TestValidate_Tunnel(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantField string
	}{
		{
			name:      "privileged base port",
			cfg:       mutate(func(c *Config) { c.Tunnel.BasePort = 80 }),
			wantField: "tunnel.base_port",
		},
		{
			name:      "base port above range",
			cfg:       mutate(func(c *Config) { c.Tunnel.BasePort = 70000 }),
			wantField: "tunnel.base_port",
		},
		{
			name:      "zero scan window",
			cfg:       mutate(func(c *Config) { c.Tunnel.ScanWindow = 0 }),
			wantField: "tunnel.scan_window",
		},
		{
			name: "scan range past port space",
			cfg: mutate(func(c *Config) {
				c.Tunnel.BasePort = 65000
				c.Tunnel.ScanWindow = 1000
			}),
			wantField: "tunnel.scan_window",
		},
		{
			name:      "zero default remote port",
			cfg:       mutate(func(c *Config) { c.Tunnel.DefaultRemotePort = 0 }),
			wantField: "tunnel.default_remote_port",
		},
		{
			name:      "negative grace delay",
			cfg:       mutate(func(c *Config) { c.Tunnel.GraceDelayMs = -1 }),
			wantField: "tunnel.grace_delay_ms",
		},
		{
			name:      "excessive grace delay",
			cfg:       mutate(func(c *Config) { c.Tunnel.GraceDelayMs = 120000 }),
			wantField: "tunnel.grace_delay_ms",
		},
		{
			name:      "zero stop grace",
			cfg:       mutate(func(c *Config) { c.Tunnel.StopGraceSeconds = 0 }),
			wantField: "tunnel.stop_grace_seconds",
		},
		{
			name:      "negative keepalive interval",
			cfg:       mutate(func(c *Config) { c.Tunnel.KeepaliveIntervalSeconds = -1 }),
			wantField: "tunnel.keepalive_interval_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.cfg.Validate()
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %s, got fields %v", tt.wantField, fieldsOf(errs))
			}
		})
	}
}

func TestValidate_SSH(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantField string
	}{
		{
			name:      "empty user",
			cfg:       mutate(func(c *Config) { c.SSH.User = "" }),
			wantField: "ssh.user",
		},
		{
			name:      "zero connect timeout",
			cfg:       mutate(func(c *Config) { c.SSH.ConnectTimeoutSeconds = 0 }),
			wantField: "ssh.connect_timeout_seconds",
		},
		{
			name:      "zero command timeout",
			cfg:       mutate(func(c *Config) { c.SSH.CommandTimeoutSeconds = 0 }),
			wantField: "ssh.command_timeout_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.cfg.Validate()
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %s, got fields %v", tt.wantField, fieldsOf(errs))
			}
		})
	}
}

func TestValidate_State(t *testing.T) {
	errs := mutate(func(c *Config) { c.State.LockWaitMs = 10 }).Validate()
	found := false
	for _, e := range errs {
		if e.Field == "state.lock_wait_ms" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected error on state.lock_wait_ms, got fields %v", fieldsOf(errs))
	}
}

func TestValidate_Logging(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantField string
	}{
		{
			name:      "invalid level",
			cfg:       mutate(func(c *Config) { c.Logging.Level = "verbose" }),
			wantField: "logging.level",
		},
		{
			name:      "negative max size",
			cfg:       mutate(func(c *Config) { c.Logging.MaxSizeMB = -1 }),
			wantField: "logging.max_size_mb",
		},
		{
			name:      "negative max backups",
			cfg:       mutate(func(c *Config) { c.Logging.MaxBackups = -1 }),
			wantField: "logging.max_backups",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.cfg.Validate()
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %s, got fields %v", tt.wantField, fieldsOf(errs))
			}
		})
	}

	t.Run("uppercase level is accepted", func(t *testing.T) {
		errs := mutate(func(c *Config) { c.Logging.Level = "DEBUG" }).Validate()
		for _, e := range errs {
			if e.Field == "logging.level" {
				t.Errorf("uppercase level should be accepted, got: %v", e)
			}
		}
	})
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("empty ValidationErrors.Error() = %q, want empty", errs.Error())
		}
	})

	t.Run("single", func(t *testing.T) {
		errs := ValidationErrors{{Field: "tunnel.base_port", Value: 80, Message: "must be between 1024 and 65535"}}
		want := "tunnel.base_port: must be between 1024 and 65535 (got: 80)"
		if errs.Error() != want {
			t.Errorf("Error() = %q, want %q", errs.Error(), want)
		}
	})

	t.Run("multiple", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "tunnel.base_port", Value: 80, Message: "bad"},
			{Field: "ssh.user", Value: "", Message: "empty"},
		}
		msg := errs.Error()
		if !strings.HasPrefix(msg, "2 validation errors:") {
			t.Errorf("Error() should start with count, got %q", msg)
		}
		if !strings.Contains(msg, "tunnel.base_port") || !strings.Contains(msg, "ssh.user") {
			t.Errorf("Error() should mention both fields, got %q", msg)
		}
	})
}
