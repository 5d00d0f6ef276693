// Package logging provides structured logging for berth invocations.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation support. berth commands are short-lived, so the log
// is the main record of what a past invocation did: which ports were
// allocated, which tunnel PIDs were spawned or reaped, and how a monitoring
// run moved through lifecycle stages.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (instance ID, component)
//   - Log rotation with configurable size limits
//   - Optional gzip compression for rotated logs
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The [Logger] type
// uses Go's slog internally which is designed for concurrent access. The
// [RotatingWriter] type uses a mutex to protect file operations during
// rotation. Child loggers created via With* methods share the underlying
// writer safely.
//
// # Basic Usage
//
// Create a logger writing into the state directory:
//
//	logger, err := logging.NewLogger(stateDir, "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	// Log messages at various levels
//	logger.Debug("bind probe", "port", 8190)
//	logger.Info("tunnel established", "instance_id", id, "pid", pid)
//	logger.Warn("pruned dead tunnel", "instance_id", id)
//	logger.Error("log fetch failed", "error", err.Error())
//
// # Context Propagation
//
// Create child loggers with persistent context attributes:
//
//	monLog := logger.WithComponent("monitor").WithInstance("12345")
//	monLog.Info("stage changed", "from", "PROVISIONING", "to", "DOWNLOADING")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"stage changed","component":"monitor","instance_id":"12345","from":"PROVISIONING","to":"DOWNLOADING"}
//
// # Log Rotation
//
// The state directory is shared by every invocation, so the debug log grows
// across runs. Use rotation to bound it:
//
//	config := logging.RotationConfig{
//	    MaxSizeMB:  10,    // Rotate when file exceeds 10MB
//	    MaxBackups: 3,     // Keep 3 backup files
//	    Compress:   true,  // Gzip compress rotated files
//	}
//
//	logger, err := logging.NewLoggerWithRotation(stateDir, "INFO", config)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
// Rotated files are named: debug.log.1, debug.log.2, etc., where .1 is the
// most recent backup. When compression is enabled, rotated files become
// debug.log.1.gz, etc.
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output:
//
//	func TestSomething(t *testing.T) {
//	    logger := logging.NopLogger()
//	    // Use logger in tests without creating files
//	}
//
// # Configuration
//
// The logging system is configured via berth's config file:
//
//	logging:
//	  enabled: true
//	  level: info
//	  max_size_mb: 10
//	  max_backups: 3
package logging
