// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"encoder": "debug",  // Per-module overrides
//			"uvc":     "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("mymodule")
//	logger.Info("Starting up", "device", path)
//	logger.Debug("Details", "config", cfg)
//	logger.Warn("Something unusual", "error", err)
//	logger.Error("Failed", "error", err)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("session").With("session_id", id)
//	logger.Info("Negotiated") // Includes session_id in all logs
//
// # Log Levels
//
//	debug - Verbose debugging information
//	info  - General operational messages
//	warn  - Warning conditions
//	error - Error conditions
//
// # Output Destinations
//
// The system automatically detects available outputs. The in-memory
// ring buffer handler is always added, so the handlers below are
// combined with it through a MultiHandler:
//
//	Journal available + stdout available → stdout + JournalHandler + ring buffer
//	Journal available only              → JournalHandler + ring buffer
//	Stdout available only               → TextHandler or JSONHandler + ring buffer
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t usbcamd              # All usbcamd logs
//	journalctl -t usbcamd -f           # Follow live
//	journalctl -t usbcamd --since "5m" # Last 5 minutes
//	journalctl -t usbcamd -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t usbcamd MODULE=encoder
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	encoder = "debug"
//	uvc     = "warn"
package logging
