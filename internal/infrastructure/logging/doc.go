// Package logging provides structured logging for mqtt-recorder.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for machine consumption
//   - Text output (slog key=value)
//   - Console output with coloured levels for interactive use
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text, console
//	  output: "stderr"   # stdout, stderr
//
// Logs default to stderr so they never mix with data written to stdout.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("recording", "output", path)
//	logger.Error("connect failed", "error", err)
package logging
