// Package log provides the structured logging abstraction used across
// bankswap.
//
// Library packages (boot, updater, device) accept a [Logger] through a
// WithLogger option and fall back to [NoopLogger], so an embedded
// bootloader build pays nothing for logging it does not configure. The
// command line tool wires the zerolog adapter.
//
// # Usage
//
//	logger := log.NewZerologAdapter()
//	logger.Info("swap complete",
//	    log.Int("pages", 12),
//	    log.Hex("active_base", 0x8000),
//	    log.Stringer("state", st),
//	)
//
// Use the no-op logger in tests:
//
//	logger := log.NewNoopLogger()
//
// # Custom Loggers
//
// Implement the Logger interface to integrate with other logging
// infrastructure:
//
//	type MyLogger struct { ... }
//
//	func (l *MyLogger) Debug(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Info(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Warn(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Error(msg string, fields ...log.Field) { ... }
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package log
