package domain

import "errors"

// Domain errors represent error conditions of the simulated device.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running device.
	ErrAlreadyRunning = errors.New("bankswap: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped device.
	ErrNotRunning = errors.New("bankswap: not running")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("bankswap: invalid configuration")

	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("bankswap: device closed")

	// ErrNoSession is returned when an image is committed before any of it
	// was written.
	ErrNoSession = errors.New("bankswap: no firmware upload in progress")

	// ErrReportReset is returned when the previous boot report could not be
	// read and the boot counter started over.
	ErrReportReset = errors.New("bankswap: boot counter reset")
)
