package device

import (
	"github.com/bft-labs/bankswap/pkg/boot"
	"github.com/bft-labs/bankswap/pkg/log"
	"github.com/bft-labs/bankswap/pkg/platform"
)

// Option configures optional behavior of a Device.
type Option func(*options)

// options holds the optional configuration for a Device.
type options struct {
	logger   log.Logger
	plugins  []Plugin
	powerCut int
	jumper   platform.Jumper
	progress boot.ProgressCallback
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		logger:   log.NewNoopLogger(),
		powerCut: -1,
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPlugin registers a plugin to be initialized when the device starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithPowerCut cuts power on flash write or erase number n (counting from
// zero) after Open. A negative n disables the cut.
func WithPowerCut(n int) Option {
	return func(o *options) {
		o.powerCut = n
	}
}

// WithJumper replaces the simulated hand-off. Reset calls j with the vector
// table of ACTIVE.
func WithJumper(j platform.Jumper) Option {
	return func(o *options) {
		o.jumper = j
	}
}

// WithProgressCallback observes swap and revert steps during Reset.
func WithProgressCallback(cb boot.ProgressCallback) Option {
	return func(o *options) {
		o.progress = cb
	}
}
