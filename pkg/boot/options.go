package boot

import "github.com/bft-labs/bankswap/pkg/log"

// Phase names the part of the progress log a step belongs to.
type Phase string

const (
	PhaseSwap   Phase = "swap"
	PhaseRevert Phase = "revert"
)

// Progress reports a completed step.
type Progress struct {
	Phase Phase
	// Step is the index of the completed step in the progress log.
	Step int
	// Total is the number of steps in the whole log.
	Total int
	// Page is the page the step wrote.
	Page int
}

// ProgressCallback is invoked after each step is recorded.
type ProgressCallback func(Progress)

// Option configures optional behavior of a Loader.
type Option func(*options)

type options struct {
	logger   log.Logger
	progress ProgressCallback
}

func defaultOptions() options {
	return options{logger: log.NewNoopLogger()}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProgressCallback registers a callback for swap and revert progress.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(o *options) {
		o.progress = cb
	}
}
