package updater

import (
	"github.com/bft-labs/bankswap/pkg/log"
	"github.com/bft-labs/bankswap/pkg/nor"
)

// Config names the partitions the updater works on.
type Config struct {
	DFU   nor.Flash
	State nor.Flash
}

// AsyncConfig names the partitions of an Updater.
type AsyncConfig struct {
	DFU   nor.AsyncFlash
	State nor.AsyncFlash
}

// Option configures optional behavior of an updater.
type Option func(*options)

type options struct {
	logger    log.Logger
	chunkSize int
}

func defaultOptions() options {
	return options{
		logger:    log.NewNoopLogger(),
		chunkSize: 256,
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithChunkSize sets the buffer size used when hashing DFU. It is rounded
// up to the DFU read size.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}
