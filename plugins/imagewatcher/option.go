package imagewatcher

import "github.com/bft-labs/bankswap/pkg/device"

// WithImageWatcher returns a device Option that stages images dropped into
// cfg.Dir while the device runs.
//
// Usage:
//
//	d, err := device.Open(cfg,
//	    imagewatcher.WithImageWatcher(imagewatcher.Config{
//	        Dir:           "/var/lib/bankswap/drop",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithImageWatcher(cfg Config) device.Option {
	return device.WithPlugin(New(cfg))
}
