package device

import (
	"context"

	"github.com/bft-labs/bankswap/pkg/log"
)

// Plugin extends a started Device.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize starts the plugin. ctx is cancelled when the device stops.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin and waits for its goroutines.
	Shutdown(ctx context.Context) error
}

// PluginConfig is what a plugin gets to work with.
type PluginConfig struct {
	Device    *Device
	StatusDir string
	Logger    log.Logger
}
