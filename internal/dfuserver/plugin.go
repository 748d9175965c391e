package dfuserver

import (
	"context"

	"github.com/bft-labs/bankswap/pkg/device"
)

// PluginName is the name the server registers under.
const PluginName = "dfuserver"

// Plugin runs a Server for the lifetime of a started device.
type Plugin struct {
	addr   string
	opts   []Option
	server *Server
}

// NewPlugin returns a plugin serving on addr.
func NewPlugin(addr string, opts ...Option) *Plugin {
	return &Plugin{addr: addr, opts: opts}
}

func (p *Plugin) Name() string { return PluginName }

func (p *Plugin) Initialize(ctx context.Context, cfg device.PluginConfig) error {
	opts := append([]Option{WithLogger(cfg.Logger)}, p.opts...)
	p.server = New(cfg.Device, opts...)
	return p.server.Start(p.addr)
}

func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Stop()
}

// Addr returns the address the plugin listens on once initialized.
func (p *Plugin) Addr() string {
	if p.server == nil || p.server.Addr() == nil {
		return ""
	}
	return p.server.Addr().String()
}
