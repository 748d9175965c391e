// Package watchdog keeps a hardware watchdog fed while the bootloader does
// long flash work.
//
// A swap erases and rewrites whole partitions, which can take longer than
// any sensible watchdog timeout. [Flash] wraps the device and pets the
// watchdog right before every operation, splitting multi-sector erases so
// that no single call runs longer than one sector erase.
package watchdog

import (
	"errors"
	"runtime"
	"time"

	"github.com/bft-labs/bankswap/pkg/log"
	"github.com/bft-labs/bankswap/pkg/nor"
)

// ErrIncompatible is returned by Peripheral.TryNew when the watchdog is
// already running with a different configuration. A running watchdog cannot
// be reconfigured.
var ErrIncompatible = errors.New("watchdog already running with a different configuration")

// Config is the watchdog configuration.
type Config struct {
	Timeout time.Duration `toml:"timeout"`
	// RunDuringSleep keeps the counter running while the CPU sleeps.
	RunDuringSleep bool `toml:"run_during_sleep"`
	// RunDuringDebug keeps the counter running while halted by a debugger.
	RunDuringDebug bool `toml:"run_during_debug"`
}

// Handle feeds one watchdog channel.
type Handle interface {
	Pet()
	IsPet() bool
}

// Timer is a started watchdog.
type Timer interface {
	Expired() bool
}

// Peripheral starts the watchdog with n handles.
type Peripheral interface {
	TryNew(n int, cfg Config) (Timer, []Handle, error)
}

// Option configures a Flash.
type Option func(*options)

type options struct {
	logger log.Logger
	spin   func()
}

// WithLogger sets a custom logger for structured logging.
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSpin replaces the loop Start runs when the watchdog cannot be
// configured.
func WithSpin(spin func()) Option {
	return func(o *options) { o.spin = spin }
}

func spinForever() {
	for {
		runtime.Gosched()
	}
}

// Flash is a nor.Flash that pets a watchdog before each operation.
type Flash struct {
	flash  nor.Flash
	timer  Timer
	handle Handle
}

// Start configures the watchdog and wraps f. When the watchdog is already
// running with an incompatible configuration Start never returns: the
// running watchdog resets the device and the next boot starts clean.
func Start(f nor.Flash, p Peripheral, cfg Config, opts ...Option) *Flash {
	o := options{logger: log.NewNoopLogger(), spin: spinForever}
	for _, opt := range opts {
		opt(&o)
	}
	timer, handles, err := p.TryNew(1, cfg)
	if err != nil || len(handles) == 0 {
		o.logger.Warn("watchdog already active with wrong config, waiting for it to time out", log.Err(err))
		for {
			o.spin()
		}
	}
	return &Flash{flash: f, timer: timer, handle: handles[0]}
}

// Timer returns the started watchdog.
func (w *Flash) Timer() Timer { return w.timer }

// Handle returns the handle the wrapper pets.
func (w *Flash) Handle() Handle { return w.handle }

func (w *Flash) ReadSize() int  { return w.flash.ReadSize() }
func (w *Flash) WriteSize() int { return w.flash.WriteSize() }
func (w *Flash) EraseSize() int { return w.flash.EraseSize() }
func (w *Flash) Capacity() int  { return w.flash.Capacity() }

// Read implements nor.Flash.
func (w *Flash) Read(offset uint32, buf []byte) error {
	w.handle.Pet()
	return w.flash.Read(offset, buf)
}

// Write implements nor.Flash.
func (w *Flash) Write(offset uint32, data []byte) error {
	w.handle.Pet()
	return w.flash.Write(offset, data)
}

// Erase implements nor.Flash, one sector per call.
func (w *Flash) Erase(from, to uint32) error {
	if err := nor.CheckErase(w, from, to); err != nil {
		return err
	}
	es := uint32(w.flash.EraseSize())
	for off := from; off < to; off += es {
		w.handle.Pet()
		if err := w.flash.Erase(off, off+es); err != nil {
			return err
		}
	}
	return nil
}
