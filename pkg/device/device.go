package device

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/bft-labs/bankswap/internal/adapters/fs"
	"github.com/bft-labs/bankswap/internal/domain"
	"github.com/bft-labs/bankswap/internal/ports"
	"github.com/bft-labs/bankswap/pkg/boot"
	"github.com/bft-labs/bankswap/pkg/log"
	"github.com/bft-labs/bankswap/pkg/nor"
	"github.com/bft-labs/bankswap/pkg/platform"
	"github.com/bft-labs/bankswap/pkg/state"
	"github.com/bft-labs/bankswap/pkg/updater"
	"github.com/bft-labs/bankswap/pkg/watchdog"
)

// uploadChunk is the size Stage writes DFU in.
const uploadChunk = 4096

// Device is a simulated device. All methods are safe for concurrent use;
// flash access is serialized.
type Device struct {
	cfg     Config
	opts    options
	logger  log.Logger
	reports ports.ReportRepository
	plugins []Plugin

	mu       sync.Mutex
	file     *nor.FileFlash
	fault    *nor.FaultFlash
	wdt      *watchdog.Soft
	wflash   *watchdog.Flash
	active   *nor.Partition
	dfu      *nor.Partition
	state    *nor.Partition
	loader   *boot.Loader
	session  *updater.Updater
	steps    int
	handoff  *platform.VectorTable
	closed   bool
	runMu    sync.Mutex
	tomb     *tomb.Tomb
	running  bool
}

// Open opens (or creates) the flash image described by cfg.
func Open(cfg Config, opts ...Option) (*Device, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	file, err := openImage(cfg.ImagePath, cfg.Geometry)
	if err != nil {
		return nil, err
	}

	d := &Device{
		cfg:     cfg,
		opts:    o,
		logger:  o.logger,
		reports: fs.NewReportFileRepository(cfg.StatusDir),
		plugins: o.plugins,
		file:    file,
		wdt:     watchdog.NewSoft(),
	}
	if o.powerCut >= 0 {
		d.fault = nor.NewFaultFlash(file, o.powerCut, nor.WithTornOps())
	}
	if err := d.build(); err != nil {
		file.Close()
		return nil, err
	}
	d.logger.Info("device opened",
		log.String("image", cfg.ImagePath),
		log.Int("pages", d.loader.PageCount()),
		log.Int("page_size", d.loader.PageSize()),
	)
	return d, nil
}

func openImage(path string, g nor.Geometry) (*nor.FileFlash, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nor.CreateFileFlash(path, g)
	}
	return nor.OpenFileFlash(path, g)
}

// build assembles the flash stack: file, optional power cut, watchdog,
// partitions, bootloader.
func (d *Device) build() error {
	var base nor.Flash = d.file
	if d.fault != nil {
		base = d.fault
	}
	d.wflash = watchdog.Start(base, d.wdt, d.cfg.Watchdog, watchdog.WithLogger(d.logger))

	var err error
	if d.active, err = nor.NewPartition(d.wflash, d.cfg.Active.Offset, d.cfg.Active.Size); err != nil {
		return fmt.Errorf("%w: active: %v", domain.ErrInvalidConfig, err)
	}
	if d.dfu, err = nor.NewPartition(d.wflash, d.cfg.DFU.Offset, d.cfg.DFU.Size); err != nil {
		return fmt.Errorf("%w: dfu: %v", domain.ErrInvalidConfig, err)
	}
	if d.state, err = nor.NewPartition(d.wflash, d.cfg.State.Offset, d.cfg.State.Size); err != nil {
		return fmt.Errorf("%w: state: %v", domain.ErrInvalidConfig, err)
	}

	buf, err := nor.NewAlignedBuffer(d.cfg.BufferSize, d.cfg.Geometry.WriteSize)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	d.loader, err = boot.New(boot.Config{Active: d.active, DFU: d.dfu, State: d.state, Buffer: buf},
		boot.WithLogger(d.logger),
		boot.WithProgressCallback(d.onProgress),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	d.session = nil
	return nil
}

func (d *Device) onProgress(p boot.Progress) {
	d.steps++
	if d.opts.progress != nil {
		d.opts.progress(p)
	}
}

// restorePower rebuilds the flash stack without the power cut once it has
// fired. Callers hold d.mu.
func (d *Device) restorePower() error {
	if d.closed {
		return domain.ErrClosed
	}
	if d.fault == nil || !d.fault.Cut() {
		return nil
	}
	d.logger.Info("power restored", log.Int("ops_before_cut", d.fault.Ops()))
	d.fault = nil
	return d.build()
}

func (d *Device) newUpdater() (*updater.Updater, error) {
	return updater.New(updater.AsyncConfig{DFU: nor.Async(d.dfu), State: nor.Async(d.state)},
		updater.WithLogger(d.logger))
}

// Reset simulates a reset: the bootloader runs, then control is handed to
// ACTIVE. The report is persisted whether or not the boot succeeded; the
// returned error is the boot failure, if any.
func (d *Device) Reset(ctx context.Context) (domain.Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.restorePower(); err != nil {
		return domain.Report{}, err
	}

	report := domain.Report{BootedAt: time.Now().UTC()}

	d.steps = 0
	decision, bootErr := d.loader.TryPrepare()
	report.Decision = decision
	report.Steps = d.steps

	if bootErr == nil {
		bootErr = platform.Load(d.jumper(), d.active)
		if bootErr == nil {
			report.Booted = true
			report.SP, report.Entry = d.handoff.SP, d.handoff.Entry
		}
	}
	if bootErr != nil {
		report.Error = bootErr.Error()
		report.PowerCut = errors.Is(bootErr, nor.ErrPowerLoss)
	}
	if d.wdt.Expired() {
		d.logger.Warn("watchdog would have expired during boot")
	}

	report, err := d.reports.Record(ctx, report)
	switch {
	case errors.Is(err, domain.ErrReportReset):
		d.logger.Warn("previous boot report unreadable", log.Err(err))
	case err != nil:
		return report, fmt.Errorf("save boot report: %w", err)
	}
	fields := []log.Field{
		log.Uint64("boot", report.Boots),
		log.Stringer("decision", report.Decision),
		log.Int("steps", report.Steps),
	}
	if bootErr != nil {
		d.logger.Error("boot failed", append(fields, log.Err(bootErr))...)
		return report, bootErr
	}
	d.logger.Info("booted", append(fields, log.Hex("entry", report.Entry))...)
	return report, nil
}

func (d *Device) jumper() platform.Jumper {
	return platform.JumperFunc(func(sp, entry uint32) error {
		d.handoff = &platform.VectorTable{SP: sp, Entry: entry}
		if d.opts.jumper != nil {
			return d.opts.jumper.Jump(sp, entry)
		}
		return nil
	})
}

// Stage writes image to DFU and marks it for the next reset.
func (d *Device) Stage(ctx context.Context, image []byte) error {
	return d.stage(ctx, image, func(u *updater.Updater) error {
		return u.MarkUpdated(ctx, len(image))
	})
}

// StageSigned is Stage with an ed25519 signature check over the SHA-512 of
// image.
func (d *Device) StageSigned(ctx context.Context, image []byte, pub ed25519.PublicKey, sig []byte) error {
	return d.stage(ctx, image, func(u *updater.Updater) error {
		return u.VerifyAndMarkUpdated(ctx, pub, sig, len(image))
	})
}

func (d *Device) stage(ctx context.Context, image []byte, mark func(*updater.Updater) error) error {
	if len(image) == 0 {
		return errors.New("empty image")
	}
	if len(image) > int(d.cfg.Active.Size) {
		return fmt.Errorf("%w: %d bytes, active partition holds %d", updater.ErrImageTooLarge, len(image), d.cfg.Active.Size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.restorePower(); err != nil {
		return err
	}
	u, err := d.newUpdater()
	if err != nil {
		return err
	}
	padded := d.pad(image)
	for off := 0; off < len(padded); off += uploadChunk {
		end := off + uploadChunk
		if end > len(padded) {
			end = len(padded)
		}
		if err := u.WriteFirmware(ctx, off, padded[off:end]); err != nil {
			return err
		}
	}
	if err := mark(u); err != nil {
		return err
	}
	d.session = nil
	d.logger.Info("image staged", log.Int("length", len(image)))
	return nil
}

// pad extends b with erased bytes to a multiple of the write size.
func (d *Device) pad(b []byte) []byte {
	n := nor.RoundUp(len(b), d.cfg.Geometry.WriteSize)
	if n == len(b) {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	nor.Fill(out[len(b):], nor.ErasedValue)
	return out
}

// WriteFirmware writes one chunk of an upload. Offset 0 starts a new upload.
func (d *Device) WriteFirmware(ctx context.Context, offset int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.restorePower(); err != nil {
		return err
	}
	if offset+len(data) > int(d.cfg.Active.Size) {
		d.session = nil
		return fmt.Errorf("%w: upload ends at %d, active partition holds %d", updater.ErrImageTooLarge, offset+len(data), d.cfg.Active.Size)
	}
	u := d.session
	if offset == 0 || u == nil {
		var err error
		if u, err = d.newUpdater(); err != nil {
			return err
		}
	}
	// A rejected chunk ends the upload; Commit then has nothing to mark.
	if err := u.WriteFirmware(ctx, offset, d.pad(data)); err != nil {
		d.session = nil
		return err
	}
	d.session = u
	return nil
}

// Commit marks the first length bytes of the current upload for the next
// reset.
func (d *Device) Commit(ctx context.Context, length int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.restorePower(); err != nil {
		return err
	}
	if d.session == nil {
		return domain.ErrNoSession
	}
	if err := d.session.MarkUpdated(ctx, length); err != nil {
		return err
	}
	d.session = nil
	d.logger.Info("upload committed", log.Int("length", length))
	return nil
}

// Confirm marks the running image good.
func (d *Device) Confirm(ctx context.Context) error {
	return d.withUpdater(func(u *updater.Updater) error { return u.MarkBooted(ctx) })
}

// RequestDFU asks the bootloader to stay in DFU mode.
func (d *Device) RequestDFU(ctx context.Context) error {
	return d.withUpdater(func(u *updater.Updater) error { return u.MarkDFU(ctx) })
}

// State returns the intent recorded in STATE.
func (d *Device) State(ctx context.Context) (state.State, error) {
	var st state.State
	err := d.withUpdater(func(u *updater.Updater) error {
		var err error
		st, err = u.GetState(ctx)
		return err
	})
	return st, err
}

func (d *Device) withUpdater(fn func(*updater.Updater) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.restorePower(); err != nil {
		return err
	}
	u, err := d.newUpdater()
	if err != nil {
		return err
	}
	return fn(u)
}

// LastReport returns the persisted report of the last reset.
func (d *Device) LastReport(ctx context.Context) (domain.Report, error) {
	return d.reports.Load(ctx)
}

// Info describes the partition layout as the bootloader sees it.
type Info struct {
	PageSize  int
	PageCount int
	Active    Region
	DFU       Region
	State     Region
}

// Info returns the layout of the device.
func (d *Device) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Info{
		PageSize:  d.loader.PageSize(),
		PageCount: d.loader.PageCount(),
		Active:    d.cfg.Active,
		DFU:       d.cfg.DFU,
		State:     d.cfg.State,
	}
}

// Verify reads ACTIVE and DFU end to end.
func (d *Device) Verify() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.restorePower(); err != nil {
		return err
	}
	for _, k := range []boot.PartitionKind{boot.PartitionActive, boot.PartitionDFU} {
		if err := d.loader.VerifyPartition(k); err != nil {
			return err
		}
	}
	return nil
}

// Start initializes the plugins. ctx bounds their lifetime.
func (d *Device) Start(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.running {
		return domain.ErrAlreadyRunning
	}

	t, runCtx := tomb.WithContext(ctx)
	pluginCfg := PluginConfig{Device: d, StatusDir: d.cfg.StatusDir, Logger: d.logger}
	for i, p := range d.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			d.logger.Error("plugin initialization failed", log.String("plugin", p.Name()), log.Err(err))
			for j := i - 1; j >= 0; j-- {
				_ = d.plugins[j].Shutdown(context.Background())
			}
			t.Kill(err)
			return err
		}
		d.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}
	t.Go(func() error {
		<-t.Dying()
		return nil
	})

	d.tomb = t
	d.running = true
	return nil
}

// Stop shuts plugins down in reverse order.
func (d *Device) Stop() error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if !d.running {
		return domain.ErrNotRunning
	}

	d.tomb.Kill(nil)
	err := d.tomb.Wait()

	for i := len(d.plugins) - 1; i >= 0; i-- {
		p := d.plugins[i]
		if shutdownErr := p.Shutdown(context.Background()); shutdownErr != nil {
			d.logger.Error("plugin shutdown failed", log.String("plugin", p.Name()), log.Err(shutdownErr))
		} else {
			d.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}
	d.running = false
	d.tomb = nil
	return err
}

// Dying returns a channel closed when the device is stopping, or nil when it
// is not running.
func (d *Device) Dying() <-chan struct{} {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.tomb == nil {
		return nil
	}
	return d.tomb.Dying()
}

// Running reports whether Start has been called without Stop.
func (d *Device) Running() bool {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.running
}

// Close stops the device if needed and closes the flash image.
func (d *Device) Close() error {
	if d.Running() {
		_ = d.Stop()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return domain.ErrClosed
	}
	d.closed = true
	return d.file.Close()
}
