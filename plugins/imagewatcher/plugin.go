// Package imagewatcher stages firmware dropped into a directory.
// When enabled, it watches the drop directory for *.yaml manifests, checks
// the image each one names against its SHA-256 and stages it on the device.
// Handled manifests are renamed with a .staged or .failed suffix.
package imagewatcher

import (
	"context"
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/bankswap/internal/manifest"
	"github.com/bft-labs/bankswap/pkg/device"
	"github.com/bft-labs/bankswap/pkg/log"
)

// Suffixes appended to handled manifests.
const (
	SuffixStaged = ".staged"
	SuffixFailed = ".failed"
)

// Stager is the part of the device the watcher drives.
type Stager interface {
	Stage(ctx context.Context, image []byte) error
	StageSigned(ctx context.Context, image []byte, pub ed25519.PublicKey, sig []byte) error
}

// Plugin implements image watching functionality.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	dir           string
	debounceDelay time.Duration
	requireSigned bool

	// Runtime state
	stager   Stager
	logger   log.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce map[string]*time.Timer
	staged   chan string
}

// Config holds configuration options for the image watcher plugin.
type Config struct {
	// Dir is the drop directory. It is created if missing.
	Dir string

	// DebounceDelay is the delay to wait after a manifest changes before
	// staging it.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// RequireSigned rejects manifests without a signature.
	RequireSigned bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new image watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		dir:           cfg.Dir,
		debounceDelay: cfg.DebounceDelay,
		requireSigned: cfg.RequireSigned,
		logger:        log.NewNoopLogger(),
		debounce:      make(map[string]*time.Timer),
		staged:        make(chan string, 16),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "imagewatcher"
}

// Initialize sets up the plugin and starts the watcher.
func (p *Plugin) Initialize(ctx context.Context, cfg device.PluginConfig) error {
	var stager Stager
	if cfg.Device != nil {
		stager = cfg.Device
	}
	return p.start(ctx, stager, cfg.Logger)
}

func (p *Plugin) start(ctx context.Context, stager Stager, logger log.Logger) error {
	p.mu.Lock()
	p.stager = stager
	if logger != nil {
		p.logger = logger
	}
	p.mu.Unlock()

	if p.dir == "" || p.stager == nil {
		p.logger.Warn("image watcher disabled: no drop directory or device")
		return nil
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(p.dir); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("image watcher plugin initialized", log.String("dir", p.dir))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops the watcher and waits for a staging in progress.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	for name, t := range p.debounce {
		if t.Stop() {
			p.wg.Done()
		}
		delete(p.debounce, name)
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

// Staged delivers the path of every manifest handled, staged or failed.
func (p *Plugin) Staged() <-chan string {
	return p.staged
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	// Manifests dropped while the device was down.
	if entries, err := os.ReadDir(p.dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && isManifest(e.Name()) {
				p.debounceStage(ctx, filepath.Join(p.dir, e.Name()))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isManifest(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceStage(ctx, event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("image watcher: watcher error", log.Err(err))
		}
	}
}

func isManifest(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

func (p *Plugin) debounceStage(ctx context.Context, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.debounce[path]; ok && t.Stop() {
		p.wg.Done()
	}
	p.wg.Add(1)
	p.debounce[path] = time.AfterFunc(p.debounceDelay, func() {
		defer p.wg.Done()
		p.mu.Lock()
		delete(p.debounce, path)
		p.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		p.handle(ctx, path)
	})
}

func (p *Plugin) handle(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	suffix := SuffixStaged
	if err := p.stage(ctx, path); err != nil {
		suffix = SuffixFailed
		p.logger.Error("image watcher: staging failed", log.String("manifest", path), log.Err(err))
	}
	if err := os.Rename(path, path+suffix); err != nil {
		p.logger.Error("image watcher: cannot rename manifest", log.String("manifest", path), log.Err(err))
	}
	select {
	case p.staged <- path + suffix:
	default:
	}
}

var errUnsigned = errors.New("manifest is not signed")

func (p *Plugin) stage(ctx context.Context, path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	image, err := m.ReadImage()
	if err != nil {
		return err
	}

	if !m.Signed() {
		if p.requireSigned {
			return errUnsigned
		}
		if err := p.stager.Stage(ctx, image); err != nil {
			return err
		}
	} else {
		pub, sig, err := m.Key()
		if err != nil {
			return err
		}
		if err := p.stager.StageSigned(ctx, image, pub, sig); err != nil {
			return err
		}
	}
	p.logger.Info("image watcher: staged image",
		log.String("image", strings.TrimPrefix(m.ImagePath(), p.dir+string(filepath.Separator))),
		log.String("version", m.Version),
		log.Int("length", len(image)),
	)
	return nil
}

// Ensure Plugin implements device.Plugin.
var _ device.Plugin = (*Plugin)(nil)
