package boot

import (
	"crypto/sha256"
	"fmt"

	"github.com/bft-labs/bankswap/pkg/log"
	"github.com/bft-labs/bankswap/pkg/nor"
	"github.com/bft-labs/bankswap/pkg/state"
)

// Config bundles the partitions and scratch buffer the loader owns.
type Config struct {
	Active nor.Flash
	DFU    nor.Flash
	State  nor.Flash
	// Buffer is the scratch buffer every page copy streams through. Its
	// length must divide the page size.
	Buffer *nor.AlignedBuffer
}

// PartitionKind selects a partition for VerifyPartition.
type PartitionKind int

const (
	PartitionActive PartitionKind = iota
	PartitionDFU
)

func (k PartitionKind) String() string {
	if k == PartitionDFU {
		return "dfu"
	}
	return "active"
}

// Loader is the bootloader core.
type Loader struct {
	active   nor.Flash
	dfu      nor.Flash
	store    *state.Store
	buf      []byte
	pageSize int
	pages    int
	opts     options

	// progress caches the first undone step while Prepare runs.
	progress int
}

// New validates cfg and returns a Loader.
func New(cfg Config, opts ...Option) (*Loader, error) {
	if cfg.Active == nil || cfg.DFU == nil || cfg.State == nil || cfg.Buffer == nil {
		return nil, configErr("active, dfu, state and buffer are required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	active, dfu := cfg.Active, cfg.DFU
	pageSize := active.EraseSize()
	if dfu.EraseSize() > pageSize {
		pageSize = dfu.EraseSize()
	}
	for _, f := range []struct {
		name string
		nor.Flash
	}{{"active", active}, {"dfu", dfu}} {
		if pageSize%f.EraseSize() != 0 {
			return nil, configErr("page size %d is not a multiple of %s erase size %d", pageSize, f.name, f.EraseSize())
		}
		if pageSize%f.WriteSize() != 0 {
			return nil, configErr("page size %d is not a multiple of %s write size %d", pageSize, f.name, f.WriteSize())
		}
		if f.Capacity()%pageSize != 0 {
			return nil, configErr("%s capacity %d is not a multiple of page size %d", f.name, f.Capacity(), pageSize)
		}
		if n := cfg.Buffer.Len(); n%f.WriteSize() != 0 || n%f.ReadSize() != 0 {
			return nil, configErr("buffer length %d is not a multiple of %s write and read sizes", n, f.name)
		}
	}
	if pageSize%cfg.Buffer.Len() != 0 {
		return nil, configErr("buffer length %d does not divide page size %d", cfg.Buffer.Len(), pageSize)
	}
	if dfu.Capacity() < active.Capacity()+pageSize {
		return nil, configErr("dfu capacity %d must be at least active capacity %d plus one page of %d",
			dfu.Capacity(), active.Capacity(), pageSize)
	}

	store, err := state.NewStore(cfg.State)
	if err != nil {
		return nil, configErr("%v", err)
	}
	pages := active.Capacity() / pageSize
	if need := store.Layout().RequiredSize(pages); cfg.State.Capacity() < need {
		return nil, configErr("state capacity %d is below the %d bytes needed for %d pages",
			cfg.State.Capacity(), need, pages)
	}

	return &Loader{
		active:   active,
		dfu:      dfu,
		store:    store,
		buf:      cfg.Buffer.Bytes(),
		pageSize: pageSize,
		pages:    pages,
		opts:     o,
	}, nil
}

// PageSize returns the swap unit in bytes.
func (l *Loader) PageSize() int { return l.pageSize }

// PageCount returns the number of pages in ACTIVE.
func (l *Loader) PageCount() int { return l.pages }

// Prepare is TryPrepare for callers with no way to recover: it panics on
// error, leaving the watchdog to reset the device.
func (l *Loader) Prepare() state.State {
	st, err := l.TryPrepare()
	if err != nil {
		panic(err)
	}
	return st
}

// TryPrepare performs any pending swap or revert and returns the boot
// decision. Errors are *BootError.
func (l *Loader) TryPrepare() (state.State, error) {
	cur, err := l.store.Get()
	if err != nil {
		return cur, bootErr("read state", err)
	}
	if cur != state.Swap {
		l.opts.logger.Debug("no update pending", log.Stringer("state", cur))
		return cur, nil
	}

	steps := l.store.Layout().Steps(l.pages)
	l.progress, err = l.store.Progress(steps)
	if err != nil {
		return cur, bootErr("read progress", err)
	}

	if l.progress < 2*l.pages {
		if l.progress == 0 {
			ok, err := l.verifyDigest()
			if err != nil {
				return cur, bootErr("verify digest", err)
			}
			if !ok {
				if err := l.store.Set(state.Boot, nil); err != nil {
					return cur, bootErr("abandon update", err)
				}
				return state.Boot, nil
			}
		}
		l.opts.logger.Info("swapping", log.Int("pages", l.pages), log.Int("resume_step", l.progress))
		if err := l.swap(); err != nil {
			return cur, bootErr("swap", err)
		}
		l.opts.logger.Info("swap complete")
		return state.Swap, nil
	}

	l.opts.logger.Warn("update not confirmed, reverting", log.Int("resume_step", l.progress))
	if err := l.revert(); err != nil {
		return cur, bootErr("revert", err)
	}
	if err := l.store.Set(state.Revert, nil); err != nil {
		return cur, bootErr("set state", err)
	}
	l.opts.logger.Info("revert complete")
	return state.Revert, nil
}

// verifyDigest checks DFU against the recorded digest. It reports true when
// no digest is recorded.
func (l *Loader) verifyDigest() (bool, error) {
	d, err := l.store.Digest()
	if err != nil {
		return false, err
	}
	if d == nil {
		return true, nil
	}
	if int(d.Length) > l.active.Capacity() {
		l.opts.logger.Error("staged image larger than active partition, update abandoned",
			log.Uint32("length", d.Length), log.Int("active_capacity", l.active.Capacity()))
		return false, nil
	}
	h := sha256.New()
	for off := 0; off < int(d.Length); off += len(l.buf) {
		if err := l.dfu.Read(uint32(off), l.buf); err != nil {
			return false, fmt.Errorf("read dfu at 0x%x: %w", off, err)
		}
		n := int(d.Length) - off
		if n > len(l.buf) {
			n = len(l.buf)
		}
		h.Write(l.buf[:n])
	}
	var sum [state.DigestLen]byte
	copy(sum[:], h.Sum(nil))
	if sum != d.Sum {
		l.opts.logger.Error("staged image digest mismatch, update abandoned",
			log.Uint32("length", d.Length),
			log.String("want", fmt.Sprintf("%x", d.Sum)),
			log.String("got", fmt.Sprintf("%x", sum)),
		)
		return false, nil
	}
	return true, nil
}

// MarkBooted confirms the running image from the bootloader side.
func (l *Loader) MarkBooted() error {
	return bootErr("mark booted", l.store.Set(state.Boot, nil))
}

// State returns the intent recorded in STATE without acting on it.
func (l *Loader) State() (state.State, error) {
	st, err := l.store.Get()
	return st, bootErr("read state", err)
}

// VerifyPartition reads the whole partition through the scratch buffer,
// surfacing any read error.
func (l *Loader) VerifyPartition(kind PartitionKind) error {
	f := l.active
	if kind == PartitionDFU {
		f = l.dfu
	}
	for off := 0; off < f.Capacity(); off += len(l.buf) {
		if err := f.Read(uint32(off), l.buf); err != nil {
			return bootErr("verify "+kind.String(), err)
		}
	}
	return nil
}
