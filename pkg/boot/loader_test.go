package boot

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bft-labs/bankswap/pkg/nor"
	"github.com/bft-labs/bankswap/pkg/state"
	"github.com/bft-labs/bankswap/pkg/updater"
)

const (
	pageSize    = 256
	activePages = 4
	activeBase  = 0
	activeSize  = activePages * pageSize
	dfuBase     = activeBase + activeSize
	dfuSize     = (activePages + 1) * pageSize
	stateBase   = dfuBase + dfuSize
	stateSize   = pageSize
	deviceSize  = stateBase + stateSize
)

type rig struct {
	mem    *nor.MemFlash
	oldImg []byte
	newImg []byte
}

func fill(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*13)
	}
	return b
}

type parts struct {
	active, dfu, state nor.Flash
}

func split(t *testing.T, f nor.Flash) parts {
	t.Helper()
	a, err := nor.NewPartition(f, activeBase, activeSize)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	d, err := nor.NewPartition(f, dfuBase, dfuSize)
	if err != nil {
		t.Fatalf("dfu: %v", err)
	}
	s, err := nor.NewPartition(f, stateBase, stateSize)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return parts{active: a, dfu: d, state: s}
}

// newRig returns a device running oldImg with newImg staged and marked.
func newRig(t *testing.T, imgLen int, opts ...nor.MemOption) rig {
	t.Helper()
	mem, err := nor.NewMemFlash(nor.Geometry{ReadSize: 1, WriteSize: 4, EraseSize: pageSize, Capacity: deviceSize}, opts...)
	if err != nil {
		t.Fatalf("NewMemFlash: %v", err)
	}
	r := rig{mem: mem, oldImg: fill(activeSize, 1), newImg: fill(imgLen, 100)}
	if err := mem.Write(activeBase, r.oldImg); err != nil {
		t.Fatalf("write old image: %v", err)
	}
	p := split(t, mem)
	u, err := updater.NewBlocking(updater.Config{DFU: p.dfu, State: p.state})
	if err != nil {
		t.Fatalf("NewBlocking: %v", err)
	}
	if err := u.WriteFirmware(0, r.newImg); err != nil {
		t.Fatalf("WriteFirmware: %v", err)
	}
	if err := u.MarkUpdated(len(r.newImg)); err != nil {
		t.Fatalf("MarkUpdated: %v", err)
	}
	return r
}

func (r rig) loader(t *testing.T, f nor.Flash, opts ...Option) *Loader {
	t.Helper()
	if f == nil {
		f = r.mem
	}
	p := split(t, f)
	buf, err := nor.NewAlignedBuffer(64, 4)
	if err != nil {
		t.Fatalf("NewAlignedBuffer: %v", err)
	}
	l, err := New(Config{Active: p.active, DFU: p.dfu, State: p.state, Buffer: buf}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func (r rig) active() []byte { return r.mem.Bytes()[activeBase : activeBase+activeSize] }
func (r rig) dfu() []byte    { return r.mem.Bytes()[dfuBase : dfuBase+dfuSize] }

func (r rig) state(t *testing.T) state.State {
	t.Helper()
	s, err := state.NewStore(split(t, r.mem).state)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	st, err := s.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return st
}

func (r rig) expectSwapped(t *testing.T) {
	t.Helper()
	if !bytes.Equal(r.active()[:len(r.newImg)], r.newImg) {
		t.Fatalf("active does not hold the new image")
	}
	if !bytes.Equal(r.dfu()[pageSize:], r.oldImg) {
		t.Fatalf("dfu does not hold the old image behind the spare page")
	}
}

func (r rig) expectReverted(t *testing.T) {
	t.Helper()
	if !bytes.Equal(r.active(), r.oldImg) {
		t.Fatalf("active does not hold the old image")
	}
}

func TestSwapThenRevert(t *testing.T) {
	r := newRig(t, activeSize, nor.WithEraseCheck())

	if st := r.loader(t, nil).Prepare(); st != state.Swap {
		t.Fatalf("first boot: expected swap, got %s", st)
	}
	r.expectSwapped(t)
	if r.state(t) != state.Swap {
		t.Fatalf("magic must stay swap until confirmed")
	}

	if st := r.loader(t, nil).Prepare(); st != state.Revert {
		t.Fatalf("second boot: expected revert, got %s", st)
	}
	r.expectReverted(t)

	r.mem.ResetStats()
	if st := r.loader(t, nil).Prepare(); st != state.Revert {
		t.Fatalf("third boot: expected revert, got %s", st)
	}
	if s := r.mem.Stats(); s.Writes != 0 || s.Erases != 0 {
		t.Fatalf("revert decision must not write flash, got %+v", s)
	}
}

func TestConfirmCutAfterInvalidatingLog(t *testing.T) {
	r := newRig(t, activeSize)
	if st := r.loader(t, nil).Prepare(); st != state.Swap {
		t.Fatalf("expected swap, got %s", st)
	}
	// MarkBooted lost power right after clearing the validity word.
	if err := r.mem.Write(stateBase+4, []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	r.mem.ResetStats()
	if st := r.loader(t, nil).Prepare(); st != state.Revert {
		t.Fatalf("expected revert, got %s", st)
	}
	// No page moved: the confirmed image is still running.
	r.expectSwapped(t)
	if s := r.mem.Stats(); s.Erases != 1 {
		t.Fatalf("expected only the STATE erase, got %+v", s)
	}
}

func TestConfirmedImageStays(t *testing.T) {
	r := newRig(t, 700)

	l := r.loader(t, nil)
	if st := l.Prepare(); st != state.Swap {
		t.Fatalf("expected swap, got %s", st)
	}
	if err := l.MarkBooted(); err != nil {
		t.Fatalf("MarkBooted: %v", err)
	}
	for i := 0; i < 3; i++ {
		if st := r.loader(t, nil).Prepare(); st != state.Boot {
			t.Fatalf("boot %d: expected boot, got %s", i, st)
		}
	}
	r.expectSwapped(t)
}

func TestDecisionWithoutSwap(t *testing.T) {
	tests := []struct {
		name string
		set  func(*state.Store) error
		want state.State
	}{
		{"fresh device", func(*state.Store) error { return nil }, state.Boot},
		{"boot", func(s *state.Store) error { return s.Set(state.Boot, nil) }, state.Boot},
		{"dfu detach", func(s *state.Store) error { return s.Set(state.DfuDetach, nil) }, state.DfuDetach},
		{"revert", func(s *state.Store) error { return s.Set(state.Revert, nil) }, state.Revert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem, err := nor.NewMemFlash(nor.Geometry{ReadSize: 1, WriteSize: 4, EraseSize: pageSize, Capacity: deviceSize})
			if err != nil {
				t.Fatalf("NewMemFlash: %v", err)
			}
			r := rig{mem: mem}
			s, err := state.NewStore(split(t, mem).state)
			if err != nil {
				t.Fatalf("NewStore: %v", err)
			}
			if err := tt.set(s); err != nil {
				t.Fatalf("set: %v", err)
			}
			mem.ResetStats()
			st, err := r.loader(t, nil).TryPrepare()
			if err != nil {
				t.Fatalf("TryPrepare: %v", err)
			}
			if st != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, st)
			}
			if s := mem.Stats(); s.Writes != 0 || s.Erases != 0 {
				t.Fatalf("expected no writes, got %+v", s)
			}
		})
	}
}

func TestBadMagic(t *testing.T) {
	r := newRig(t, activeSize)
	if err := r.mem.Erase(stateBase, stateBase+stateSize); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if err := r.mem.Write(stateBase, []byte{0x12, 0x34, 0x56, 0x78}); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := r.loader(t, nil)
	_, err := l.TryPrepare()
	if !errors.Is(err, state.ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	var be *BootError
	if !errors.As(err, &be) || be.Op != "read state" {
		t.Fatalf("expected *BootError for read state, got %#v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Prepare to panic")
		}
	}()
	l.Prepare()
}

func TestDigestMismatchAbandonsUpdate(t *testing.T) {
	r := newRig(t, activeSize)
	// Clear bits in the staged image behind the updater's back.
	if err := r.mem.Write(dfuBase+128, []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	st, err := r.loader(t, nil).TryPrepare()
	if err != nil {
		t.Fatalf("TryPrepare: %v", err)
	}
	if st != state.Boot {
		t.Fatalf("expected boot, got %s", st)
	}
	r.expectReverted(t)
	if r.state(t) != state.Boot {
		t.Fatalf("expected state reset to boot")
	}
}

func TestInterruptedSwapResumes(t *testing.T) {
	for _, torn := range []bool{false, true} {
		for k := 0; ; k++ {
			if k > 1000 {
				t.Fatalf("swap never completed")
			}
			r := newRig(t, activeSize, nor.WithEraseCheck())
			var opts []nor.FaultOption
			if torn {
				opts = append(opts, nor.WithTornOps())
			}
			ff := nor.NewFaultFlash(r.mem, k, opts...)
			st, err := r.loader(t, ff).TryPrepare()
			if err == nil {
				if st != state.Swap {
					t.Fatalf("uninterrupted boot: expected swap, got %s", st)
				}
				r.expectSwapped(t)
				break
			}
			if !errors.Is(err, nor.ErrPowerLoss) {
				t.Fatalf("torn=%v cut %d: unexpected error %v", torn, k, err)
			}

			if st := r.loader(t, nil).Prepare(); st != state.Swap {
				t.Fatalf("torn=%v cut %d: expected swap after resume, got %s", torn, k, st)
			}
			r.expectSwapped(t)
		}
	}
}

func TestInterruptedRevertResumes(t *testing.T) {
	for _, torn := range []bool{false, true} {
		for k := 0; ; k++ {
			if k > 1000 {
				t.Fatalf("revert never completed")
			}
			r := newRig(t, activeSize, nor.WithEraseCheck())
			if st := r.loader(t, nil).Prepare(); st != state.Swap {
				t.Fatalf("expected swap, got %s", st)
			}
			var opts []nor.FaultOption
			if torn {
				opts = append(opts, nor.WithTornOps())
			}
			ff := nor.NewFaultFlash(r.mem, k, opts...)
			st, err := r.loader(t, ff).TryPrepare()
			if err == nil {
				if st != state.Revert {
					t.Fatalf("uninterrupted boot: expected revert, got %s", st)
				}
				r.expectReverted(t)
				break
			}
			if !errors.Is(err, nor.ErrPowerLoss) {
				t.Fatalf("torn=%v cut %d: unexpected error %v", torn, k, err)
			}

			// A cut after STATE was erased leaves a fresh (boot) record;
			// either way the old image must be back in place.
			st = r.loader(t, nil).Prepare()
			if st != state.Revert && st != state.Boot {
				t.Fatalf("torn=%v cut %d: expected revert or boot, got %s", torn, k, st)
			}
			r.expectReverted(t)
			if again := r.loader(t, nil).Prepare(); again != st {
				t.Fatalf("torn=%v cut %d: decision changed from %s to %s", torn, k, st, again)
			}
		}
	}
}

func TestRepeatedPowerLoss(t *testing.T) {
	r := newRig(t, activeSize, nor.WithEraseCheck())
	boots := 0
	for {
		boots++
		if boots > 100 {
			t.Fatalf("swap did not converge")
		}
		ff := nor.NewFaultFlash(r.mem, 7, nor.WithTornOps())
		st, err := r.loader(t, ff).TryPrepare()
		if err == nil {
			if st != state.Swap {
				t.Fatalf("expected swap, got %s", st)
			}
			break
		}
		if !errors.Is(err, nor.ErrPowerLoss) {
			t.Fatalf("boot %d: %v", boots, err)
		}
	}
	if boots < 2 {
		t.Fatalf("expected the swap to need several boots, took %d", boots)
	}
	r.expectSwapped(t)
}

func TestProgressCallback(t *testing.T) {
	r := newRig(t, activeSize)
	var got []Progress
	l := r.loader(t, nil, WithProgressCallback(func(p Progress) { got = append(got, p) }))
	if st := l.Prepare(); st != state.Swap {
		t.Fatalf("expected swap, got %s", st)
	}
	if len(got) != 2*activePages {
		t.Fatalf("expected %d swap steps, got %d", 2*activePages, len(got))
	}
	for i, p := range got {
		if p.Step != i || p.Phase != PhaseSwap || p.Total != 4*activePages {
			t.Fatalf("unexpected progress %d: %+v", i, p)
		}
	}
	if got[0].Page != activePages || got[1].Page != activePages-1 {
		t.Fatalf("swap must start from the last page, got %+v %+v", got[0], got[1])
	}

	got = nil
	l = r.loader(t, nil, WithProgressCallback(func(p Progress) { got = append(got, p) }))
	if st := l.Prepare(); st != state.Revert {
		t.Fatalf("expected revert, got %s", st)
	}
	if len(got) != 2*activePages || got[0].Phase != PhaseRevert || got[0].Step != 2*activePages {
		t.Fatalf("unexpected revert progress %+v", got)
	}
}

func TestMixedEraseSizes(t *testing.T) {
	active, _ := nor.NewMemFlash(nor.Geometry{ReadSize: 1, WriteSize: 4, EraseSize: 128, Capacity: 1024})
	dfu, _ := nor.NewMemFlash(nor.Geometry{ReadSize: 1, WriteSize: 8, EraseSize: 256, Capacity: 1280})
	st, _ := nor.NewMemFlash(nor.Geometry{ReadSize: 1, WriteSize: 4, EraseSize: 256, Capacity: 256})

	oldImg, newImg := fill(1024, 7), fill(1024, 77)
	if err := active.Write(0, oldImg); err != nil {
		t.Fatalf("write: %v", err)
	}
	u, err := updater.NewBlocking(updater.Config{DFU: dfu, State: st})
	if err != nil {
		t.Fatalf("NewBlocking: %v", err)
	}
	if err := u.WriteFirmware(0, newImg); err != nil {
		t.Fatalf("WriteFirmware: %v", err)
	}
	if err := u.MarkUpdated(len(newImg)); err != nil {
		t.Fatalf("MarkUpdated: %v", err)
	}

	buf, _ := nor.NewAlignedBuffer(64, 8)
	l, err := New(Config{Active: active, DFU: dfu, State: st, Buffer: buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.PageSize() != 256 || l.PageCount() != 4 {
		t.Fatalf("expected 4 pages of 256 bytes, got %d of %d", l.PageCount(), l.PageSize())
	}
	if s := l.Prepare(); s != state.Swap {
		t.Fatalf("expected swap, got %s", s)
	}
	if !bytes.Equal(active.Bytes(), newImg) {
		t.Fatalf("active does not hold the new image")
	}
	if s := l.Prepare(); s != state.Revert {
		t.Fatalf("expected revert, got %s", s)
	}
	if !bytes.Equal(active.Bytes(), oldImg) {
		t.Fatalf("active does not hold the old image")
	}
}

func TestNewValidatesGeometry(t *testing.T) {
	mem := func(erase, capacity int) *nor.MemFlash {
		m, err := nor.NewMemFlash(nor.Geometry{ReadSize: 1, WriteSize: 4, EraseSize: erase, Capacity: capacity})
		if err != nil {
			t.Fatalf("NewMemFlash: %v", err)
		}
		return m
	}
	buf := func(n int) *nor.AlignedBuffer {
		b, err := nor.NewAlignedBuffer(n, 4)
		if err != nil {
			t.Fatalf("NewAlignedBuffer: %v", err)
		}
		return b
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing state", Config{Active: mem(256, 1024), DFU: mem(256, 1280), Buffer: buf(64)}},
		{"dfu without spare page", Config{Active: mem(256, 1024), DFU: mem(256, 1024), State: mem(256, 256), Buffer: buf(64)}},
		{"buffer does not divide page", Config{Active: mem(256, 1024), DFU: mem(256, 1280), State: mem(256, 256), Buffer: buf(96)}},
		{"erase sizes incompatible", Config{Active: mem(96, 960), DFU: mem(256, 1280), State: mem(256, 256), Buffer: buf(32)}},
		{"active not page multiple", Config{Active: mem(128, 640), DFU: mem(256, 1280), State: mem(256, 256), Buffer: buf(64)}},
		{"state too small", Config{Active: mem(16, 4096), DFU: mem(16, 4112), State: mem(16, 64), Buffer: buf(16)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestVerifyPartition(t *testing.T) {
	r := newRig(t, activeSize)
	l := r.loader(t, nil)
	for _, k := range []PartitionKind{PartitionActive, PartitionDFU} {
		if err := l.VerifyPartition(k); err != nil {
			t.Fatalf("VerifyPartition(%s): %v", k, err)
		}
	}

	ff := nor.NewFaultFlash(r.mem, 0)
	_ = ff.Erase(0, pageSize)
	if err := r.loader(t, ff).VerifyPartition(PartitionDFU); !errors.Is(err, nor.ErrPowerLoss) {
		t.Fatalf("expected read failure, got %v", err)
	}
}
