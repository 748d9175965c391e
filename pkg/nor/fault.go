package nor

import (
	"errors"
	"sync"
)

// ErrPowerLoss is returned by FaultFlash once power has been cut.
var ErrPowerLoss = errors.New("power lost")

// FaultOption configures a FaultFlash.
type FaultOption func(*FaultFlash)

// WithTornOps makes the operation that hits the cut complete partially
// before failing: a write programs the first half of its write units and an
// erase clears the first half of its range.
func WithTornOps() FaultOption {
	return func(f *FaultFlash) { f.torn = true }
}

// FaultFlash forwards to a Flash until a budget of mutating operations
// (writes and erases) is used up. The operation that exceeds the budget
// fails with ErrPowerLoss, and so does every call after it.
type FaultFlash struct {
	Flash
	mu     sync.Mutex
	budget int
	ops    int
	torn   bool
	dead   bool
}

// NewFaultFlash cuts power on the mutating operation numbered budget
// (counting from zero). A negative budget never cuts.
func NewFaultFlash(f Flash, budget int, opts ...FaultOption) *FaultFlash {
	ff := &FaultFlash{Flash: f, budget: budget}
	for _, opt := range opts {
		opt(ff)
	}
	return ff
}

// Ops returns the number of mutating operations that reached the device.
func (f *FaultFlash) Ops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ops
}

// Cut reports whether power has been cut.
func (f *FaultFlash) Cut() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dead
}

// Read implements Flash.
func (f *FaultFlash) Read(offset uint32, buf []byte) error {
	f.mu.Lock()
	dead := f.dead
	f.mu.Unlock()
	if dead {
		return ErrPowerLoss
	}
	return f.Flash.Read(offset, buf)
}

// Write implements Flash.
func (f *FaultFlash) Write(offset uint32, data []byte) error {
	if !f.spend() {
		return f.Flash.Write(offset, data)
	}
	if f.torn {
		ws := f.WriteSize()
		if half := len(data) / ws / 2 * ws; half > 0 {
			_ = f.Flash.Write(offset, data[:half])
		}
	}
	return ErrPowerLoss
}

// Erase implements Flash.
func (f *FaultFlash) Erase(from, to uint32) error {
	if !f.spend() {
		return f.Flash.Erase(from, to)
	}
	if f.torn && to > from {
		es := uint32(f.EraseSize())
		if sectors := (to - from) / es; sectors > 1 {
			_ = f.Flash.Erase(from, from+sectors/2*es)
		} else if t, ok := f.Flash.(eraseTearer); ok {
			_ = t.tearErase(from, to)
		}
	}
	return ErrPowerLoss
}

// spend consumes one operation and reports whether it is the one that cuts
// power. Once dead, every call cuts.
func (f *FaultFlash) spend() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead {
		return true
	}
	if f.budget >= 0 && f.ops == f.budget {
		f.dead = true
		return true
	}
	f.ops++
	return false
}

type eraseTearer interface {
	tearErase(from, to uint32) error
}

// tearErase clears the first half of [from, to), modelling an erase that was
// interrupted part way.
func (m *MemFlash) tearErase(from, to uint32) error {
	if err := CheckErase(m, from, to); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	Fill(m.mem[from:from+(to-from)/2], ErasedValue)
	return nil
}
