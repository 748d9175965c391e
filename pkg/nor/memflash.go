package nor

import (
	"errors"
	"sync"
)

// MemOption configures a MemFlash.
type MemOption func(*MemFlash)

// WithEraseCheck makes Write fail with KindNotErased when any target byte is
// not erased. Real NOR parts accept such writes and AND the data in; the
// check catches code that forgets to erase first.
func WithEraseCheck() MemOption {
	return func(m *MemFlash) { m.checkErased = true }
}

// WithContents preloads the device. Bytes beyond len(data) stay erased.
func WithContents(data []byte) MemOption {
	return func(m *MemFlash) { copy(m.mem, data) }
}

// Stats counts operations issued against a MemFlash.
type Stats struct {
	Reads  int
	Writes int
	Erases int
}

// MemFlash is an in-memory Flash with NOR semantics.
type MemFlash struct {
	dims
	mu          sync.Mutex
	mem         []byte
	checkErased bool
	stats       Stats
}

// NewMemFlash returns an erased in-memory flash with geometry g.
func NewMemFlash(g Geometry, opts ...MemOption) (*MemFlash, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	m := &MemFlash{dims: dims{g}, mem: make([]byte, g.Capacity)}
	Fill(m.mem, ErasedValue)
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Read implements Flash.
func (m *MemFlash) Read(offset uint32, buf []byte) error {
	if err := CheckRead(m, offset, len(buf)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Reads++
	copy(buf, m.mem[offset:])
	return nil
}

// Write implements Flash. Data is ANDed into the existing content.
func (m *MemFlash) Write(offset uint32, data []byte) error {
	if err := CheckWrite(m, offset, len(data)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	target := m.mem[offset : int(offset)+len(data)]
	if m.checkErased && !IsErased(target) {
		return &Error{Op: "write", Offset: offset, Length: len(data), Kind: KindNotErased,
			Err: errors.New("target not erased")}
	}
	m.stats.Writes++
	for i, b := range data {
		target[i] &= b
	}
	return nil
}

// Erase implements Flash.
func (m *MemFlash) Erase(from, to uint32) error {
	if err := CheckErase(m, from, to); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Erases++
	Fill(m.mem[from:to], ErasedValue)
	return nil
}

// Bytes returns a copy of the whole device content.
func (m *MemFlash) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.mem))
	copy(out, m.mem)
	return out
}

// Stats returns the operation counters.
func (m *MemFlash) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// ResetStats zeroes the operation counters.
func (m *MemFlash) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
}
