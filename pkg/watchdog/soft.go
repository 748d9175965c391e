package watchdog

import (
	"sync"
	"time"
)

// Soft is a software watchdog for host simulation. It survives simulated
// resets for as long as the process lives, like a hardware watchdog survives
// a soft reset.
type Soft struct {
	mu      sync.Mutex
	now     func() time.Time
	running bool
	cfg     Config
	handles []*softHandle
}

// NewSoft returns a stopped software watchdog.
func NewSoft() *Soft {
	return &Soft{now: time.Now}
}

// NewSoftWithClock returns a software watchdog reading time from now.
func NewSoftWithClock(now func() time.Time) *Soft {
	return &Soft{now: now}
}

// TryNew implements Peripheral. Starting a running watchdog with the same
// configuration returns the existing handles.
func (s *Soft) TryNew(n int, cfg Config) (Timer, []Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		if cfg != s.cfg || n != len(s.handles) {
			return nil, nil, ErrIncompatible
		}
		return s, s.handleList(), nil
	}
	s.running = true
	s.cfg = cfg
	s.handles = make([]*softHandle, n)
	for i := range s.handles {
		s.handles[i] = &softHandle{s: s, last: s.now()}
	}
	return s, s.handleList(), nil
}

// Running reports whether the watchdog has been started.
func (s *Soft) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Expired reports whether any handle went unfed for longer than the timeout.
func (s *Soft) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.cfg.Timeout <= 0 {
		return false
	}
	now := s.now()
	for _, h := range s.handles {
		if now.Sub(h.last) > s.cfg.Timeout {
			return true
		}
	}
	return false
}

func (s *Soft) handleList() []Handle {
	out := make([]Handle, len(s.handles))
	for i, h := range s.handles {
		out[i] = h
	}
	return out
}

type softHandle struct {
	s    *Soft
	last time.Time
}

func (h *softHandle) Pet() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.last = h.s.now()
}

func (h *softHandle) IsPet() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.now().Sub(h.last) <= h.s.cfg.Timeout
}
