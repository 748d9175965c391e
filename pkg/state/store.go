package state

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bft-labs/bankswap/pkg/nor"
)

// Digest is the image digest recorded when an update is marked.
type Digest struct {
	// Length is the number of image bytes the digest covers.
	Length uint32
	// Sum is the SHA-256 of the first Length bytes of DFU.
	Sum [DigestLen]byte
}

// Store reads and writes the STATE partition.
type Store struct {
	flash  nor.Flash
	layout Layout
	buf    *nor.AlignedBuffer
}

// NewStore returns a Store over f. f must hold at least the header fields.
func NewStore(f nor.Flash) (*Store, error) {
	l := Layout{WriteSize: f.WriteSize()}
	if rs := f.ReadSize(); rs <= 0 || l.WriteSize%rs != 0 {
		return nil, fmt.Errorf("state: write size %d is not a multiple of read size %d", l.WriteSize, rs)
	}
	if f.Capacity() < int(l.ProgressOffset()) {
		return nil, fmt.Errorf("state: partition of %d bytes cannot hold the %d byte header",
			f.Capacity(), l.ProgressOffset())
	}
	buf, err := nor.NewAlignedBuffer(l.DigestSize(), l.WriteSize)
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	return &Store{flash: f, layout: l, buf: buf}, nil
}

// Layout returns the field layout of the partition.
func (s *Store) Layout() Layout { return s.layout }

// Flash returns the underlying partition.
func (s *Store) Flash() nor.Flash { return s.flash }

// Get decodes the magic word.
func (s *Store) Get() (State, error) {
	word := s.word()
	if err := s.flash.Read(s.layout.MagicOffset(), word); err != nil {
		return Boot, fmt.Errorf("read magic: %w", err)
	}
	if nor.IsErased(word) {
		return Boot, nil
	}
	st, ok := FromMagic(word[0])
	if !ok || !bytes.Equal(word, bytes.Repeat(word[:1], len(word))) {
		return Boot, fmt.Errorf("%w: % x", ErrBadMagic, word)
	}
	return st, nil
}

// Digest returns the recorded digest, or nil when none is recorded.
func (s *Store) Digest() (*Digest, error) {
	rec := s.buf.Bytes()
	if err := s.flash.Read(s.layout.DigestOffset(), rec); err != nil {
		return nil, fmt.Errorf("read digest: %w", err)
	}
	if nor.IsErased(rec[:digestRecordLen]) {
		return nil, nil
	}
	d := &Digest{Length: binary.LittleEndian.Uint32(rec[0:4])}
	copy(d.Sum[:], rec[4:digestRecordLen])
	return d, nil
}

// Progress returns the index of the first step of the progress log that is
// not done, or steps when all steps are done. An invalidated log reports
// steps.
func (s *Store) Progress(steps int) (int, error) {
	word := s.word()
	if err := s.flash.Read(s.layout.ValidityOffset(), word); err != nil {
		return 0, fmt.Errorf("read progress validity: %w", err)
	}
	if !nor.IsErased(word) {
		return steps, nil
	}
	for idx := 0; idx < steps; idx++ {
		if err := s.flash.Read(s.layout.MarkerOffset(idx), word); err != nil {
			return 0, fmt.Errorf("read progress marker %d: %w", idx, err)
		}
		if !nor.IsProgrammed(word) {
			return idx, nil
		}
	}
	return steps, nil
}

// Advance marks step idx done.
func (s *Store) Advance(idx int) error {
	off := s.layout.MarkerOffset(idx)
	if int(off)+s.layout.WriteSize > s.flash.Capacity() {
		return fmt.Errorf("progress marker %d beyond state partition", idx)
	}
	word := s.word()
	nor.Fill(word, ^nor.ErasedValue)
	if err := s.flash.Write(off, word); err != nil {
		return fmt.Errorf("write progress marker %d: %w", idx, err)
	}
	return nil
}

// Set records st as the new intent. It is a no-op when st is already
// recorded and d is nil or equal to the recorded digest.
func (s *Store) Set(st State, d *Digest) error {
	cur, err := s.Get()
	if err == nil && cur == st && s.isRecorded(st) {
		if d == nil {
			return nil
		}
		old, err := s.Digest()
		if err != nil {
			return err
		}
		if old != nil && *old == *d {
			return nil
		}
	}

	word := s.word()
	if err := s.flash.Read(s.layout.ValidityOffset(), word); err != nil {
		return fmt.Errorf("read progress validity: %w", err)
	}
	if nor.IsErased(word) {
		nor.Fill(word, ^nor.ErasedValue)
		if err := s.flash.Write(s.layout.ValidityOffset(), word); err != nil {
			return fmt.Errorf("invalidate progress: %w", err)
		}
	}
	if err := s.flash.Erase(0, uint32(s.flash.Capacity())); err != nil {
		return fmt.Errorf("erase state: %w", err)
	}
	if d != nil {
		rec := s.buf.Bytes()
		nor.Fill(rec, nor.ErasedValue)
		binary.LittleEndian.PutUint32(rec[0:4], d.Length)
		copy(rec[4:digestRecordLen], d.Sum[:])
		if err := s.flash.Write(s.layout.DigestOffset(), rec); err != nil {
			return fmt.Errorf("write digest: %w", err)
		}
	}
	word = s.word()
	nor.Fill(word, st.Magic())
	if err := s.flash.Write(s.layout.MagicOffset(), word); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	return nil
}

// isRecorded reports whether the magic word physically holds st's magic.
// An erased word decodes as Boot but does not hold MagicBoot.
func (s *Store) isRecorded(st State) bool {
	word := s.word()
	if err := s.flash.Read(s.layout.MagicOffset(), word); err != nil {
		return false
	}
	return word[0] == st.Magic()
}

func (s *Store) word() []byte {
	return s.buf.Bytes()[:s.layout.WriteSize]
}
