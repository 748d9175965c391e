package nor

import (
	"bytes"
	"testing"
)

func TestPartitionTranslatesOffsets(t *testing.T) {
	m := newMem(t, Geometry{ReadSize: 1, WriteSize: 4, EraseSize: 16, Capacity: 64})
	p, err := NewPartition(m, 32, 32)
	if err != nil {
		t.Fatalf("NewPartition: %v", err)
	}
	if p.Capacity() != 32 || p.Offset() != 32 {
		t.Fatalf("unexpected partition %d@%d", p.Capacity(), p.Offset())
	}

	if err := p.Write(4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw := m.Bytes()
	if !bytes.Equal(raw[36:40], []byte{1, 2, 3, 4}) {
		t.Fatalf("write landed at wrong offset: % x", raw[32:48])
	}
	if err := p.Erase(0, 16); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if !IsErased(m.Bytes()[32:48]) {
		t.Fatalf("expected partition sector erased")
	}
	if KindOf(p.Write(32, []byte{0, 0, 0, 0})) != KindOutOfBounds {
		t.Fatalf("expected write past partition end to fail")
	}
}

func TestNewPartitionValidation(t *testing.T) {
	m := newMem(t, Geometry{ReadSize: 1, WriteSize: 4, EraseSize: 16, Capacity: 64})

	tests := []struct {
		name         string
		offset, size uint32
		kind         ErrorKind
	}{
		{"unaligned offset", 8, 16, KindNotAligned},
		{"unaligned size", 16, 24, KindNotAligned},
		{"past end", 48, 32, KindOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPartition(m, tt.offset, tt.size)
			if KindOf(err) != tt.kind {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
	if _, err := NewPartition(m, 0, 0); err == nil {
		t.Fatalf("expected zero-size partition to be rejected")
	}
}
