package nor

import (
	"fmt"
	"unsafe"
)

// BufferAlign is the address alignment of an AlignedBuffer.
const BufferAlign = 32

// AlignedBuffer is a scratch buffer whose first byte sits on a BufferAlign
// boundary and whose length is a multiple of a write size. It is owned by
// one operation at a time.
type AlignedBuffer struct {
	raw []byte
	buf []byte
}

// NewAlignedBuffer allocates a buffer of size bytes. size must be a positive
// multiple of writeSize.
func NewAlignedBuffer(size, writeSize int) (*AlignedBuffer, error) {
	if size <= 0 || writeSize <= 0 {
		return nil, fmt.Errorf("aligned buffer: size %d and write size %d must be positive", size, writeSize)
	}
	if size%writeSize != 0 {
		return nil, fmt.Errorf("aligned buffer: size %d is not a multiple of write size %d", size, writeSize)
	}
	raw := make([]byte, size+BufferAlign)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	skip := int((BufferAlign - addr%BufferAlign) % BufferAlign)
	return &AlignedBuffer{raw: raw, buf: raw[skip : skip+size : skip+size]}, nil
}

// Bytes returns the aligned region.
func (b *AlignedBuffer) Bytes() []byte { return b.buf }

// Len returns the size of the aligned region.
func (b *AlignedBuffer) Len() int { return len(b.buf) }

// Aligned reports whether the first byte sits on a BufferAlign boundary.
func (b *AlignedBuffer) Aligned() bool {
	return uintptr(unsafe.Pointer(&b.buf[0]))%BufferAlign == 0
}
