// Package platform is the single architecture-specific boundary of the
// bootloader: handing control to the image in ACTIVE.
//
// Everything up to the jump is portable. [Load] reads the Cortex-M vector
// table at the start of ACTIVE and passes the initial stack pointer and
// reset vector to a [Jumper]. A device build implements Jumper with a few
// lines of assembly (set MSP, VTOR, branch); the simulator records the
// hand-off instead.
package platform

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bft-labs/bankswap/pkg/nor"
)

// ErrNoImage is returned when ACTIVE holds no vector table.
var ErrNoImage = errors.New("no image in active partition")

// VectorTableSize is the number of bytes Load reads: initial SP and reset
// vector.
const VectorTableSize = 8

// Jumper transfers control to an image. On hardware Jump does not return.
type Jumper interface {
	Jump(sp, entry uint32) error
}

// JumperFunc adapts a function to Jumper.
type JumperFunc func(sp, entry uint32) error

// Jump calls f.
func (f JumperFunc) Jump(sp, entry uint32) error { return f(sp, entry) }

// VectorTable is the start of a Cortex-M vector table.
type VectorTable struct {
	SP    uint32
	Entry uint32
}

// ReadVectorTable reads the vector table at the start of active.
func ReadVectorTable(active nor.Flash) (VectorTable, error) {
	n := nor.RoundUp(VectorTableSize, active.ReadSize())
	buf := make([]byte, n)
	if err := active.Read(0, buf); err != nil {
		return VectorTable{}, fmt.Errorf("read vector table: %w", err)
	}
	if nor.IsErased(buf[:VectorTableSize]) {
		return VectorTable{}, ErrNoImage
	}
	return VectorTable{
		SP:    binary.LittleEndian.Uint32(buf[0:4]),
		Entry: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// Load reads the vector table of active and jumps to it.
func Load(j Jumper, active nor.Flash) error {
	vt, err := ReadVectorTable(active)
	if err != nil {
		return err
	}
	return j.Jump(vt.SP, vt.Entry)
}
