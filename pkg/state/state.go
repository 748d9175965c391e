package state

import (
	"errors"
	"fmt"
)

// Magic bytes stored in the STATE magic word.
const (
	MagicBoot      byte = 0xD0
	MagicSwap      byte = 0xF0
	MagicRevert    byte = 0xC0
	MagicDfuDetach byte = 0xE0
)

// ErrBadMagic is returned when the magic word holds neither a known magic
// nor the erased value.
var ErrBadMagic = errors.New("bad magic in state partition")

// State is the intent recorded in STATE, and the boot decision derived
// from it.
type State uint8

const (
	// Boot means run the active image as is.
	Boot State = iota
	// Swap means a staged image must be (or has just been) swapped in.
	Swap
	// Revert means the previous image was restored after an unconfirmed swap.
	Revert
	// DfuDetach means the application asked to stay in DFU mode.
	DfuDetach
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Boot:
		return "boot"
	case Swap:
		return "swap"
	case Revert:
		return "revert"
	case DfuDetach:
		return "dfu-detach"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Magic returns the byte stored in the magic word for s.
func (s State) Magic() byte {
	switch s {
	case Swap:
		return MagicSwap
	case Revert:
		return MagicRevert
	case DfuDetach:
		return MagicDfuDetach
	default:
		return MagicBoot
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for _, c := range []State{Boot, Swap, Revert, DfuDetach} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// FromMagic maps a magic byte to its state.
func FromMagic(b byte) (State, bool) {
	switch b {
	case MagicBoot:
		return Boot, true
	case MagicSwap:
		return Swap, true
	case MagicRevert:
		return Revert, true
	case MagicDfuDetach:
		return DfuDetach, true
	default:
		return Boot, false
	}
}
