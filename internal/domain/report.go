package domain

import (
	"time"

	"github.com/bft-labs/bankswap/pkg/state"
)

// Report is the outcome of one simulated reset.
type Report struct {
	// Boots counts resets since the report file was created.
	Boots uint64 `json:"boots"`

	// BootedAt is when the reset ran.
	BootedAt time.Time `json:"booted_at"`

	// Decision is what the bootloader decided.
	Decision state.State `json:"decision"`

	// Steps is the number of swap or revert steps performed during this reset.
	Steps int `json:"steps"`

	// SP and Entry are the stack pointer and reset vector handed to the image.
	SP    uint32 `json:"sp"`
	Entry uint32 `json:"entry"`

	// Booted is true when control was handed to the image.
	Booted bool `json:"booted"`

	// Error describes why the reset did not reach the image.
	Error string `json:"error,omitempty"`

	// PowerCut is true when simulated power loss interrupted the reset.
	PowerCut bool `json:"power_cut,omitempty"`
}

// Failed reports whether the reset ended with an error.
func (r Report) Failed() bool {
	return r.Error != ""
}
