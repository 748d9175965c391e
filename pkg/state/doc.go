// Package state encodes the bootloader STATE partition.
//
// STATE is the only data that survives a reset. It records what the
// application asked for (boot normally, swap in a staged image, enter DFU
// mode) and how far the bootloader has come while swapping, so that an
// interrupted swap resumes exactly where it stopped.
//
// # Layout
//
// With w the STATE write size, every field starts on a w boundary:
//
//	offset 0      magic word      w copies of the magic byte
//	offset w      validity word   erased = progress log valid
//	offset 2w     digest record   u32 LE image length, SHA-256, padded to w
//	offset 2w+D   progress log    one w-byte marker per step, 0x00 = done
//
// A magic word that reads fully erased is a freshly flashed device and is
// reported as [Boot]. Any other value that is not w copies of a known magic
// byte is [ErrBadMagic].
//
// # Changing the magic
//
// Writing a new magic invalidates the validity word first, then erases the
// whole partition, writes the digest record (if any) and finally the magic
// word. A reset between any two of these steps leaves either the old intent
// with an invalid log, an erased partition (Boot), or the new intent.
//
// An invalid log reads as complete. If the application confirms a swapped
// image and power is lost after the validity word is cleared but before the
// erase, the next boot sees Swap with a complete log, skips every revert
// step and records Revert. ACTIVE still holds the confirmed image in that
// case, so a Revert decision does not always mean the old image is back.
//
// # Usage
//
//	st, err := state.NewStore(statePartition)
//	if err != nil {
//	    return err
//	}
//	s, err := st.Get()
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package state
