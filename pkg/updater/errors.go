package updater

import "errors"

var (
	// ErrBadState is returned when the operation needs a confirmed image but
	// STATE still records a pending swap.
	ErrBadState = errors.New("updater: swap pending, image not confirmed")

	// ErrNotAligned is returned for offsets or lengths that are not a
	// multiple of the DFU write size.
	ErrNotAligned = errors.New("updater: offset or length not aligned to write size")

	// ErrImageTooLarge is returned when an image does not fit in DFU.
	ErrImageTooLarge = errors.New("updater: image exceeds DFU capacity")

	// ErrSignature is returned when an image signature does not verify.
	ErrSignature = errors.New("updater: signature verification failed")
)
