// Package updater is the application side of a bankswap update.
//
// The running application streams a new image into the DFU partition with
// WriteFirmware, then commits it with MarkUpdated (or VerifyAndMarkUpdated
// when images are signed). After the next reset the bootloader swaps the
// image in. Once the new image has checked itself it calls MarkBooted;
// otherwise the bootloader restores the previous image on the following
// reset.
//
// [BlockingUpdater] works on [nor.Flash]. [Updater] works on [nor.AsyncFlash]
// and takes a context on every method; each flash call is a cancellation
// point, but an erase or write already issued always completes.
//
// Writing firmware or requesting DFU mode while a swap is still pending
// fails with [ErrBadState], so a half-confirmed image can never be
// overwritten.
package updater
