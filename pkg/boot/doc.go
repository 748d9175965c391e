// Package boot decides which image a device runs and performs the
// power-loss-tolerant swap between the ACTIVE and DFU partitions.
//
// The loader runs before the application. [Loader.Prepare] reads STATE and
// returns the boot decision:
//
//   - Boot, Revert, DfuDetach: nothing to do, no flash is written.
//   - Swap with an unfinished swap log: the staged image is swapped in page
//     by page and Swap is returned. The application must check itself and
//     call MarkBooted.
//   - Swap with a finished swap log: the application never confirmed, so the
//     previous image is restored and Revert is returned.
//
// # Swap algorithm
//
// Pages are max(ACTIVE erase size, DFU erase size) bytes. DFU holds one more
// page than ACTIVE; that spare page is the rotation slot. With n pages the
// swap walks from the last page to the first. For page p (counting from the
// end) it copies ACTIVE page n-1-p into DFU page n-p, then DFU page n-1-p
// into ACTIVE page n-1-p. After the swap DFU holds the old image shifted by
// one page, which is what the revert walks forward over.
//
// Each copy is an erase followed by chunked writes through the scratch
// buffer, and a progress marker is written only once the copy finished. A
// reset at any point redoes at most the copy that was in flight.
//
//	step           from           to
//	2p             ACTIVE[n-1-p]  DFU[n-p]
//	2p+1           DFU[n-1-p]     ACTIVE[n-1-p]
//	2n+2p          ACTIVE[p]      DFU[p]
//	2n+2p+1        DFU[p+1]       ACTIVE[p]
package boot
