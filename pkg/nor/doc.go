// Package nor models NOR-flash-class storage for the bankswap bootloader.
//
// NOR flash erases in large sectors, programs in small aligned units, and a
// program operation can only clear bits (1 -> 0). Everything above this
// package (STATE encoding, the swap algorithm, the application updater) is
// written against the [Flash] interface so that the same code runs on a real
// driver, a file-backed image, or the in-memory test double.
//
// # Implementations
//
//   - [MemFlash]: in-memory double with optional erase-before-write checking
//   - [FileFlash]: a flash image stored in a regular file
//   - [Partition]: a window over another Flash (ACTIVE, DFU, STATE)
//   - [FaultFlash]: cuts power after a number of operations, for crash tests
//
// # Alignment
//
// Offsets and lengths passed to Write must be multiples of WriteSize, and
// Erase ranges must be multiples of EraseSize. Violations fail with an
// [*Error] of kind [KindNotAligned]; nothing is silently truncated.
//
// # Async
//
// [AsyncFlash] is the context-aware variant used by the async firmware
// updater. [Async] lifts a blocking Flash, [Bind] lowers an AsyncFlash back
// to a Flash for a single call chain.
package nor
