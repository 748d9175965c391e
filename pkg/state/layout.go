package state

import "github.com/bft-labs/bankswap/pkg/nor"

// DigestLen is the size of the digest stored in the digest record.
const DigestLen = 32

// digestRecordLen is the unpadded size of the digest record.
const digestRecordLen = 4 + DigestLen

// StepsPerPage is the number of progress markers one page consumes: two for
// the swap and two for the revert.
const StepsPerPage = 4

// Layout computes field offsets for a STATE partition with a given write
// size.
type Layout struct {
	WriteSize int
}

// MagicOffset is the offset of the magic word.
func (l Layout) MagicOffset() uint32 { return 0 }

// ValidityOffset is the offset of the progress-validity word.
func (l Layout) ValidityOffset() uint32 { return uint32(l.WriteSize) }

// DigestOffset is the offset of the digest record.
func (l Layout) DigestOffset() uint32 { return uint32(2 * l.WriteSize) }

// DigestSize is the padded size of the digest record.
func (l Layout) DigestSize() int { return nor.RoundUp(digestRecordLen, l.WriteSize) }

// ProgressOffset is the offset of the first progress marker.
func (l Layout) ProgressOffset() uint32 {
	return l.DigestOffset() + uint32(l.DigestSize())
}

// MarkerOffset is the offset of the progress marker for step idx.
func (l Layout) MarkerOffset(idx int) uint32 {
	return l.ProgressOffset() + uint32(idx*l.WriteSize)
}

// Steps is the total number of progress markers for pages pages.
func (l Layout) Steps(pages int) int { return StepsPerPage * pages }

// RequiredSize is the minimum STATE capacity for pages pages.
func (l Layout) RequiredSize(pages int) int {
	return int(l.ProgressOffset()) + l.Steps(pages)*l.WriteSize
}
