package nor

// ErasedValue is the value every byte reads as immediately after an erase.
const ErasedValue byte = 0xFF

// Flash is a byte-addressable NOR flash device or a region of one.
//
// Write ANDs data into the existing content: only 1 -> 0 transitions take
// effect until the covering sector is erased again.
type Flash interface {
	// ReadSize is the read granularity in bytes.
	ReadSize() int
	// WriteSize is the program granularity in bytes.
	WriteSize() int
	// EraseSize is the sector size in bytes.
	EraseSize() int
	// Capacity is the addressable size in bytes.
	Capacity() int

	// Read fills buf starting at offset.
	Read(offset uint32, buf []byte) error
	// Write programs data starting at offset.
	Write(offset uint32, data []byte) error
	// Erase resets [from, to) to ErasedValue.
	Erase(from, to uint32) error
}

// IsErased reports whether every byte of b equals ErasedValue.
func IsErased(b []byte) bool {
	for _, v := range b {
		if v != ErasedValue {
			return false
		}
	}
	return true
}

// IsProgrammed reports whether no byte of b equals ErasedValue.
// A torn program of a marker word leaves at least one erased byte behind.
func IsProgrammed(b []byte) bool {
	for _, v := range b {
		if v == ErasedValue {
			return false
		}
	}
	return len(b) > 0
}

// Fill sets every byte of b to v.
func Fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// RoundUp rounds n up to the next multiple of unit.
func RoundUp(n, unit int) int {
	if unit <= 0 {
		return n
	}
	return (n + unit - 1) / unit * unit
}
