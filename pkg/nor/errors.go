package nor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a flash failure the way the storage capability
// reports it. Callers never see more detail than the kind.
type ErrorKind int

const (
	// KindOther is any device failure that is not one of the kinds below.
	KindOther ErrorKind = iota
	// KindNotAligned means an offset or length broke the device granularity.
	KindNotAligned
	// KindOutOfBounds means the access ran past Capacity.
	KindOutOfBounds
	// KindNotErased means a write targeted bytes that were not erased.
	KindNotErased
)

// String returns a human-readable representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNotAligned:
		return "not aligned"
	case KindOutOfBounds:
		return "out of bounds"
	case KindNotErased:
		return "not erased"
	default:
		return "other"
	}
}

// Error is returned by Flash implementations in this package.
type Error struct {
	Op     string
	Offset uint32
	Length int
	Kind   ErrorKind
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("flash %s at 0x%x (%d bytes): %s", e.Op, e.Offset, e.Length, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or KindOther.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindOther
}

// CheckRead validates a read of length bytes at offset against f.
func CheckRead(f Flash, offset uint32, length int) error {
	if err := checkBounds(f, "read", offset, length); err != nil {
		return err
	}
	if !aligned(offset, length, f.ReadSize()) {
		return &Error{Op: "read", Offset: offset, Length: length, Kind: KindNotAligned}
	}
	return nil
}

// CheckWrite validates a write of length bytes at offset against f.
func CheckWrite(f Flash, offset uint32, length int) error {
	if err := checkBounds(f, "write", offset, length); err != nil {
		return err
	}
	if !aligned(offset, length, f.WriteSize()) {
		return &Error{Op: "write", Offset: offset, Length: length, Kind: KindNotAligned}
	}
	return nil
}

// CheckErase validates an erase of [from, to) against f.
func CheckErase(f Flash, from, to uint32) error {
	if to < from {
		return &Error{Op: "erase", Offset: from, Kind: KindOutOfBounds,
			Err: fmt.Errorf("end 0x%x before start", to)}
	}
	length := int(to - from)
	if err := checkBounds(f, "erase", from, length); err != nil {
		return err
	}
	if !aligned(from, length, f.EraseSize()) {
		return &Error{Op: "erase", Offset: from, Length: length, Kind: KindNotAligned}
	}
	return nil
}

func checkBounds(f Flash, op string, offset uint32, length int) error {
	if length < 0 || int64(offset)+int64(length) > int64(f.Capacity()) {
		return &Error{Op: op, Offset: offset, Length: length, Kind: KindOutOfBounds,
			Err: fmt.Errorf("capacity is 0x%x", f.Capacity())}
	}
	return nil
}

func aligned(offset uint32, length, unit int) bool {
	if unit <= 1 {
		return true
	}
	return int(offset)%unit == 0 && length%unit == 0
}
