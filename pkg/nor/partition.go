package nor

import "fmt"

// Partition is a window of a parent Flash starting at a sector boundary.
// Offsets passed to its methods are relative to the start of the window.
type Partition struct {
	parent Flash
	offset uint32
	size   uint32
}

// NewPartition returns the region [offset, offset+size) of parent. Both
// offset and size must be multiples of the parent's erase size.
func NewPartition(parent Flash, offset, size uint32) (*Partition, error) {
	es := uint32(parent.EraseSize())
	if size == 0 {
		return nil, fmt.Errorf("partition at 0x%x has zero size", offset)
	}
	if offset%es != 0 || size%es != 0 {
		return nil, &Error{Op: "partition", Offset: offset, Length: int(size), Kind: KindNotAligned,
			Err: fmt.Errorf("erase size is 0x%x", es)}
	}
	if int64(offset)+int64(size) > int64(parent.Capacity()) {
		return nil, &Error{Op: "partition", Offset: offset, Length: int(size), Kind: KindOutOfBounds,
			Err: fmt.Errorf("capacity is 0x%x", parent.Capacity())}
	}
	return &Partition{parent: parent, offset: offset, size: size}, nil
}

// Offset returns the start of the partition within its parent.
func (p *Partition) Offset() uint32 { return p.offset }

func (p *Partition) ReadSize() int  { return p.parent.ReadSize() }
func (p *Partition) WriteSize() int { return p.parent.WriteSize() }
func (p *Partition) EraseSize() int { return p.parent.EraseSize() }
func (p *Partition) Capacity() int  { return int(p.size) }

// Read implements Flash.
func (p *Partition) Read(offset uint32, buf []byte) error {
	if err := CheckRead(p, offset, len(buf)); err != nil {
		return err
	}
	return p.parent.Read(p.offset+offset, buf)
}

// Write implements Flash.
func (p *Partition) Write(offset uint32, data []byte) error {
	if err := CheckWrite(p, offset, len(data)); err != nil {
		return err
	}
	return p.parent.Write(p.offset+offset, data)
}

// Erase implements Flash.
func (p *Partition) Erase(from, to uint32) error {
	if err := CheckErase(p, from, to); err != nil {
		return err
	}
	return p.parent.Erase(p.offset+from, p.offset+to)
}

func (p *Partition) tearErase(from, to uint32) error {
	if t, ok := p.parent.(eraseTearer); ok {
		return t.tearErase(p.offset+from, p.offset+to)
	}
	return nil
}
