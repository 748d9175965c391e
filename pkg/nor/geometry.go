package nor

import "fmt"

// Geometry describes the granularity of a flash device.
type Geometry struct {
	ReadSize  int `toml:"read_size" yaml:"read_size"`
	WriteSize int `toml:"write_size" yaml:"write_size"`
	EraseSize int `toml:"erase_size" yaml:"erase_size"`
	Capacity  int `toml:"capacity" yaml:"capacity"`
}

// Validate checks that the geometry describes a usable device.
func (g Geometry) Validate() error {
	if g.ReadSize <= 0 || g.WriteSize <= 0 || g.EraseSize <= 0 {
		return fmt.Errorf("read, write and erase sizes must be positive (got %d/%d/%d)",
			g.ReadSize, g.WriteSize, g.EraseSize)
	}
	if g.EraseSize%g.WriteSize != 0 {
		return fmt.Errorf("erase size %d is not a multiple of write size %d", g.EraseSize, g.WriteSize)
	}
	if g.Capacity <= 0 || g.Capacity%g.EraseSize != 0 {
		return fmt.Errorf("capacity %d is not a positive multiple of erase size %d", g.Capacity, g.EraseSize)
	}
	return nil
}

// GeometryOf returns the geometry reported by f.
func GeometryOf(f Flash) Geometry {
	return Geometry{
		ReadSize:  f.ReadSize(),
		WriteSize: f.WriteSize(),
		EraseSize: f.EraseSize(),
		Capacity:  f.Capacity(),
	}
}

// dims provides the size accessors of Flash for a fixed Geometry.
type dims struct{ g Geometry }

func (d dims) ReadSize() int  { return d.g.ReadSize }
func (d dims) WriteSize() int { return d.g.WriteSize }
func (d dims) EraseSize() int { return d.g.EraseSize }
func (d dims) Capacity() int  { return d.g.Capacity }
