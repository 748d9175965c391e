package device

import (
	"fmt"
	"time"

	"github.com/bft-labs/bankswap/internal/domain"
	"github.com/bft-labs/bankswap/pkg/nor"
	"github.com/bft-labs/bankswap/pkg/watchdog"
)

// Region is a partition of the simulated flash.
type Region struct {
	Offset uint32 `toml:"offset"`
	Size   uint32 `toml:"size"`
}

// End returns the first offset past the region.
func (r Region) End() uint32 { return r.Offset + r.Size }

// Config describes the simulated device.
type Config struct {
	// ImagePath is the file holding the flash contents. It is created
	// (erased) when missing.
	ImagePath string

	// Geometry of the whole flash device.
	Geometry nor.Geometry

	// Active, DFU and State partitions. DFU must be one page larger than
	// Active.
	Active Region
	DFU    Region
	State  Region

	// BufferSize is the scratch buffer size of the bootloader.
	BufferSize int

	// Watchdog configures the software watchdog.
	Watchdog watchdog.Config

	// StatusDir holds status.json with the last boot report.
	StatusDir string
}

// DefaultConfig returns a 72 KiB device with 4 KiB sectors: 8 pages of
// ACTIVE, 9 pages of DFU and one page of STATE.
func DefaultConfig() Config {
	const page = 4096
	return Config{
		Geometry: nor.Geometry{ReadSize: 1, WriteSize: 4, EraseSize: page, Capacity: 18 * page},
		Active:   Region{Offset: 0, Size: 8 * page},
		DFU:      Region{Offset: 8 * page, Size: 9 * page},
		State:    Region{Offset: 17 * page, Size: page},

		BufferSize: 256,
		Watchdog:   watchdog.Config{Timeout: 5 * time.Second},
	}
}

// SetDefaults fills zero fields from DefaultConfig.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.Geometry == (nor.Geometry{}) {
		c.Geometry = d.Geometry
		if c.Active == (Region{}) && c.DFU == (Region{}) && c.State == (Region{}) {
			c.Active, c.DFU, c.State = d.Active, d.DFU, d.State
		}
	}
	if c.BufferSize == 0 {
		c.BufferSize = d.BufferSize
	}
	if c.Watchdog.Timeout == 0 {
		c.Watchdog.Timeout = d.Watchdog.Timeout
	}
}

// Validate checks the layout. Partition geometry beyond overlap and bounds
// (page multiples, the spare DFU page, STATE size) is checked by the
// bootloader when the device opens.
func (c Config) Validate() error {
	if c.ImagePath == "" {
		return fmt.Errorf("%w: image path is required", domain.ErrInvalidConfig)
	}
	if err := c.Geometry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	regions := []struct {
		name string
		Region
	}{{"active", c.Active}, {"dfu", c.DFU}, {"state", c.State}}
	for i, r := range regions {
		if r.Size == 0 {
			return fmt.Errorf("%w: %s partition is empty", domain.ErrInvalidConfig, r.name)
		}
		if int64(r.End()) > int64(c.Geometry.Capacity) {
			return fmt.Errorf("%w: %s partition ends at 0x%x beyond capacity 0x%x",
				domain.ErrInvalidConfig, r.name, r.End(), c.Geometry.Capacity)
		}
		for _, o := range regions[i+1:] {
			if r.Offset < o.End() && o.Offset < r.End() {
				return fmt.Errorf("%w: %s and %s partitions overlap", domain.ErrInvalidConfig, r.name, o.name)
			}
		}
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("%w: buffer size must be positive", domain.ErrInvalidConfig)
	}
	return nil
}
