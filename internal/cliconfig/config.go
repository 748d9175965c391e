package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bft-labs/bankswap/pkg/device"
	"github.com/bft-labs/bankswap/pkg/nor"
	"github.com/bft-labs/bankswap/pkg/watchdog"
)

// DefaultListen is the default address of the DFU HTTP server.
const DefaultListen = "127.0.0.1:7878"

// Config holds CLI configuration for bankswap.
type Config struct {
	Home      string
	Image     string
	StatusDir string
	DropDir   string
	Listen    string

	ReadSize  int
	WriteSize int
	EraseSize int
	Capacity  int

	ActiveOffset uint32
	ActiveSize   uint32
	DFUOffset    uint32
	DFUSize      uint32
	StateOffset  uint32
	StateSize    uint32

	BufferSize      int
	WatchdogTimeout time.Duration
	RequireSigned   bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	d := device.DefaultConfig()
	return Config{
		Home:   DefaultHome(),
		Listen: DefaultListen,

		ReadSize:  d.Geometry.ReadSize,
		WriteSize: d.Geometry.WriteSize,
		EraseSize: d.Geometry.EraseSize,
		Capacity:  d.Geometry.Capacity,

		ActiveOffset: d.Active.Offset,
		ActiveSize:   d.Active.Size,
		DFUOffset:    d.DFU.Offset,
		DFUSize:      d.DFU.Size,
		StateOffset:  d.State.Offset,
		StateSize:    d.State.Size,

		BufferSize:      d.BufferSize,
		WatchdogTimeout: d.Watchdog.Timeout,
	}
}

// DefaultHome returns ~/.bankswap, or "" when the home directory is unknown.
func DefaultHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".bankswap")
	}
	return ""
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Image == "" {
		if c.Home == "" {
			return fmt.Errorf("image is required (or home)")
		}
		c.Image = filepath.Join(c.Home, "flash.bin")
	}
	if c.StatusDir == "" {
		c.StatusDir = filepath.Dir(c.Image)
	}
	if c.DropDir == "" {
		c.DropDir = filepath.Join(filepath.Dir(c.Image), "drop")
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}

	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if c.WatchdogTimeout <= 0 {
		return fmt.Errorf("watchdog timeout must be positive")
	}
	return c.DeviceConfig().Geometry.Validate()
}

// DeviceConfig converts c into the simulator configuration.
func (c Config) DeviceConfig() device.Config {
	return device.Config{
		ImagePath: c.Image,
		Geometry: nor.Geometry{
			ReadSize:  c.ReadSize,
			WriteSize: c.WriteSize,
			EraseSize: c.EraseSize,
			Capacity:  c.Capacity,
		},
		Active:     device.Region{Offset: c.ActiveOffset, Size: c.ActiveSize},
		DFU:        device.Region{Offset: c.DFUOffset, Size: c.DFUSize},
		State:      device.Region{Offset: c.StateOffset, Size: c.StateSize},
		BufferSize: c.BufferSize,
		Watchdog:   watchdog.Config{Timeout: c.WatchdogTimeout},
		StatusDir:  c.StatusDir,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setUint32 sets an offset or size if present and flag not changed. Zero is
// a valid offset, so presence is signalled by a non-nil pointer.
func (s *configSetter) setUint32(flag string, value *uint32, dst *uint32) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setUint32FromString parses a decimal or 0x-prefixed offset.
// Used for environment variables that come as strings.
func (s *configSetter) setUint32FromString(flag, value string, dst *uint32) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	u, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = uint32(u)
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
