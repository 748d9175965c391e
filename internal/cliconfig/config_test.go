package cliconfig

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/bankswap/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Listen != DefaultListen {
		t.Errorf("Listen = %v, want %v", cfg.Listen, DefaultListen)
	}
	if cfg.EraseSize != 4096 || cfg.WriteSize != 4 {
		t.Errorf("geometry = %d/%d, want 4096/4", cfg.EraseSize, cfg.WriteSize)
	}
	if cfg.DFUSize != cfg.ActiveSize+uint32(cfg.EraseSize) {
		t.Errorf("DFUSize = %d, want active plus one page", cfg.DFUSize)
	}
	if cfg.WatchdogTimeout != 5*time.Second {
		t.Errorf("WatchdogTimeout = %v, want 5s", cfg.WatchdogTimeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		check   func(*testing.T, Config)
	}{
		{
			name:   "derives paths from home",
			mutate: func(c *Config) { c.Home = "/tmp/bs" },
			check: func(t *testing.T, c Config) {
				if c.Image != filepath.Join("/tmp/bs", "flash.bin") {
					t.Errorf("Image = %v", c.Image)
				}
				if c.StatusDir != "/tmp/bs" {
					t.Errorf("StatusDir = %v", c.StatusDir)
				}
				if c.DropDir != filepath.Join("/tmp/bs", "drop") {
					t.Errorf("DropDir = %v", c.DropDir)
				}
			},
		},
		{
			name: "explicit image keeps explicit dirs",
			mutate: func(c *Config) {
				c.Home = ""
				c.Image = "/data/img.bin"
				c.StatusDir = "/status"
			},
			check: func(t *testing.T, c Config) {
				if c.StatusDir != "/status" || c.DropDir != "/data/drop" {
					t.Errorf("StatusDir = %v, DropDir = %v", c.StatusDir, c.DropDir)
				}
			},
		},
		{
			name:    "missing image and home",
			mutate:  func(c *Config) { c.Home = "" },
			wantErr: true,
		},
		{
			name:    "zero buffer",
			mutate:  func(c *Config) { c.Home = "/tmp/bs"; c.BufferSize = 0 },
			wantErr: true,
		},
		{
			name:    "zero watchdog timeout",
			mutate:  func(c *Config) { c.Home = "/tmp/bs"; c.WatchdogTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "erase size not a multiple of write size",
			mutate:  func(c *Config) { c.Home = "/tmp/bs"; c.WriteSize = 3 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestDeviceConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Image = filepath.Join(t.TempDir(), "flash.bin")
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	dc := cfg.DeviceConfig()
	if err := dc.Validate(); err != nil {
		t.Fatalf("DeviceConfig().Validate() error = %v", err)
	}
	if dc.DFU.Offset != cfg.DFUOffset || dc.Watchdog.Timeout != cfg.WatchdogTimeout {
		t.Errorf("DeviceConfig() = %+v", dc)
	}

	cfg.DFUOffset = cfg.ActiveOffset
	if err := cfg.DeviceConfig().Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("overlapping partitions error = %v, want ErrInvalidConfig", err)
	}
}

func TestConfigSetter(t *testing.T) {
	s := newConfigSetter(map[string]bool{"listen": true})

	listen := "flag"
	s.setString("listen", "file", &listen)
	if listen != "flag" {
		t.Errorf("changed flag overwritten: %v", listen)
	}

	var off uint32 = 7
	zero := uint32(0)
	s.setUint32("dfu-offset", &zero, &off)
	if off != 0 {
		t.Errorf("setUint32 zero = %d, want 0", off)
	}
	s.setUint32("dfu-offset", nil, &off)
	if off != 0 {
		t.Errorf("setUint32 nil changed value to %d", off)
	}

	if err := s.setUint32FromString("state-offset", "0x11000", &off); err != nil || off != 0x11000 {
		t.Errorf("setUint32FromString = %#x, %v", off, err)
	}
	if err := s.setUint32FromString("state-offset", "0x1_0000_0000", &off); err == nil {
		t.Error("setUint32FromString accepted a value beyond 32 bits")
	}
}
