package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Home            string  `toml:"home"`
	Image           string  `toml:"image"`
	StatusDir       string  `toml:"status_dir"`
	DropDir         string  `toml:"drop_dir"`
	Listen          string  `toml:"listen"`
	ReadSize        int     `toml:"read_size"`
	WriteSize       int     `toml:"write_size"`
	EraseSize       int     `toml:"erase_size"`
	Capacity        int     `toml:"capacity"`
	ActiveOffset    *uint32 `toml:"active_offset"`
	ActiveSize      *uint32 `toml:"active_size"`
	DFUOffset       *uint32 `toml:"dfu_offset"`
	DFUSize         *uint32 `toml:"dfu_size"`
	StateOffset     *uint32 `toml:"state_offset"`
	StateSize       *uint32 `toml:"state_size"`
	BufferSize      int     `toml:"buffer_size"`
	WatchdogTimeout string  `toml:"watchdog_timeout"`
	RequireSigned   *bool   `toml:"require_signed"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// WriteFileConfig writes the effective configuration to path as TOML.
func WriteFileConfig(path string, cfg Config) error {
	fc := FileConfig{
		Home:            cfg.Home,
		Image:           cfg.Image,
		StatusDir:       cfg.StatusDir,
		DropDir:         cfg.DropDir,
		Listen:          cfg.Listen,
		ReadSize:        cfg.ReadSize,
		WriteSize:       cfg.WriteSize,
		EraseSize:       cfg.EraseSize,
		Capacity:        cfg.Capacity,
		ActiveOffset:    &cfg.ActiveOffset,
		ActiveSize:      &cfg.ActiveSize,
		DFUOffset:       &cfg.DFUOffset,
		DFUSize:         &cfg.DFUSize,
		StateOffset:     &cfg.StateOffset,
		StateSize:       &cfg.StateSize,
		BufferSize:      cfg.BufferSize,
		WatchdogTimeout: cfg.WatchdogTimeout.String(),
		RequireSigned:   &cfg.RequireSigned,
	}
	b, err := toml.Marshal(fc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.bankswap/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h := DefaultHome(); h != "" {
		return filepath.Join(h, "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("home", fc.Home, &cfg.Home)
	s.setString("image", fc.Image, &cfg.Image)
	s.setString("status-dir", fc.StatusDir, &cfg.StatusDir)
	s.setString("drop-dir", fc.DropDir, &cfg.DropDir)
	s.setString("listen", fc.Listen, &cfg.Listen)

	s.setInt("read-size", fc.ReadSize, &cfg.ReadSize)
	s.setInt("write-size", fc.WriteSize, &cfg.WriteSize)
	s.setInt("erase-size", fc.EraseSize, &cfg.EraseSize)
	s.setInt("capacity", fc.Capacity, &cfg.Capacity)
	s.setInt("buffer-size", fc.BufferSize, &cfg.BufferSize)

	s.setUint32("active-offset", fc.ActiveOffset, &cfg.ActiveOffset)
	s.setUint32("active-size", fc.ActiveSize, &cfg.ActiveSize)
	s.setUint32("dfu-offset", fc.DFUOffset, &cfg.DFUOffset)
	s.setUint32("dfu-size", fc.DFUSize, &cfg.DFUSize)
	s.setUint32("state-offset", fc.StateOffset, &cfg.StateOffset)
	s.setUint32("state-size", fc.StateSize, &cfg.StateSize)

	if err := s.setDuration("watchdog-timeout", fc.WatchdogTimeout, &cfg.WatchdogTimeout); err != nil {
		return err
	}
	s.setBool("require-signed", fc.RequireSigned, &cfg.RequireSigned)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
