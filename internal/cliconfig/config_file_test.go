package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func u32(v uint32) *uint32 { return &v }

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				Image:           "/img/flash.bin",
				Listen:          ":9000",
				EraseSize:       1024,
				ActiveOffset:    u32(0),
				DFUOffset:       u32(0x4000),
				WatchdogTimeout: "2s",
				RequireSigned:   &trueVal,
			},
			changed: map[string]bool{},
			initial: Config{ActiveOffset: 0x100},
			expected: Config{
				Image:           "/img/flash.bin",
				Listen:          ":9000",
				EraseSize:       1024,
				ActiveOffset:    0,
				DFUOffset:       0x4000,
				WatchdogTimeout: 2 * time.Second,
				RequireSigned:   true,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				Image:      "/file/flash.bin",
				BufferSize: 512,
				DFUSize:    u32(8192),
			},
			changed: map[string]bool{"image": true, "dfu-size": true},
			initial: Config{
				Image:   "/flag/flash.bin",
				DFUSize: 4096,
			},
			expected: Config{
				Image:      "/flag/flash.bin",
				BufferSize: 512,
				DFUSize:    4096,
			},
		},
		{
			name: "returns error for invalid duration",
			fileConfig: FileConfig{
				WatchdogTimeout: "soon",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyFileConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyFileConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("config = %+v\nwant %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
image = "/tmp/flash.bin"
erase_size = 2048
active_offset = 0
dfu_offset = 16384
watchdog_timeout = "1s"
require_signed = true
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.Image != "/tmp/flash.bin" {
		t.Errorf("Image = %v, want /tmp/flash.bin", fc.Image)
	}
	if fc.EraseSize != 2048 {
		t.Errorf("EraseSize = %v, want 2048", fc.EraseSize)
	}
	if fc.ActiveOffset == nil || *fc.ActiveOffset != 0 {
		t.Errorf("ActiveOffset = %v, want 0", fc.ActiveOffset)
	}
	if fc.DFUOffset == nil || *fc.DFUOffset != 16384 {
		t.Errorf("DFUOffset = %v, want 16384", fc.DFUOffset)
	}
	if fc.StateOffset != nil {
		t.Errorf("StateOffset = %v, want unset", *fc.StateOffset)
	}
	if fc.RequireSigned == nil || !*fc.RequireSigned {
		t.Errorf("RequireSigned = %v, want true", fc.RequireSigned)
	}
}

func TestWriteFileConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.Image = "/tmp/flash.bin"
	cfg.ActiveOffset = 0

	if err := WriteFileConfig(path, cfg); err != nil {
		t.Fatalf("WriteFileConfig() error = %v", err)
	}
	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}
	var got Config
	if err := ApplyFileConfig(&got, fc, nil); err != nil {
		t.Fatal(err)
	}
	if got != cfg {
		t.Errorf("round trip = %+v\nwant %+v", got, cfg)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
image = "/test"
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path != "" && !strings.Contains(path, ".bankswap") {
		t.Errorf("DefaultConfigPath() = %v, should contain .bankswap", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
