package cliconfig

import "os"

// ApplyEnvConfig applies BANKSWAP_* environment variables to cfg.
// They override the file config and are overridden by flags in changed.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("home", os.Getenv("BANKSWAP_HOME"), &cfg.Home)
	s.setString("image", os.Getenv("BANKSWAP_IMAGE"), &cfg.Image)
	s.setString("status-dir", os.Getenv("BANKSWAP_STATUS_DIR"), &cfg.StatusDir)
	s.setString("drop-dir", os.Getenv("BANKSWAP_DROP_DIR"), &cfg.DropDir)
	s.setString("listen", os.Getenv("BANKSWAP_LISTEN"), &cfg.Listen)

	ints := []struct {
		flag, env string
		dst       *int
	}{
		{"read-size", "BANKSWAP_READ_SIZE", &cfg.ReadSize},
		{"write-size", "BANKSWAP_WRITE_SIZE", &cfg.WriteSize},
		{"erase-size", "BANKSWAP_ERASE_SIZE", &cfg.EraseSize},
		{"capacity", "BANKSWAP_CAPACITY", &cfg.Capacity},
		{"buffer-size", "BANKSWAP_BUFFER_SIZE", &cfg.BufferSize},
	}
	for _, v := range ints {
		if err := s.setIntFromString(v.flag, os.Getenv(v.env), v.dst); err != nil {
			return err
		}
	}

	regions := []struct {
		flag, env string
		dst       *uint32
	}{
		{"active-offset", "BANKSWAP_ACTIVE_OFFSET", &cfg.ActiveOffset},
		{"active-size", "BANKSWAP_ACTIVE_SIZE", &cfg.ActiveSize},
		{"dfu-offset", "BANKSWAP_DFU_OFFSET", &cfg.DFUOffset},
		{"dfu-size", "BANKSWAP_DFU_SIZE", &cfg.DFUSize},
		{"state-offset", "BANKSWAP_STATE_OFFSET", &cfg.StateOffset},
		{"state-size", "BANKSWAP_STATE_SIZE", &cfg.StateSize},
	}
	for _, v := range regions {
		if err := s.setUint32FromString(v.flag, os.Getenv(v.env), v.dst); err != nil {
			return err
		}
	}

	if err := s.setDuration("watchdog-timeout", os.Getenv("BANKSWAP_WATCHDOG_TIMEOUT"), &cfg.WatchdogTimeout); err != nil {
		return err
	}
	s.setBoolFromString("require-signed", os.Getenv("BANKSWAP_REQUIRE_SIGNED"), &cfg.RequireSigned)

	return nil
}
