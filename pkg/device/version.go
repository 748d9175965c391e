package device

import (
	"fmt"

	"github.com/bft-labs/bankswap/pkg/boot"
	"github.com/bft-labs/bankswap/pkg/log"
	"github.com/bft-labs/bankswap/pkg/nor"
	"github.com/bft-labs/bankswap/pkg/platform"
	"github.com/bft-labs/bankswap/pkg/state"
	"github.com/bft-labs/bankswap/pkg/updater"
	"github.com/bft-labs/bankswap/pkg/watchdog"
)

// Version information for the device module.
const (
	// Version is the current version of the device module.
	Version = "1.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)

// validateModuleVersions checks that all module versions are compatible.
// Returns an error if any module version is below its minimum compatible version.
func validateModuleVersions() error {
	modules := map[string]struct {
		version    string
		minVersion string
	}{
		"nor":      {nor.Version, nor.MinCompatibleVersion},
		"state":    {state.Version, state.MinCompatibleVersion},
		"boot":     {boot.Version, boot.MinCompatibleVersion},
		"updater":  {updater.Version, updater.MinCompatibleVersion},
		"watchdog": {watchdog.Version, watchdog.MinCompatibleVersion},
		"platform": {platform.Version, platform.MinCompatibleVersion},
		"log":      {log.Version, log.MinCompatibleVersion},
	}

	for name, m := range modules {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}
	return nil
}

// isVersionCompatible checks if version >= minVersion.
// Assumes versions are in format "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
