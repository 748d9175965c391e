// Package device is an embeddable host-side simulator of a device running
// the bankswap bootloader.
//
// A Device keeps its NOR flash in a regular file, so its state survives
// between runs exactly like flash survives power cycles. Each call to
// [Device.Reset] plays one boot: the bootloader decides, swaps or reverts if
// needed, and hands off to the image in ACTIVE. The application side
// ([Device.Stage], [Device.Confirm], [Device.RequestDFU]) goes through the
// same updater firmware would use.
//
// # Basic Usage
//
//	cfg := device.DefaultConfig()
//	cfg.ImagePath = "/tmp/flash.bin"
//	cfg.StatusDir = "/tmp/bankswap"
//
//	dev, err := device.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	if err := dev.Stage(ctx, image); err != nil {
//	    log.Fatal(err)
//	}
//	report, err := dev.Reset(ctx) // swaps the image in
//	...
//	err = dev.Confirm(ctx)        // keep it
//
// # Power Loss
//
// [WithPowerCut] cuts power after a number of flash writes and erases. The
// interrupted call fails; the next Reset restores power and the bootloader
// resumes from its progress log.
//
// # Plugins
//
// Plugins run while the device is started ([Device.Start]) and are shut
// down in reverse order by [Device.Stop]:
//
//	dev, err := device.Open(cfg,
//	    imagewatcher.WithImageWatcher(imagewatcher.Config{Dir: "/srv/drop"}),
//	)
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package device
