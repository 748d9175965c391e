package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/bankswap/internal/cliconfig"
	"github.com/bft-labs/bankswap/pkg/device"
	"github.com/bft-labs/bankswap/pkg/log"
)

const helpDescription = `
Simulate a NOR-flash device with a power-fail-safe A/B bootloader.

Highlights:
  - Stages images into the DFU partition and swaps them in on the next boot.
  - Reverts automatically when a new image is not confirmed.
  - Survives power loss at any flash operation (try boot --power-cut).
  - Serves an HTTP DFU endpoint and watches a drop directory for manifests.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  bankswap init
  bankswap stage firmware.yaml
  bankswap boot --power-cut 40 && bankswap boot
  bankswap confirm
  bankswap serve --listen :7878
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the configuration shared by all subcommands.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	verbose bool
	loaded  bool
	logger  zerolog.Logger
}

// load resolves the configuration: flags > env > file > defaults.
func (a *app) load(cmd *cobra.Command) error {
	if a.loaded {
		return nil
	}
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	}

	// Apply environment variables (BANKSWAP_*)
	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.logger = cliconfig.Logger()
	if a.verbose {
		a.logger = a.logger.Level(zerolog.DebugLevel)
	} else {
		a.logger = a.logger.Level(zerolog.InfoLevel)
	}
	a.logger.Debug().Interface("config", a.cfg).Msg("configuration")
	a.loaded = true
	return nil
}

// open loads the configuration and opens the simulated device.
func (a *app) open(cmd *cobra.Command, opts ...device.Option) (*device.Device, error) {
	if err := a.load(cmd); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(a.cfg.StatusDir, 0o755); err != nil {
		return nil, err
	}
	opts = append([]device.Option{device.WithLogger(log.NewZerologAdapterWithLogger(a.logger))}, opts...)
	d, err := device.Open(a.cfg.DeviceConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	return d, nil
}

func (a *app) bindFlags(fs *pflag.FlagSet) {
	cfg := &a.cfg
	fs.StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.bankswap/config.toml)")
	fs.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	fs.StringVar(&cfg.Home, "home", cfg.Home, "bankswap home directory")
	fs.StringVar(&cfg.Image, "image", cfg.Image, "flash image file (default: <home>/flash.bin)")
	fs.StringVar(&cfg.StatusDir, "status-dir", cfg.StatusDir, "directory for status.json (defaults to the image directory)")
	fs.StringVar(&cfg.DropDir, "drop-dir", cfg.DropDir, "directory watched for image manifests")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "DFU HTTP listen address")

	fs.IntVar(&cfg.ReadSize, "read-size", cfg.ReadSize, "flash read granularity in bytes")
	fs.IntVar(&cfg.WriteSize, "write-size", cfg.WriteSize, "flash write granularity in bytes")
	fs.IntVar(&cfg.EraseSize, "erase-size", cfg.EraseSize, "flash sector size in bytes")
	fs.IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "flash size in bytes")

	fs.Uint32Var(&cfg.ActiveOffset, "active-offset", cfg.ActiveOffset, "ACTIVE partition offset")
	fs.Uint32Var(&cfg.ActiveSize, "active-size", cfg.ActiveSize, "ACTIVE partition size")
	fs.Uint32Var(&cfg.DFUOffset, "dfu-offset", cfg.DFUOffset, "DFU partition offset")
	fs.Uint32Var(&cfg.DFUSize, "dfu-size", cfg.DFUSize, "DFU partition size (ACTIVE plus one page)")
	fs.Uint32Var(&cfg.StateOffset, "state-offset", cfg.StateOffset, "STATE partition offset")
	fs.Uint32Var(&cfg.StateSize, "state-size", cfg.StateSize, "STATE partition size")

	fs.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "bootloader copy buffer size")
	fs.DurationVar(&cfg.WatchdogTimeout, "watchdog-timeout", cfg.WatchdogTimeout, "watchdog timeout")
	fs.BoolVar(&cfg.RequireSigned, "require-signed", cfg.RequireSigned, "reject unsigned manifests")
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: cliconfig.DefaultConfig(), logger: cliconfig.Logger()}

	root := &cobra.Command{
		Use:           "bankswap",
		Short:         "Simulate a power-fail-safe A/B bootloader on NOR flash",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.bindFlags(root.PersistentFlags())

	root.AddCommand(
		newInitCmd(a),
		newStageCmd(a),
		newBootCmd(a),
		newConfirmCmd(a),
		newDFUCmd(a),
		newStatusCmd(a),
		newServeCmd(a),
		newManifestCmd(a),
		newKeygenCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger := cliconfig.Logger()
		logger.Error().Err(err).Msg("bankswap")
		os.Exit(1)
	}
}
