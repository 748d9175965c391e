package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bft-labs/bankswap/internal/cliconfig"
	"github.com/bft-labs/bankswap/internal/dfuserver"
	"github.com/bft-labs/bankswap/internal/domain"
	"github.com/bft-labs/bankswap/internal/manifest"
	"github.com/bft-labs/bankswap/pkg/device"
	"github.com/bft-labs/bankswap/plugins/imagewatcher"
)

func newInitCmd(a *app) *cobra.Command {
	var force, writeConfig bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an erased flash image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			if cliconfig.FileExists(a.cfg.Image) {
				if !force {
					return fmt.Errorf("%s already exists (use --force to erase it)", a.cfg.Image)
				}
				if err := os.Remove(a.cfg.Image); err != nil {
					return err
				}
			}
			if err := os.MkdirAll(filepath.Dir(a.cfg.Image), 0o755); err != nil {
				return err
			}
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()

			if writeConfig {
				path := a.cfgPath
				if path == "" {
					path = cliconfig.DefaultConfigPath()
				}
				if err := cliconfig.WriteFileConfig(path, a.cfg); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", path)
			}
			info := d.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "created %s: %d pages of %d bytes\n", a.cfg.Image, info.PageCount, info.PageSize)
			printLayout(cmd.OutOrStdout(), info)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "erase an existing image")
	cmd.Flags().BoolVar(&writeConfig, "write-config", false, "save the effective configuration")
	return cmd
}

func printLayout(w io.Writer, info device.Info) {
	for _, p := range []struct {
		name string
		r    device.Region
	}{{"active", info.Active}, {"dfu", info.DFU}, {"state", info.State}} {
		fmt.Fprintf(w, "  %-6s 0x%08x-0x%08x (%d bytes)\n", p.name, p.r.Offset, p.r.End(), p.r.Size)
	}
}

func newStageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stage <image.bin|manifest.yaml>",
		Short: "Write an image to DFU and mark it for the next boot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			path := args[0]
			ext := filepath.Ext(path)
			if ext != ".yaml" && ext != ".yml" {
				if a.cfg.RequireSigned {
					return errors.New("raw images are unsigned; stage a signed manifest")
				}
				image, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				if err := d.Stage(ctx, image); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "staged %d bytes\n", len(image))
				return nil
			}

			m, err := manifest.Load(path)
			if err != nil {
				return err
			}
			image, err := m.ReadImage()
			if err != nil {
				return err
			}
			switch {
			case m.Signed():
				pub, sig, err := m.Key()
				if err != nil {
					return err
				}
				err = d.StageSigned(ctx, image, pub, sig)
				if err != nil {
					return err
				}
			case a.cfg.RequireSigned:
				return fmt.Errorf("%s is not signed", path)
			default:
				if err := d.Stage(ctx, image); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "staged %s %s (%d bytes)\n", m.Image, m.Version, len(image))
			return nil
		},
	}
}

func newBootCmd(a *app) *cobra.Command {
	var (
		powerCut int
		confirm  bool
	)
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Reset the device: run the bootloader and hand off to ACTIVE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd, device.WithPowerCut(powerCut))
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			report, bootErr := d.Reset(ctx)
			printReport(cmd.OutOrStdout(), report)
			if bootErr != nil {
				if report.PowerCut {
					fmt.Fprintln(cmd.OutOrStdout(), "power lost; run boot again to resume")
					return nil
				}
				return bootErr
			}
			if confirm {
				if err := d.Confirm(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "image confirmed")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&powerCut, "power-cut", -1, "cut power at this flash write or erase (0-based)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm the image after booting")
	return cmd
}

func printReport(w io.Writer, r domain.Report) {
	fmt.Fprintf(w, "boot #%d: decision=%s steps=%d", r.Boots, r.Decision, r.Steps)
	if r.Booted {
		fmt.Fprintf(w, " sp=0x%08x entry=0x%08x", r.SP, r.Entry)
	}
	if r.Failed() {
		fmt.Fprintf(w, " error=%q", r.Error)
	}
	fmt.Fprintln(w)
}

func newConfirmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm",
		Short: "Mark the running image good",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Confirm(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "image confirmed")
			return nil
		},
	}
}

func newDFUCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dfu",
		Short: "Ask the bootloader to stay in DFU mode on the next boot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.RequestDFU(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "dfu requested")
			return nil
		},
	}
}

type statusOutput struct {
	State      string         `json:"state"`
	PageSize   int            `json:"page_size"`
	PageCount  int            `json:"page_count"`
	LastReport *domain.Report `json:"last_report,omitempty"`
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the recorded state and the last boot report as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			st, err := d.State(ctx)
			if err != nil {
				return err
			}
			info := d.Info()
			out := statusOutput{State: st.String(), PageSize: info.PageSize, PageCount: info.PageCount}
			report, err := d.LastReport(ctx)
			if err != nil {
				return err
			}
			if report.Boots > 0 {
				out.LastReport = &report
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the DFU HTTP API and stage manifests dropped into the drop directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			opts := []device.Option{device.WithPlugin(dfuserver.NewPlugin(a.cfg.Listen))}
			if !noWatch {
				opts = append(opts, imagewatcher.WithImageWatcher(imagewatcher.Config{
					Dir:           a.cfg.DropDir,
					RequireSigned: a.cfg.RequireSigned,
				}))
			}
			d, err := a.open(cmd, opts...)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := d.Start(ctx); err != nil {
				return fmt.Errorf("start device: %w", err)
			}

			select {
			case <-sigCh:
				a.logger.Info().Msg("received signal, stopping...")
			case <-d.Dying():
			}

			if err := d.Stop(); err != nil {
				return fmt.Errorf("stop device: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable the drop directory watcher")
	return cmd
}

func newManifestCmd(a *app) *cobra.Command {
	var (
		version string
		keyPath string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "manifest <image.bin>",
		Short: "Write a manifest for an image, optionally signed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m := manifest.New(args[0], image, version)
			if keyPath != "" {
				priv, err := readKey(keyPath)
				if err != nil {
					return err
				}
				digest := sha512.Sum512(image)
				m.Sign(priv, digest[:])
			}
			if outPath == "" {
				outPath = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".yaml"
			}
			if err := m.Save(outPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "image version")
	cmd.Flags().StringVar(&keyPath, "key", "", "file holding a hex ed25519 seed (see keygen)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "manifest path (default: image path with .yaml)")
	return cmd
}

func newKeygenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen <key-file>",
		Short: "Generate an ed25519 signing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], []byte(hex.EncodeToString(priv.Seed())+"\n"), 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "public key: %s\n", hex.EncodeToString(pub))
			return nil
		},
	}
}

func readKey(path string) (ed25519.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%s: want %d hex-encoded seed bytes", path, ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
