package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run executes the CLI against a private home directory.
func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	base := []string{"--home", home, "--config", filepath.Join(home, "none.toml")}
	root.SetArgs(append(args[:1:1], append(base, args[1:]...)...))
	err := root.Execute()
	return out.String(), err
}

func writeImage(t *testing.T, dir string, entry uint32) string {
	t.Helper()
	image := make([]byte, 3000)
	binary.LittleEndian.PutUint32(image[0:4], 0x20001000)
	binary.LittleEndian.PutUint32(image[4:8], entry)
	path := filepath.Join(dir, "app.bin")
	if err := os.WriteFile(path, image, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIUpdateCycle(t *testing.T) {
	home := t.TempDir()

	out, err := run(t, home, "init")
	if err != nil {
		t.Fatalf("init: %v\n%s", err, out)
	}
	if !strings.Contains(out, "8 pages of 4096 bytes") {
		t.Errorf("init output = %q", out)
	}
	if _, err := run(t, home, "init"); err == nil {
		t.Error("second init without --force succeeded")
	}

	image := writeImage(t, home, 0x08000101)
	if out, err := run(t, home, "manifest", image, "--version", "1.0.0"); err != nil {
		t.Fatalf("manifest: %v\n%s", err, out)
	}
	if out, err := run(t, home, "stage", filepath.Join(home, "app.yaml")); err != nil {
		t.Fatalf("stage: %v\n%s", err, out)
	}

	out, err = run(t, home, "boot", "--power-cut", "20")
	if err != nil {
		t.Fatalf("boot with power cut: %v\n%s", err, out)
	}
	if !strings.Contains(out, "power lost") {
		t.Errorf("boot output = %q, want power loss notice", out)
	}

	out, err = run(t, home, "boot", "--confirm")
	if err != nil {
		t.Fatalf("boot: %v\n%s", err, out)
	}
	if !strings.Contains(out, "decision=swap") || !strings.Contains(out, "entry=0x08000101") || !strings.Contains(out, "image confirmed") {
		t.Errorf("boot output = %q", out)
	}

	out, err = run(t, home, "status")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	var status statusOutput
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("status output %q: %v", out, err)
	}
	if status.State != "boot" || status.LastReport == nil || status.LastReport.Boots != 2 {
		t.Errorf("status = %+v", status)
	}
}

func TestCLISignedManifest(t *testing.T) {
	home := t.TempDir()
	keyPath := filepath.Join(home, "key.hex")

	out, err := run(t, home, "keygen", keyPath)
	if err != nil || !strings.Contains(out, "public key:") {
		t.Fatalf("keygen: %v\n%s", err, out)
	}
	image := writeImage(t, home, 0x08000201)
	if out, err := run(t, home, "manifest", image, "--key", keyPath, "-o", filepath.Join(home, "signed.yaml")); err != nil {
		t.Fatalf("manifest: %v\n%s", err, out)
	}
	if out, err := run(t, home, "stage", "--require-signed", image); err == nil {
		t.Errorf("staging a raw image with --require-signed succeeded: %s", out)
	}
	if out, err := run(t, home, "stage", "--require-signed", filepath.Join(home, "signed.yaml")); err != nil {
		t.Fatalf("stage signed: %v\n%s", err, out)
	}
	out, err = run(t, home, "boot")
	if err != nil || !strings.Contains(out, "entry=0x08000201") {
		t.Fatalf("boot: %v\n%s", err, out)
	}
}

func TestCLIDFUAndRevert(t *testing.T) {
	home := t.TempDir()
	oldImage := writeImage(t, home, 0x08000301)

	if out, err := run(t, home, "stage", oldImage); err != nil {
		t.Fatalf("stage: %v\n%s", err, out)
	}
	if out, err := run(t, home, "dfu"); err == nil {
		t.Errorf("dfu with a swap pending succeeded: %s", out)
	}
	if out, err := run(t, home, "boot", "--confirm"); err != nil {
		t.Fatalf("boot: %v\n%s", err, out)
	}

	newImage := filepath.Join(home, "new.bin")
	if err := os.Rename(writeImage(t, home, 0x08000401), newImage); err != nil {
		t.Fatal(err)
	}
	if out, err := run(t, home, "stage", newImage); err != nil {
		t.Fatalf("stage: %v\n%s", err, out)
	}
	if out, err := run(t, home, "boot"); err != nil || !strings.Contains(out, "entry=0x08000401") {
		t.Fatalf("boot new image: %v\n%s", err, out)
	}

	out, err := run(t, home, "boot")
	if err != nil {
		t.Fatalf("boot: %v\n%s", err, out)
	}
	if !strings.Contains(out, "decision=revert") || !strings.Contains(out, "entry=0x08000301") {
		t.Errorf("unconfirmed boot output = %q, want revert to the old image", out)
	}

	if out, err := run(t, home, "dfu"); err != nil {
		t.Fatalf("dfu: %v\n%s", err, out)
	}
	out, err = run(t, home, "status")
	if err != nil || !strings.Contains(out, `"state": "dfu-detach"`) {
		t.Errorf("status = %v\n%s", err, out)
	}
}
