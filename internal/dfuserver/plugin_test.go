package dfuserver_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/bft-labs/bankswap/internal/dfuserver"
	"github.com/bft-labs/bankswap/pkg/device"
	"github.com/bft-labs/bankswap/pkg/state"
)

func TestPluginDrivesDevice(t *testing.T) {
	dir := t.TempDir()
	cfg := device.DefaultConfig()
	cfg.ImagePath = filepath.Join(dir, "flash.bin")
	cfg.StatusDir = dir

	plugin := dfuserver.NewPlugin("127.0.0.1:0")
	d, err := device.Open(cfg, device.WithPlugin(plugin))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop()

	image := make([]byte, 2048)
	binary.LittleEndian.PutUint32(image[0:4], 0x20001000)
	binary.LittleEndian.PutUint32(image[4:8], 0x08000301)
	base := "http://" + plugin.Addr()

	for off := 0; off < len(image); off += 512 {
		req, _ := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/v1/firmware/%d", base, off), bytes.NewReader(image[off:off+512]))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("PUT offset %d = %d", off, resp.StatusCode)
		}
	}
	resp, err := http.Post(base+"/v1/firmware/commit", "application/json", bytes.NewReader([]byte(`{"length": 2048}`)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("commit = %d", resp.StatusCode)
	}

	report, err := d.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if report.Decision != state.Swap || report.Entry != 0x08000301 {
		t.Errorf("report = %+v", report)
	}

	// Until the swapped image is confirmed, uploads are refused and a
	// commit finds no upload to mark.
	req, _ := http.NewRequest(http.MethodPut, base+"/v1/firmware/0", bytes.NewReader(image[:512]))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("PUT while swap pending = %d, want 409", resp.StatusCode)
	}
	resp, err = http.Post(base+"/v1/firmware/commit", "application/json", bytes.NewReader([]byte(`{"length": 2048}`)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("commit while swap pending = %d, want 409", resp.StatusCode)
	}
	if st, err := d.State(ctx); err != nil || st != state.Swap {
		t.Fatalf("State() = %v, %v, want swap", st, err)
	}
}
