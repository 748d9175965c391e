package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/bankswap/internal/domain"
	"github.com/bft-labs/bankswap/pkg/state"
)

func TestReportRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	repo := NewReportFileRepository(dir)
	ctx := context.Background()

	empty, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if empty.Boots != 0 {
		t.Fatalf("expected empty report, got %+v", empty)
	}

	want := domain.Report{
		Boots:    3,
		BootedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Decision: state.Revert,
		Steps:    8,
		SP:       0x20008000,
		Entry:    0x080001C1,
		Booted:   true,
	}
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if repo.Path() != filepath.Join(dir, "status.json") {
		t.Fatalf("unexpected path %s", repo.Path())
	}
	if _, err := os.Stat(repo.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.BootedAt.Equal(want.BootedAt) {
		t.Fatalf("expected booted_at %s, got %s", want.BootedAt, got.BootedAt)
	}
	got.BootedAt = want.BootedAt
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	raw, _ := os.ReadFile(repo.Path())
	if !strings.Contains(string(raw), `"decision": "revert"`) {
		t.Fatalf("decision not stored by name: %s", raw)
	}
}

func TestReportLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "status.json"), []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewReportFileRepository(dir).Load(context.Background()); err == nil {
		t.Fatalf("expected error for corrupt report")
	}
}

func TestRecordCountsBoots(t *testing.T) {
	repo := NewReportFileRepository(t.TempDir())
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		got, err := repo.Record(ctx, domain.Report{Boots: 99, Decision: state.Boot})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if got.Boots != want {
			t.Fatalf("expected boot %d, got %d", want, got.Boots)
		}
	}
	last, err := repo.Load(ctx)
	if err != nil || last.Boots != 3 {
		t.Fatalf("expected stored boot 3, got %+v (%v)", last, err)
	}
}

func TestRecordRestartsAfterCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "status.json"), []byte("not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	repo := NewReportFileRepository(dir)
	ctx := context.Background()

	got, err := repo.Record(ctx, domain.Report{Decision: state.Swap})
	if !errors.Is(err, domain.ErrReportReset) {
		t.Fatalf("expected ErrReportReset, got %v", err)
	}
	if got.Boots != 1 {
		t.Fatalf("expected the count to restart at 1, got %d", got.Boots)
	}
	stored, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load after restart: %v", err)
	}
	if stored.Boots != 1 || stored.Decision != state.Swap {
		t.Fatalf("unexpected stored report %+v", stored)
	}
}
