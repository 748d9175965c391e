package nor

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestFileFlashPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	g := Geometry{ReadSize: 1, WriteSize: 4, EraseSize: 64, Capacity: 256}

	ff, err := CreateFileFlash(path, g)
	if err != nil {
		t.Fatalf("CreateFileFlash: %v", err)
	}
	if err := ff.Write(64, []byte{0x0F, 0xF0, 0x55, 0xAA}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ff.Write(64, []byte{0xFF, 0xFF, 0xAA, 0xFF}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if err := ff.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ff, err = OpenFileFlash(path, g)
	if err != nil {
		t.Fatalf("OpenFileFlash: %v", err)
	}
	defer ff.Close()

	got := make([]byte, 4)
	if err := ff.Read(64, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := []byte{0x0F, 0xF0, 0x00, 0xAA}; !bytes.Equal(got, want) {
		t.Fatalf("expected % x, got % x", want, got)
	}
	if err := ff.Erase(64, 128); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if err := ff.Read(64, got); err != nil || !IsErased(got) {
		t.Fatalf("expected erased bytes, got % x (%v)", got, err)
	}
}

func TestOpenFileFlashRejectsWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	ff, err := CreateFileFlash(path, Geometry{ReadSize: 1, WriteSize: 4, EraseSize: 64, Capacity: 128})
	if err != nil {
		t.Fatalf("CreateFileFlash: %v", err)
	}
	ff.Close()

	if _, err := OpenFileFlash(path, Geometry{ReadSize: 1, WriteSize: 4, EraseSize: 64, Capacity: 256}); err == nil {
		t.Fatalf("expected size mismatch to be rejected")
	}
}
