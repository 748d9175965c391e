package nor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileFlash is a flash image kept in a regular file. It has the same
// semantics as MemFlash and survives process restarts, which makes it the
// backing store of the host-side device simulator.
type FileFlash struct {
	dims
	mu   sync.Mutex
	file *os.File
	path string
}

// CreateFileFlash creates (or truncates) path and fills it with an erased
// image of geometry g.
func CreateFileFlash(path string, g Geometry) (*FileFlash, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create flash image: %w", err)
	}
	blank := make([]byte, g.EraseSize)
	Fill(blank, ErasedValue)
	for off := 0; off < g.Capacity; off += g.EraseSize {
		if _, err := f.WriteAt(blank, int64(off)); err != nil {
			f.Close()
			return nil, fmt.Errorf("initialize flash image: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync flash image: %w", err)
	}
	return &FileFlash{dims: dims{g}, file: f, path: path}, nil
}

// OpenFileFlash opens an existing image. The file size must equal
// g.Capacity.
func OpenFileFlash(path string, g Geometry) (*FileFlash, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open flash image: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat flash image: %w", err)
	}
	if st.Size() != int64(g.Capacity) {
		f.Close()
		return nil, fmt.Errorf("flash image %q is %d bytes, want %d", path, st.Size(), g.Capacity)
	}
	return &FileFlash{dims: dims{g}, file: f, path: path}, nil
}

// Path returns the image file path.
func (ff *FileFlash) Path() string { return ff.path }

// Read implements Flash.
func (ff *FileFlash) Read(offset uint32, buf []byte) error {
	if err := CheckRead(ff, offset, len(buf)); err != nil {
		return err
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.file == nil {
		return errClosed
	}
	return ff.readAt(offset, buf)
}

// Write implements Flash.
func (ff *FileFlash) Write(offset uint32, data []byte) error {
	if err := CheckWrite(ff, offset, len(data)); err != nil {
		return err
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.file == nil {
		return errClosed
	}
	cur := make([]byte, len(data))
	if err := ff.readAt(offset, cur); err != nil {
		return err
	}
	for i, b := range data {
		cur[i] &= b
	}
	if _, err := ff.file.WriteAt(cur, int64(offset)); err != nil {
		return &Error{Op: "write", Offset: offset, Length: len(data), Kind: KindOther, Err: err}
	}
	return nil
}

// Erase implements Flash.
func (ff *FileFlash) Erase(from, to uint32) error {
	if err := CheckErase(ff, from, to); err != nil {
		return err
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.file == nil {
		return errClosed
	}
	blank := make([]byte, int(to-from))
	Fill(blank, ErasedValue)
	if _, err := ff.file.WriteAt(blank, int64(from)); err != nil {
		return &Error{Op: "erase", Offset: from, Length: len(blank), Kind: KindOther, Err: err}
	}
	return nil
}

// Close flushes and closes the image file.
func (ff *FileFlash) Close() error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.file == nil {
		return errClosed
	}
	err := ff.file.Sync()
	if cerr := ff.file.Close(); err == nil {
		err = cerr
	}
	ff.file = nil
	return err
}

func (ff *FileFlash) readAt(offset uint32, buf []byte) error {
	n, err := ff.file.ReadAt(buf, int64(offset))
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return &Error{Op: "read", Offset: offset, Length: len(buf), Kind: KindOther, Err: err}
	}
	return nil
}

var errClosed = errors.New("flash image closed")
