// Package file wraps the on-disk log file: positional I/O with separate
// read and write cursors, and the statistics header at its start.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrShortWrite  = errors.New("file: short write")
	ErrInvalidSeek = errors.New("file: invalid seek")
)

// File serializes all I/O on one descriptor behind a single lock.
// Reads and writes keep independent cursors.
type File struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	readPos  int64
	writePos int64
}

// Open opens path read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &File{f: f, path: path}, nil
}

// Create truncates or creates path for writing, creating parent directories.
func Create(path string) (*File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &File{f: f, path: path}, nil
}

func (f *File) Path() string { return f.path }

// Read fills p from the read cursor. Fewer bytes are returned only at end
// of file, together with io.EOF.
func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.f.ReadAt(p, f.readPos)
	f.readPos += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("reading %s at %d: %w", f.path, f.readPos, err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write writes all of p at the write cursor.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.f.WriteAt(p, f.writePos)
	f.writePos += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing %s at %d: %w", f.path, f.writePos, err)
	}
	if n < len(p) {
		return n, fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(p))
	}
	return n, nil
}

// WriteAt writes p at off without moving either cursor.
func (f *File) WriteAt(p []byte, off int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.f.WriteAt(p, off)
	if err != nil {
		return fmt.Errorf("writing %s at %d: %w", f.path, off, err)
	}
	if n < len(p) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(p))
	}
	return nil
}

func (f *File) seek(cur, off int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = off
	case io.SeekCurrent:
		pos = cur + off
	case io.SeekEnd:
		info, err := f.f.Stat()
		if err != nil {
			return cur, fmt.Errorf("stat %s: %w", f.path, err)
		}
		pos = info.Size() + off
	default:
		return cur, fmt.Errorf("%w: whence %d", ErrInvalidSeek, whence)
	}
	if pos < 0 {
		return cur, fmt.Errorf("%w: negative position %d", ErrInvalidSeek, pos)
	}
	return pos, nil
}

func (f *File) SeekRead(off int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos, err := f.seek(f.readPos, off, whence)
	if err != nil {
		return pos, err
	}
	f.readPos = pos
	return pos, nil
}

func (f *File) SeekWrite(off int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos, err := f.seek(f.writePos, off, whence)
	if err != nil {
		return pos, err
	}
	f.writePos = pos
	return pos, nil
}

func (f *File) TellRead() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readPos
}

func (f *File) TellWrite() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writePos
}

// Size is the current length of the file on disk.
func (f *File) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", f.path, err)
	}
	return info.Size(), nil
}

// Sync flushes written data to stable storage.
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Sync()
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Close()
}
