package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/gftdcojp/buslog/internal/block"
	"github.com/gftdcojp/buslog/internal/file"
	"github.com/gftdcojp/buslog/internal/memory"
	"github.com/gftdcojp/buslog/internal/object"
	"go.uber.org/zap"
)

var ErrInvalidSeek = errors.New("session: invalid seek position")

// LoadIndex supplies container positions recorded earlier, typically the
// index a writer or Scan produced for the same file. Seek uses them to
// start inflating close to the target instead of at the first container.
func (s *Session) LoadIndex(idx block.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known = idx
}

// Seek positions the session so the next Read decodes the object that
// starts at the stream position pos, as reported by Position or Tell.
// Only the container holding pos and those after it are inflated. A pos
// past the last object makes Read report io.EOF.
func (s *Session) Seek(pos int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(modeRead); err != nil {
		return err
	}
	if pos < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSeek, pos)
	}

	s.stopInflater()
	s.errMu.Lock()
	bgErr := s.bgErr
	s.errMu.Unlock()
	if bgErr != nil {
		return s.fail(bgErr)
	}

	start, err := s.locate(pos)
	if err != nil {
		return s.fail(err)
	}

	buf := s.newBuffer()
	if _, err := buf.SeekWrite(start.UncompressedOffset, io.SeekStart); err != nil {
		return s.fail(err)
	}
	if _, err := buf.SeekRead(pos, io.SeekStart); err != nil {
		return s.fail(err)
	}
	buf.SetEnd(memory.Unbounded)
	if _, err := s.file.SeekRead(start.FileOffset, io.SeekStart); err != nil {
		return s.fail(err)
	}
	s.buf = buf
	s.inputDone = false
	s.startInflater()

	s.logger.Debug("seeked",
		zap.Int64("position", pos),
		zap.Int64("container_file_offset", start.FileOffset),
		zap.Int64("container_offset", start.UncompressedOffset),
	)
	return nil
}

// locate returns the container holding pos. Containers beyond the known
// ones are stepped over by reading their headers only. Past the last
// container the returned entry is empty and sits at the end of input.
func (s *Session) locate(pos int64) (block.IndexEntry, error) {
	s.indexMu.Lock()
	e, ok := s.index.Lookup(pos)
	s.indexMu.Unlock()
	if k, kok := s.known.Lookup(pos); kok && (!ok || k.UncompressedOffset > e.UncompressedOffset) {
		e, ok = k, true
	}
	if ok && e.Covers(pos) {
		return e, nil
	}

	next := block.IndexEntry{FileOffset: file.StatisticsSize}
	if ok {
		next = block.IndexEntry{FileOffset: e.FileEnd(), UncompressedOffset: e.UncompressedEnd()}
	}
	for {
		c, found, err := s.peekContainer(next.FileOffset)
		if err != nil {
			return block.IndexEntry{}, err
		}
		if !found {
			return next, nil
		}
		c.UncompressedOffset = next.UncompressedOffset
		if c.Covers(pos) {
			return c, nil
		}
		next = block.IndexEntry{FileOffset: c.FileEnd(), UncompressedOffset: c.UncompressedEnd()}
	}
}

// peekContainer reads the headers of the container at file offset off.
// It reports false at the end of input.
func (s *Session) peekContainer(off int64) (block.IndexEntry, bool, error) {
	if off >= s.inputEnd {
		return block.IndexEntry{}, false, nil
	}
	if _, err := s.file.SeekRead(off, io.SeekStart); err != nil {
		return block.IndexEntry{}, false, err
	}
	hdr := make([]byte, block.InternalHeaderSize)
	if _, err := readFull(s.file, hdr, len(hdr)); err != nil {
		return block.IndexEntry{}, false, fmt.Errorf("reading container header at file offset %d: %w", off, err)
	}
	base, err := object.PeekBase(hdr)
	if err != nil {
		return block.IndexEntry{}, false, err
	}
	if base.Type != object.TypeLogContainer {
		return block.IndexEntry{}, false, fmt.Errorf("%w: found %s at file offset %d", ErrNotLogContainer, base.Type, off)
	}
	if base.ObjectSize < block.InternalHeaderSize || int64(base.ObjectSize) > s.inputEnd-off {
		return block.IndexEntry{}, false, fmt.Errorf("%w: container size %d at file offset %d", object.ErrMalformed, base.ObjectSize, off)
	}

	var c block.LogContainer
	r := object.NewReader(hdr[object.BaseSize:])
	if err := c.Decode(r); err != nil {
		return block.IndexEntry{}, false, err
	}
	return block.IndexEntry{
		FileOffset:       off,
		CompressedSize:   int32(base.ObjectSize) - block.InternalHeaderSize,
		UncompressedSize: int32(c.UncompressedSize),
	}, true, nil
}
