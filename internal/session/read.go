package session

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/gftdcojp/buslog/internal/block"
	"github.com/gftdcojp/buslog/internal/memory"
	"github.com/gftdcojp/buslog/internal/metrics"
	"github.com/gftdcojp/buslog/internal/object"
	"go.uber.org/zap"
)

// Read returns the next object of the file, skipping objects whose type
// is unknown. It returns io.EOF once the file is exhausted and every
// buffered byte has been consumed. Any other error is fatal.
func (s *Session) Read() (*object.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(modeRead); err != nil {
		return nil, err
	}
	for {
		pos := s.buf.ReadPos()
		obj, err := s.readObject()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, s.fail(err)
		}
		if obj != nil {
			s.lastPos = pos
			return obj, nil
		}
	}
}

// Position is the stream position of the object last returned by Read.
// Passing it to Seek reads that object again.
func (s *Session) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPos
}

// Tell is the stream position the next Read starts at.
func (s *Session) Tell() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.ReadPos()
}

// readObject decodes one object from the buffer. A nil object with a nil
// error means an unknown type was skipped.
func (s *Session) readObject() (*object.Object, error) {
	if err := s.fill(object.BaseSize); err != nil {
		return nil, err
	}
	hdr := make([]byte, object.BaseSize)
	n, err := s.buf.Peek(hdr)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, s.resolve(err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	if n < object.BaseSize {
		return nil, fmt.Errorf("%w: %d trailing bytes at offset %d", io.ErrUnexpectedEOF, n, s.buf.ReadPos())
	}

	base, err := object.PeekBase(hdr)
	if err != nil {
		return nil, err
	}
	if base.ObjectSize < object.BaseSize {
		return nil, fmt.Errorf("%w: %s object size %d at offset %d", object.ErrMalformed, base.Type, base.ObjectSize, s.buf.ReadPos())
	}
	size := int(base.ObjectSize)
	frameSize := size + object.Padding(base.Type, base.ObjectSize)
	if err := s.fill(int64(frameSize)); err != nil {
		return nil, err
	}
	if s.group == nil {
		if have := s.buf.Pending(); have < int64(size) {
			return nil, fmt.Errorf("%w: %s object needs %d bytes, have %d", io.ErrUnexpectedEOF, base.Type, size, have)
		}
	}

	frame, err := s.readFrame(frameSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, s.resolve(err)
	}
	// Padding after the last object may be missing.
	if len(frame) < size {
		return nil, fmt.Errorf("%w: %s object needs %d bytes, have %d", io.ErrUnexpectedEOF, base.Type, size, len(frame))
	}
	s.buf.EvictConsumed()

	obj, err := s.decoder.Decode(frame[:size])
	if err != nil {
		return nil, err
	}
	if obj == nil {
		s.skipped.Add(1)
		metrics.ObjectsSkipped.Inc()
		s.logger.Debug("skipping object of unknown type",
			zap.Stringer("type", base.Type),
			zap.Uint32("size", base.ObjectSize),
		)
		return nil, nil
	}
	s.objectCount.Add(1)
	metrics.ObjectsRead.WithLabelValues(obj.Type.String()).Inc()
	return obj, nil
}

// readFrame reads up to n bytes from the buffer. The frame grows by at most
// one container size per step, so its allocation follows the bytes that
// actually arrive rather than the size an object header declares.
func (s *Session) readFrame(n int) ([]byte, error) {
	step := int(s.cfg.ContainerSize)
	frame := make([]byte, 0, min(n, step))
	for len(frame) < n {
		k := min(n-len(frame), step)
		frame = slices.Grow(frame, k)
		got, err := s.buf.Read(frame[len(frame) : len(frame)+k])
		frame = frame[:len(frame)+got]
		if err != nil {
			return frame, err
		}
	}
	return frame, nil
}

// fill pulls containers until at least n unread bytes are buffered or the
// file is exhausted. In pipelined mode the inflater does this and the
// buffer blocks instead.
func (s *Session) fill(n int64) error {
	if s.group != nil {
		return nil
	}
	for s.buf.Pending() < n {
		ok, err := s.pullContainer()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

func (s *Session) inflateLoop() error {
	for {
		ok, err := s.pullContainer()
		if err != nil {
			if !errors.Is(err, memory.ErrAborted) {
				s.setBackgroundErr(err)
				metrics.StreamErrors.WithLabelValues("read").Inc()
			}
			s.buf.Abort()
			return err
		}
		if !ok {
			return nil
		}
	}
}

// pullContainer reads the next log container from the file and appends
// its inflated bytes to the buffer. It reports false once the file is
// exhausted, at which point the buffer's end of data is fixed.
func (s *Session) pullContainer() (bool, error) {
	if s.inputDone {
		return false, nil
	}
	pos := s.file.TellRead()
	if s.stats.FileSize > 0 && uint64(pos) >= s.stats.FileSize {
		s.finishInput()
		return false, nil
	}

	hdr := make([]byte, object.BaseSize)
	n, err := s.file.Read(hdr)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	if n == 0 {
		s.finishInput()
		return false, nil
	}
	if n < object.BaseSize {
		return false, fmt.Errorf("%w: %d trailing bytes at file offset %d", io.ErrUnexpectedEOF, n, pos)
	}

	base, err := object.PeekBase(hdr)
	if err != nil {
		return false, err
	}
	if base.Type != object.TypeLogContainer {
		return false, fmt.Errorf("%w: found %s at file offset %d", ErrNotLogContainer, base.Type, pos)
	}
	if base.ObjectSize < block.InternalHeaderSize {
		return false, fmt.Errorf("%w: container size %d at file offset %d", object.ErrMalformed, base.ObjectSize, pos)
	}

	if rest := s.inputEnd - pos; int64(base.ObjectSize) > rest {
		return false, fmt.Errorf("%w: container at file offset %d declares %d bytes, %d remain", io.ErrUnexpectedEOF, pos, base.ObjectSize, rest)
	}

	size := int(base.ObjectSize)
	frame := make([]byte, size+object.Padding(base.Type, base.ObjectSize))
	copy(frame, hdr)
	if _, err := readFull(s.file, frame[object.BaseSize:], size-object.BaseSize); err != nil {
		return false, fmt.Errorf("reading container at file offset %d: %w", pos, err)
	}

	obj, err := s.decoder.Decode(frame[:size])
	if err != nil {
		return false, err
	}
	c, ok := obj.Payload.(*block.LogContainer)
	if !ok {
		return false, fmt.Errorf("%w: payload %T at file offset %d", ErrNotLogContainer, obj.Payload, pos)
	}

	start := time.Now()
	data, err := c.Inflate()
	if err != nil {
		return false, fmt.Errorf("container at file offset %d: %w", pos, err)
	}
	metrics.InflateDuration.Observe(time.Since(start).Seconds())
	metrics.ContainersInflated.WithLabelValues(block.MethodName(c.Method)).Inc()
	metrics.CompressedBytes.WithLabelValues("read").Add(float64(c.CompressedSize()))
	metrics.UncompressedBytes.WithLabelValues("read").Add(float64(len(data)))

	off := s.buf.WritePos()
	if _, err := s.buf.Write(data); err != nil {
		return false, err
	}
	s.addIndex(block.IndexEntry{
		FileOffset:         pos,
		UncompressedOffset: off,
		CompressedSize:     int32(c.CompressedSize()),
		UncompressedSize:   int32(len(data)),
	})

	if s.stats.FileSize > 0 && uint64(s.file.TellRead()) >= s.stats.FileSize {
		s.finishInput()
	}
	return true, nil
}

// finishInput marks the file exhausted so buffered reads past the last
// inflated byte report end of file instead of waiting.
func (s *Session) finishInput() {
	s.inputDone = true
	s.buf.SetEnd(s.buf.WritePos())
}
