package session

import (
	"errors"
	"io"
	"time"

	"github.com/gftdcojp/buslog/internal/block"
	"github.com/gftdcojp/buslog/internal/event"
	"github.com/gftdcojp/buslog/internal/metrics"
	"github.com/gftdcojp/buslog/internal/object"
)

// Write appends obj to the file. Full containers are compressed and
// written as soon as enough bytes are buffered.
func (s *Session) Write(obj *object.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(modeWrite); err != nil {
		return err
	}

	raw := obj.Encode()
	if _, err := s.buf.Write(raw); err != nil {
		return s.fail(s.resolve(err))
	}
	s.objectCount.Add(1)
	metrics.ObjectsWritten.WithLabelValues(obj.Type.String()).Inc()
	if obj.Layout() != object.LayoutBase {
		s.lastOffset = max(s.lastOffset, obj.Offset())
	}

	if s.group != nil {
		return nil
	}
	size := int64(s.cfg.ContainerSize)
	for s.buf.Pending() >= size {
		if err := s.deflateNext(int(size)); err != nil {
			return s.fail(err)
		}
	}
	return nil
}

// deflateNext moves n buffered bytes into one container on disk.
func (s *Session) deflateNext(n int) error {
	off := s.buf.ReadPos()
	data := make([]byte, n)
	if _, err := s.buf.Read(data); err != nil {
		return err
	}
	if err := s.writeContainer(data, off); err != nil {
		return err
	}
	s.buf.EvictConsumed()
	return nil
}

// writeContainer compresses data and appends it to the file as one log container.
func (s *Session) writeContainer(data []byte, off int64) error {
	start := time.Now()
	c, err := block.Deflate(data, s.method, s.cfg.CompressionLevel)
	if err != nil {
		return err
	}
	metrics.DeflateDuration.Observe(time.Since(start).Seconds())

	pos := s.file.TellWrite()
	if _, err := s.file.Write(c.Object().Encode()); err != nil {
		return err
	}

	metrics.ContainersDeflated.WithLabelValues(block.MethodName(c.Method)).Inc()
	metrics.CompressedBytes.WithLabelValues("write").Add(float64(c.CompressedSize()))
	metrics.UncompressedBytes.WithLabelValues("write").Add(float64(len(data)))
	s.addIndex(block.IndexEntry{
		FileOffset:         pos,
		UncompressedOffset: off,
		CompressedSize:     int32(c.CompressedSize()),
		UncompressedSize:   int32(len(data)),
	})
	return nil
}

// deflateLoop is the pipelined writer stage. It drains full containers
// from the buffer and exits once Close has fixed the end of data.
func (s *Session) deflateLoop() error {
	size := int(s.cfg.ContainerSize)
	for {
		off := s.buf.ReadPos()
		data := make([]byte, size)
		n, err := s.buf.Read(data)
		if n > 0 {
			if werr := s.writeContainer(data[:n], off); werr != nil {
				s.setBackgroundErr(werr)
				s.buf.Abort()
				return werr
			}
			s.buf.EvictConsumed()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// flush writes whatever is still buffered as a final, possibly short, container.
func (s *Session) flush() error {
	if s.group != nil {
		s.buf.SetEnd(s.buf.WritePos())
		return s.group.Wait()
	}
	if n := s.buf.Pending(); n > 0 {
		return s.deflateNext(int(n))
	}
	return nil
}

// writeRestorePoint appends the end marker in its own container. It is
// not counted as an object.
func (s *Session) writeRestorePoint() error {
	rp := object.New(object.TypeRestorePointContainer, &event.RestorePointContainer{})
	raw := rp.Encode()
	off := s.buf.WritePos()
	if _, err := s.buf.Write(raw); err != nil {
		return err
	}
	if _, err := s.buf.SeekRead(0, io.SeekEnd); err != nil {
		return err
	}
	return s.writeContainer(raw, off)
}
