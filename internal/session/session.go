// Package session ties the object codec, the container codec, the sliding
// buffer and the on-disk file together into open/read/write/close
// semantics for a single log file.
package session

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gftdcojp/buslog/internal/block"
	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/event"
	"github.com/gftdcojp/buslog/internal/file"
	"github.com/gftdcojp/buslog/internal/memory"
	"github.com/gftdcojp/buslog/internal/metrics"
	"github.com/gftdcojp/buslog/internal/object"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrClosed          = errors.New("session: closed")
	ErrWrongMode       = errors.New("session: operation not allowed in this mode")
	ErrNotLogContainer = errors.New("session: top-level object is not a log container")
	ErrFailed          = errors.New("session: unusable after earlier error")
)

type mode int

const (
	modeClosed mode = iota
	modeRead
	modeWrite
)

func (m mode) String() string {
	switch m {
	case modeRead:
		return "read"
	case modeWrite:
		return "write"
	}
	return "closed"
}

// Session is one open log file. Read and Write are serialized by the
// session; in pipelined mode a background goroutine inflates ahead of
// Read or deflates behind Write.
type Session struct {
	mu     sync.Mutex
	mode   mode
	cfg    config.SessionConfig
	logger *zap.Logger

	file    *file.File
	buf     *memory.Buffer
	decoder *object.Decoder
	stats   file.Statistics

	objectCount      atomic.Uint32
	skipped          atomic.Uint64
	containerCount   atomic.Int64
	uncompressedSize atomic.Uint64

	indexMu sync.Mutex
	index   block.Index

	// read side
	inputDone bool
	inputEnd  int64
	known     block.Index // container positions supplied by LoadIndex
	lastPos   int64

	// write side
	method       uint16
	measureStart time.Time
	lastOffset   time.Duration

	group *errgroup.Group
	errMu sync.Mutex
	bgErr error
	err   error
}

func newSession(cfg config.SessionConfig, logger *zap.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		cfg:     cfg,
		logger:  logger.Named("session"),
		decoder: event.NewDecoder(logger),
		method:  block.MethodForLevel(cfg.CompressionLevel),
	}
	s.buf = s.newBuffer()
	s.uncompressedSize.Store(file.StatisticsSize)
	return s, nil
}

func (s *Session) newBuffer() *memory.Buffer {
	var capacity int64
	if s.cfg.Pipelined {
		capacity = int64(s.cfg.BufferCapacity)
	}
	return memory.NewBuffer(int64(s.cfg.ContainerSize), capacity, s.logger)
}

// Open opens path for reading and loads its statistics header.
func Open(path string, cfg config.SessionConfig, logger *zap.Logger) (*Session, error) {
	s, err := newSession(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.logger = s.logger.With(zap.String("path", path), zap.String("mode", "read"))

	f, err := file.Open(path)
	if err != nil {
		return nil, err
	}
	stats, err := file.ReadStatistics(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading statistics of %s: %w", path, err)
	}
	size, err := f.Size()
	if err != nil {
		f.Close()
		return nil, err
	}
	s.file = f
	s.stats = stats
	s.mode = modeRead
	s.inputEnd = size
	if stats.FileSize > 0 && int64(stats.FileSize) < size {
		s.inputEnd = int64(stats.FileSize)
	}
	s.buf.SetEnd(memory.Unbounded)
	s.startInflater()

	s.logger.Debug("opened log file",
		zap.Uint64("file_size", stats.FileSize),
		zap.Uint64("uncompressed_size", stats.UncompressedFileSize),
		zap.Uint32("object_count", stats.ObjectCount),
	)
	return s, nil
}

// Create truncates path and reserves space for the statistics header,
// which is rewritten with final totals on Close.
func Create(path string, cfg config.SessionConfig, logger *zap.Logger) (*Session, error) {
	s, err := newSession(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.logger = s.logger.With(zap.String("path", path), zap.String("mode", "write"))

	f, err := file.Create(path)
	if err != nil {
		return nil, err
	}
	s.stats = file.NewStatistics()
	s.stats.ApplicationID = cfg.Application.ID
	s.stats.ApplicationMajor = cfg.Application.Major
	s.stats.ApplicationMinor = cfg.Application.Minor
	s.stats.ApplicationBuild = cfg.Application.Build
	if _, err := f.Write(s.stats.Encode()); err != nil {
		f.Close()
		return nil, err
	}
	s.file = f
	s.mode = modeWrite
	s.measureStart = time.Now()

	if cfg.Pipelined {
		// The deflater waits for full containers until Close fixes the end.
		s.buf.SetEnd(memory.Unbounded)
		s.group = new(errgroup.Group)
		s.group.Go(s.deflateLoop)
	}
	return s, nil
}

// SetMeasurementStart sets the wall clock time that object timestamps are
// relative to. It is recorded in the statistics header on Close.
func (s *Session) SetMeasurementStart(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measureStart = t
}

// Statistics returns the header as read on Open, or as it will be written
// on Close once the session is finished.
func (s *Session) Statistics() file.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ObjectCount is the number of objects read or written so far.
func (s *Session) ObjectCount() uint32 { return s.objectCount.Load() }

// SkippedCount is the number of objects with unknown type tags skipped by Read.
func (s *Session) SkippedCount() uint64 { return s.skipped.Load() }

// ContainerCount is the number of log containers inflated or deflated so far.
func (s *Session) ContainerCount() int64 { return s.containerCount.Load() }

// UncompressedSize is the running uncompressed file size: the statistics
// header plus, per container, its internal header and uncompressed data.
func (s *Session) UncompressedSize() uint64 { return s.uncompressedSize.Load() }

// Index returns the containers inflated or deflated so far, in file order.
func (s *Session) Index() block.Index {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return block.Index{Entries: append([]block.IndexEntry(nil), s.index.Entries...)}
}

// usable reports why an operation in mode m cannot proceed. Must hold s.mu.
func (s *Session) usable(m mode) error {
	if s.mode == modeClosed {
		return ErrClosed
	}
	if s.err != nil {
		return fmt.Errorf("%w: %w", ErrFailed, s.err)
	}
	if s.mode != m {
		return fmt.Errorf("%w: session opened for %s", ErrWrongMode, s.mode)
	}
	return nil
}

// fail records a fatal error and releases any blocked stage. Must hold s.mu.
func (s *Session) fail(err error) error {
	if s.err == nil {
		s.err = err
		metrics.StreamErrors.WithLabelValues(s.mode.String()).Inc()
		s.logger.Error("session failed", zap.Error(err))
		s.buf.Abort()
	}
	return err
}

func (s *Session) setBackgroundErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.bgErr == nil {
		s.bgErr = err
	}
}

// resolve maps an aborted buffer to the error that caused the abort.
func (s *Session) resolve(err error) error {
	if !errors.Is(err, memory.ErrAborted) {
		return err
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.bgErr != nil {
		return s.bgErr
	}
	return err
}

// addIndex records a processed container. Containers inflated again after
// a Seek are counted once.
func (s *Session) addIndex(e block.IndexEntry) {
	s.indexMu.Lock()
	added := s.index.Add(e)
	s.indexMu.Unlock()
	if !added {
		return
	}
	s.containerCount.Add(1)
	s.uncompressedSize.Add(uint64(block.InternalHeaderSize) + uint64(e.UncompressedSize))
}

// Close finishes the session. A writer flushes the remaining bytes as a
// last container, optionally appends a restore point container, and
// rewrites the statistics header with the final totals.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case modeClosed:
		return ErrClosed
	case modeRead:
		s.mode = modeClosed
		return s.closeRead()
	}
	err := s.closeWrite()
	s.mode = modeClosed
	return err
}

func (s *Session) closeRead() error {
	s.stopInflater()
	return s.file.Close()
}

// startInflater runs the pipelined read stage against the current buffer.
func (s *Session) startInflater() {
	if !s.cfg.Pipelined {
		return
	}
	s.group = new(errgroup.Group)
	s.group.Go(s.inflateLoop)
}

// stopInflater aborts the buffer and waits for the read stage to exit.
func (s *Session) stopInflater() {
	if s.group == nil {
		return
	}
	s.buf.Abort()
	if err := s.group.Wait(); err != nil && !errors.Is(err, memory.ErrAborted) {
		s.logger.Debug("inflater stopped", zap.Error(err))
	}
	s.group = nil
}

func (s *Session) closeWrite() error {
	if s.err != nil {
		if s.group != nil {
			s.group.Wait()
		}
		s.file.Close()
		return fmt.Errorf("%w: %w", ErrFailed, s.err)
	}

	if err := s.flush(); err != nil {
		s.fail(err)
		s.file.Close()
		return err
	}

	if s.cfg.WriteRestorePoints {
		s.stats.FileSizeWithoutRestorePoints = uint64(s.file.TellWrite())
		if err := s.writeRestorePoint(); err != nil {
			s.fail(err)
			s.file.Close()
			return err
		}
	}

	s.stats.FileSize = uint64(s.file.TellWrite())
	s.stats.UncompressedFileSize = s.uncompressedSize.Load()
	s.stats.ObjectCount = s.objectCount.Load()
	if s.objectCount.Load() > 0 {
		s.stats.MeasurementStartTime = file.SystemTimeOf(s.measureStart)
		s.stats.LastObjectTime = file.SystemTimeOf(s.measureStart.Add(s.lastOffset))
	}
	if err := file.WriteStatistics(s.file, &s.stats); err != nil {
		s.file.Close()
		return err
	}

	s.logger.Debug("closed log file",
		zap.Uint64("file_size", s.stats.FileSize),
		zap.Uint64("uncompressed_size", s.stats.UncompressedFileSize),
		zap.Uint32("object_count", s.stats.ObjectCount),
		zap.Int64("containers", s.containerCount.Load()),
	)
	return s.file.Close()
}

// readFull reads len(p) bytes from the file, returning io.ErrUnexpectedEOF
// when fewer than need are available.
func readFull(f *file.File, p []byte, need int) (int, error) {
	n, err := f.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	if n < need {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}
