package session

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gftdcojp/buslog/internal/block"
	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/file"
	"github.com/gftdcojp/buslog/internal/object"
	"go.uber.org/zap"
)

// Summary describes the content of a whole log file.
type Summary struct {
	Path             string
	Statistics       file.Statistics
	Objects          uint64
	Skipped          uint64
	Containers       int64
	UncompressedSize uint64
	TypeCounts       map[string]uint64
	FirstOffset      time.Duration
	LastOffset       time.Duration
	// Index lists every container of the file, for later seeks.
	Index block.Index
}

// FirstTimestamp is the wall clock time of the earliest timestamped object.
func (s Summary) FirstTimestamp() time.Time {
	start := s.Statistics.MeasurementStartTime.Time()
	if start.IsZero() {
		return start
	}
	return start.Add(s.FirstOffset)
}

// LastTimestamp is the wall clock time of the latest timestamped object.
func (s Summary) LastTimestamp() time.Time {
	start := s.Statistics.MeasurementStartTime.Time()
	if start.IsZero() {
		return start
	}
	return start.Add(s.LastOffset)
}

// Scan reads every object of path and summarizes it. Restore points are
// not counted.
func Scan(path string, cfg config.SessionConfig, logger *zap.Logger) (Summary, error) {
	s, err := Open(path, cfg, logger)
	if err != nil {
		return Summary{}, err
	}
	defer s.Close()

	sum := Summary{
		Path:       path,
		Statistics: s.Statistics(),
		TypeCounts: make(map[string]uint64),
	}
	first := true
	for {
		obj, err := s.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("scanning %s: %w", path, err)
		}
		// The end marker describes the file, not the recording.
		if obj.Type == object.TypeRestorePointContainer {
			continue
		}
		sum.Objects++
		sum.TypeCounts[obj.Type.String()]++

		off := obj.Offset()
		if first || off < sum.FirstOffset {
			sum.FirstOffset = off
		}
		if off > sum.LastOffset {
			sum.LastOffset = off
		}
		first = false
	}
	sum.Skipped = s.SkippedCount()
	sum.Containers = s.ContainerCount()
	sum.UncompressedSize = s.UncompressedSize()
	sum.Index = s.Index()
	return sum, nil
}
