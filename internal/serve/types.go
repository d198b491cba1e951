package serve

import (
	"time"

	"github.com/gftdcojp/buslog/internal/catalog"
	"github.com/gftdcojp/buslog/internal/object"
	"github.com/gftdcojp/buslog/internal/recorder"
)

// Status is the body of GET /v1/status.
type Status struct {
	Status        string           `json:"status"`
	Files         int              `json:"files"`
	ArchivedFiles int              `json:"archived_files"`
	Objects       uint64           `json:"objects"`
	LocalBytes    int64            `json:"local_bytes"`
	Archive       bool             `json:"archive"`
	Recorder      *recorder.Status `json:"recorder,omitempty"`
}

// FileInfo is the API view of a catalogued log file.
type FileInfo struct {
	Name             string            `json:"name"`
	Path             string            `json:"path"`
	Stream           string            `json:"stream,omitempty"`
	FileSize         int64             `json:"file_size"`
	UncompressedSize uint64            `json:"uncompressed_size"`
	ObjectCount      uint64            `json:"object_count"`
	ContainerCount   int64             `json:"container_count"`
	TypeCounts       map[string]uint64 `json:"type_counts,omitempty"`
	MeasurementStart time.Time         `json:"measurement_start"`
	FirstTimestamp   time.Time         `json:"first_timestamp"`
	LastTimestamp    time.Time         `json:"last_timestamp"`
	FirstSeq         uint64            `json:"first_seq,omitempty"`
	LastSeq          uint64            `json:"last_seq,omitempty"`
	ArchiveKey       string            `json:"archive_key,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	ArchivedAt       *time.Time        `json:"archived_at,omitempty"`
	LocalDeleted     bool              `json:"local_deleted"`
}

func fileInfo(e catalog.FileEntry) FileInfo {
	fi := FileInfo{
		Name:             e.Name,
		Path:             e.Path,
		Stream:           e.Stream,
		FileSize:         e.FileSize,
		UncompressedSize: e.UncompressedSize,
		ObjectCount:      e.ObjectCount,
		ContainerCount:   e.ContainerCount,
		TypeCounts:       e.TypeCounts,
		MeasurementStart: e.MeasurementStart,
		FirstTimestamp:   e.FirstTimestamp,
		LastTimestamp:    e.LastTimestamp,
		FirstSeq:         e.FirstSeq,
		LastSeq:          e.LastSeq,
		ArchiveKey:       e.ArchiveKey,
		CreatedAt:        e.CreatedAt,
		LocalDeleted:     e.LocalDeleted,
	}
	if !e.ArchivedAt.IsZero() {
		at := e.ArchivedAt
		fi.ArchivedAt = &at
	}
	return fi
}

// ObjectInfo is one decoded object. Position is its place in the
// uncompressed stream and can be passed back as ?offset= to resume there.
// OffsetNanos is absent for objects whose header carries no timestamp.
type ObjectInfo struct {
	Index       int    `json:"index"`
	Position    int64  `json:"position"`
	Type        string `json:"type"`
	TypeID      uint32 `json:"type_id"`
	ObjectSize  uint32 `json:"object_size"`
	OffsetNanos *int64 `json:"offset_ns,omitempty"`
	Payload     any    `json:"payload"`
}

func objectInfo(i int, pos int64, obj *object.Object) ObjectInfo {
	oi := ObjectInfo{
		Index:      i,
		Position:   pos,
		Type:       obj.Type.String(),
		TypeID:     uint32(obj.Type),
		ObjectSize: obj.ObjectSize,
		Payload:    obj.Payload,
	}
	if obj.Layout() != object.LayoutBase {
		off := int64(obj.Offset())
		oi.OffsetNanos = &off
	}
	return oi
}
