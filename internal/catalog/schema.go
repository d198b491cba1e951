package catalog

import (
	"encoding/binary"
	"time"
)

// Bucket names in BoltDB.
var (
	bucketSystem     = []byte("system")
	bucketFiles      = []byte("files")
	bucketConsumers  = []byte("consumer_state")
	keySchemaVersion = []byte("schema_version")

	// Schema v2: measurement start index
	bucketTimeIndex = []byte("time_index")
)

const currentSchemaVersion = 2

// FileEntry is the catalog record for one log file.
type FileEntry struct {
	Name   string
	Path   string
	Stream string

	FileSize         int64
	UncompressedSize uint64
	ObjectCount      uint64
	ContainerCount   int64
	TypeCounts       map[string]uint64

	// ContainerIndex is the encoded container index, empty for entries
	// recorded before it was kept.
	ContainerIndex []byte

	MeasurementStart time.Time
	FirstTimestamp   time.Time
	LastTimestamp    time.Time

	// Stream sequence range recorded into the file, zero for imported files.
	FirstSeq uint64
	LastSeq  uint64

	ArchiveKey   string
	CreatedAt    time.Time
	ArchivedAt   time.Time
	LocalDeleted bool
}

// Archived reports whether a copy of the file exists in the archive.
func (e *FileEntry) Archived() bool {
	return e.ArchiveKey != ""
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// timeKey orders index entries by time, then name. Unset times sort first.
func timeKey(t time.Time, name string) []byte {
	b := make([]byte, 8, 8+len(name))
	if !t.IsZero() {
		binary.BigEndian.PutUint64(b, uint64(t.UnixNano()))
	}
	return append(b, name...)
}
