package block

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/gftdcojp/buslog/internal/object"
)

// indexVersion tags the encoding produced by Index.Encode.
const indexVersion = 1

var ErrIndexCorrupt = errors.New("block: corrupt container index")

// Index lists the log containers of a file in file order. Each entry maps
// a span of the uncompressed stream to the container holding it, so a
// reader can start inflating at any container.
type Index struct {
	Entries []IndexEntry
}

// IndexEntry describes one container.
type IndexEntry struct {
	// FileOffset is the position of the container object in the file.
	FileOffset int64
	// UncompressedOffset is the stream position of the container's first byte.
	UncompressedOffset int64
	CompressedSize     int32
	UncompressedSize   int32
}

// FileEnd is the file position just past the container and its padding.
func (e IndexEntry) FileEnd() int64 {
	size := uint32(InternalHeaderSize) + uint32(e.CompressedSize)
	return e.FileOffset + int64(size) + int64(object.Padding(object.TypeLogContainer, size))
}

// UncompressedEnd is the stream position just past the container's data.
func (e IndexEntry) UncompressedEnd() int64 {
	return e.UncompressedOffset + int64(e.UncompressedSize)
}

// Covers reports whether the stream position off lies inside the container.
func (e IndexEntry) Covers(off int64) bool {
	return e.UncompressedOffset <= off && off < e.UncompressedEnd()
}

// Add inserts e in file order. It reports false when a container at the
// same file offset is already listed.
func (idx *Index) Add(e IndexEntry) bool {
	n := len(idx.Entries)
	if n == 0 || idx.Entries[n-1].FileOffset < e.FileOffset {
		idx.Entries = append(idx.Entries, e)
		return true
	}
	i := sort.Search(n, func(i int) bool { return idx.Entries[i].FileOffset >= e.FileOffset })
	if idx.Entries[i].FileOffset == e.FileOffset {
		return false
	}
	idx.Entries = append(idx.Entries, IndexEntry{})
	copy(idx.Entries[i+1:], idx.Entries[i:])
	idx.Entries[i] = e
	return true
}

func (idx *Index) Len() int {
	return len(idx.Entries)
}

// Lookup returns the last container that starts at or before the stream
// position off. The entry may end before off when later containers are
// not listed; use Covers to tell.
func (idx *Index) Lookup(off int64) (IndexEntry, bool) {
	i := sort.Search(len(idx.Entries), func(i int) bool {
		return idx.Entries[i].UncompressedOffset > off
	})
	if i == 0 {
		return IndexEntry{}, false
	}
	return idx.Entries[i-1], true
}

// Encode serializes the index as a version byte, a uvarint entry count and
// per entry the varint deltas of both offsets followed by both sizes.
func (idx *Index) Encode() []byte {
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(idx.Entries)*8)
	buf = append(buf, indexVersion)
	buf = binary.AppendUvarint(buf, uint64(len(idx.Entries)))

	var prev IndexEntry
	for _, e := range idx.Entries {
		buf = binary.AppendVarint(buf, e.FileOffset-prev.FileOffset)
		buf = binary.AppendVarint(buf, e.UncompressedOffset-prev.UncompressedOffset)
		buf = binary.AppendUvarint(buf, uint64(uint32(e.CompressedSize)))
		buf = binary.AppendUvarint(buf, uint64(uint32(e.UncompressedSize)))
		prev = e
	}
	return buf
}

// DecodeIndex parses the output of Index.Encode. An empty input is an empty index.
func DecodeIndex(data []byte) (*Index, error) {
	if len(data) == 0 {
		return &Index{}, nil
	}
	if data[0] != indexVersion {
		return nil, fmt.Errorf("%w: version %d", ErrIndexCorrupt, data[0])
	}
	data = data[1:]

	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad entry count", ErrIndexCorrupt)
	}
	data = data[n:]
	// Every entry takes at least four bytes.
	if count > uint64(len(data))/4 {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrIndexCorrupt, count, len(data))
	}

	idx := &Index{Entries: make([]IndexEntry, 0, count)}
	var prev IndexEntry
	for i := uint64(0); i < count; i++ {
		var fields [4]int64
		for f := range fields {
			var v int64
			if f < 2 {
				v, n = binary.Varint(data)
			} else {
				var u uint64
				u, n = binary.Uvarint(data)
				v = int64(u)
			}
			if n <= 0 {
				return nil, fmt.Errorf("%w: entry %d truncated", ErrIndexCorrupt, i)
			}
			fields[f] = v
			data = data[n:]
		}
		e := IndexEntry{
			FileOffset:         prev.FileOffset + fields[0],
			UncompressedOffset: prev.UncompressedOffset + fields[1],
			CompressedSize:     int32(fields[2]),
			UncompressedSize:   int32(fields[3]),
		}
		if i > 0 && (e.FileOffset <= prev.FileOffset || e.UncompressedOffset < prev.UncompressedOffset) {
			return nil, fmt.Errorf("%w: entry %d out of order", ErrIndexCorrupt, i)
		}
		idx.Entries = append(idx.Entries, e)
		prev = e
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrIndexCorrupt, len(data))
	}
	return idx, nil
}
