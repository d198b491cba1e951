package block

import (
	"errors"
	"testing"
)

func testIndex() *Index {
	idx := &Index{}
	idx.Add(IndexEntry{FileOffset: 144, UncompressedOffset: 0, CompressedSize: 40, UncompressedSize: 100})
	idx.Add(IndexEntry{FileOffset: 216, UncompressedOffset: 100, CompressedSize: 50, UncompressedSize: 100})
	idx.Add(IndexEntry{FileOffset: 300, UncompressedOffset: 200, CompressedSize: 20, UncompressedSize: 30})
	return idx
}

func TestIndexLookup(t *testing.T) {
	idx := testIndex()

	entry, found := idx.Lookup(150)
	if !found || entry.FileOffset != 216 || !entry.Covers(150) {
		t.Fatalf("offset 150: got %+v, %v", entry, found)
	}

	entry, found = idx.Lookup(0)
	if !found || entry.FileOffset != 144 {
		t.Errorf("offset 0: got %+v, %v", entry, found)
	}

	// Past the last container the last entry is the starting point.
	entry, found = idx.Lookup(230)
	if !found || entry.FileOffset != 300 || entry.Covers(230) {
		t.Fatalf("offset 230: got %+v, %v", entry, found)
	}

	if _, found := (&Index{}).Lookup(0); found {
		t.Fatal("empty index should not find anything")
	}
}

func TestIndexEntryEnds(t *testing.T) {
	// 32 header bytes + 50 data bytes = 82, padded by 2.
	e := IndexEntry{FileOffset: 216, UncompressedOffset: 100, CompressedSize: 50, UncompressedSize: 100}
	if got := e.FileEnd(); got != 216+82+2 {
		t.Errorf("FileEnd = %d", got)
	}
	if got := e.UncompressedEnd(); got != 200 {
		t.Errorf("UncompressedEnd = %d", got)
	}
}

func TestIndexAddKeepsFileOrder(t *testing.T) {
	idx := &Index{}
	idx.Add(IndexEntry{FileOffset: 300, UncompressedOffset: 200})
	idx.Add(IndexEntry{FileOffset: 144, UncompressedOffset: 0})
	if !idx.Add(IndexEntry{FileOffset: 216, UncompressedOffset: 100}) {
		t.Fatal("expected insert into the gap")
	}
	if idx.Add(IndexEntry{FileOffset: 216, UncompressedOffset: 100}) {
		t.Fatal("duplicate container was added")
	}
	if idx.Len() != 3 {
		t.Fatalf("len = %d", idx.Len())
	}
	for i, want := range []int64{144, 216, 300} {
		if idx.Entries[i].FileOffset != want {
			t.Fatalf("entry %d at %d, want %d", i, idx.Entries[i].FileOffset, want)
		}
	}
}

func TestIndexEncodeDecode(t *testing.T) {
	original := &Index{}
	original.Add(IndexEntry{FileOffset: 144, UncompressedOffset: 0, CompressedSize: 200, UncompressedSize: 4096})
	original.Add(IndexEntry{FileOffset: 376, UncompressedOffset: 4096, CompressedSize: 150, UncompressedSize: 4096})
	original.Add(IndexEntry{FileOffset: 560, UncompressedOffset: 8192, CompressedSize: 300, UncompressedSize: 1000})

	decoded, err := DecodeIndex(original.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", decoded.Len())
	}
	for i, e := range decoded.Entries {
		if e != original.Entries[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, e, original.Entries[i])
		}
	}

	empty, err := DecodeIndex(nil)
	if err != nil || empty.Len() != 0 {
		t.Fatalf("empty input: %v, %v", empty, err)
	}
}

func TestDecodeIndexCorrupt(t *testing.T) {
	enc := testIndex().Encode()
	for name, data := range map[string][]byte{
		"version":   {9, 0},
		"count":     {indexVersion, 0xFF},
		"too many":  {indexVersion, 0xFF, 0xFF, 0xFF, 0x0F, 1, 2, 3, 4},
		"truncated": enc[:len(enc)-1],
		"trailing":  append(append([]byte(nil), enc...), 0),
	} {
		if _, err := DecodeIndex(data); !errors.Is(err, ErrIndexCorrupt) {
			t.Errorf("%s: err = %v, want ErrIndexCorrupt", name, err)
		}
	}
}
