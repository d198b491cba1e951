// Package memory provides the uncompressed view of a log file: a sliding
// window of fixed-size chunks addressed by absolute offset, shared between
// the object codec and the container codec.
package memory

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/gftdcojp/buslog/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrAborted     = errors.New("memory: buffer aborted")
	ErrInvalidSeek = errors.New("memory: invalid seek")
)

// Unbounded marks an end of data that is not known yet.
const Unbounded = math.MaxInt64

type chunk struct {
	start int64
	data  []byte
}

func (c *chunk) end() int64 { return c.start + int64(len(c.data)) }

// Buffer is a blocking byte store with independent read and write cursors.
// Readers wait for writers to supply bytes; writers wait while more than
// capacity bytes are unconsumed. Chunks behind every cursor can be evicted.
type Buffer struct {
	mu         sync.Mutex
	writeMoved *sync.Cond // write position or end of data changed
	readMoved  *sync.Cond // read position changed

	chunkSize int64
	capacity  int64
	chunks    []*chunk // sorted by start

	readPos  int64
	writePos int64
	end      int64
	demand   int64 // offset a blocked reader waits for, 0 when none
	aborted  bool

	logger *zap.Logger
}

// NewBuffer creates a buffer allocating chunkSize bytes at a time.
// A capacity of 0 disables backpressure.
func NewBuffer(chunkSize, capacity int64, logger *zap.Logger) *Buffer {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	b := &Buffer{
		chunkSize: chunkSize,
		capacity:  capacity,
		logger:    logger,
	}
	b.writeMoved = sync.NewCond(&b.mu)
	b.readMoved = sync.NewCond(&b.mu)
	return b
}

// Read copies len(p) bytes from the read cursor and advances it. It blocks
// until the bytes are written, or the request runs past the end of data, in
// which case the available bytes are returned together with io.EOF.
func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err := b.readLocked(p)
	if n > 0 {
		b.readPos += int64(n)
		b.readMoved.Broadcast()
	}
	return n, err
}

// Peek is Read without moving the read cursor.
func (b *Buffer) Peek(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.readLocked(p)
}

func (b *Buffer) readLocked(p []byte) (int, error) {
	want := int64(len(p))
	if !b.readable(want) {
		metrics.BufferWaits.WithLabelValues("read").Inc()
		b.demand = b.readPos + want
		b.readMoved.Broadcast()
		for !b.readable(want) {
			b.writeMoved.Wait()
		}
		b.demand = 0
	}
	if b.aborted {
		return 0, ErrAborted
	}

	if b.readPos+want <= b.writePos {
		b.copyOut(p, b.readPos)
		return len(p), nil
	}
	avail := min(b.end, b.writePos) - b.readPos
	if avail < 0 {
		avail = 0
	}
	b.copyOut(p[:avail], b.readPos)
	return int(avail), io.EOF
}

func (b *Buffer) readable(n int64) bool {
	return b.aborted || b.readPos+n <= b.writePos || b.readPos+n > b.end
}

// Write copies p at the write cursor, allocating chunks as needed, and
// extends the end of data when the cursor passes it.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.writable() {
		metrics.BufferWaits.WithLabelValues("write").Inc()
		for !b.writable() {
			b.readMoved.Wait()
		}
	}
	if b.aborted {
		return 0, ErrAborted
	}

	off := b.writePos
	rest := p
	for len(rest) > 0 {
		c := b.chunkFor(off, true)
		n := copy(c.data[off-c.start:], rest)
		rest = rest[n:]
		off += int64(n)
	}
	b.writePos = off
	if b.writePos > b.end {
		b.end = b.writePos
	}
	b.writeMoved.Broadcast()
	return len(p), nil
}

// writable reports whether a writer may proceed. A reader that needs bytes
// past the write cursor always lets the writer through.
func (b *Buffer) writable() bool {
	if b.aborted || b.capacity <= 0 {
		return true
	}
	if b.demand > b.writePos {
		return true
	}
	return b.writePos-b.readPos < b.capacity
}

func (b *Buffer) copyOut(p []byte, off int64) {
	for len(p) > 0 {
		c := b.chunkFor(off, false)
		var n int
		if c == nil {
			// Holes and evicted ranges read as zeros.
			next := (off/b.chunkSize + 1) * b.chunkSize
			n = int(min(next-off, int64(len(p))))
			clear(p[:n])
		} else {
			n = copy(p, c.data[off-c.start:])
		}
		p = p[n:]
		off += int64(n)
	}
}

// chunkFor returns the chunk covering off, creating it when create is set.
func (b *Buffer) chunkFor(off int64, create bool) *chunk {
	i := sort.Search(len(b.chunks), func(i int) bool { return b.chunks[i].end() > off })
	if i < len(b.chunks) && b.chunks[i].start <= off {
		return b.chunks[i]
	}
	if !create {
		return nil
	}
	c := &chunk{
		start: off / b.chunkSize * b.chunkSize,
		data:  make([]byte, b.chunkSize),
	}
	b.chunks = append(b.chunks, nil)
	copy(b.chunks[i+1:], b.chunks[i:])
	b.chunks[i] = c
	return c
}

func (b *Buffer) seek(cur, off int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = off
	case io.SeekCurrent:
		pos = cur + off
	case io.SeekEnd:
		pos = b.end + off
	default:
		return cur, fmt.Errorf("%w: whence %d", ErrInvalidSeek, whence)
	}
	if pos < 0 {
		return cur, fmt.Errorf("%w: negative position %d", ErrInvalidSeek, pos)
	}
	return pos, nil
}

// SeekRead moves the read cursor and wakes all waiters.
func (b *Buffer) SeekRead(off int64, whence int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, err := b.seek(b.readPos, off, whence)
	if err != nil {
		return pos, err
	}
	b.readPos = pos
	b.wakeAll()
	return pos, nil
}

// SeekWrite moves the write cursor and wakes all waiters.
func (b *Buffer) SeekWrite(off int64, whence int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, err := b.seek(b.writePos, off, whence)
	if err != nil {
		return pos, err
	}
	b.writePos = pos
	if b.writePos > b.end {
		b.end = b.writePos
	}
	b.wakeAll()
	return pos, nil
}

// SetEnd declares the end of data. It never drops below the write cursor.
// Unbounded makes readers wait for writers instead of reporting io.EOF.
func (b *Buffer) SetEnd(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.end = max(n, b.writePos)
	b.wakeAll()
}

func (b *Buffer) End() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.end
}

func (b *Buffer) ReadPos() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readPos
}

func (b *Buffer) WritePos() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writePos
}

// Pending is the number of written bytes not yet read.
func (b *Buffer) Pending() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return max(b.writePos-b.readPos, 0)
}

// EvictConsumed drops leading chunks that lie entirely below the read
// cursor, the write cursor and the end of data. It returns the number of
// chunks dropped.
func (b *Buffer) EvictConsumed() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit := min(b.readPos, b.writePos, b.end)
	n := 0
	for n < len(b.chunks) && b.chunks[n].end() <= limit {
		n++
	}
	if n == 0 {
		return 0
	}
	clear(b.chunks[:n])
	b.chunks = b.chunks[n:]
	b.logger.Debug("evicted buffer chunks",
		zap.Int("chunks", n),
		zap.Int64("limit", limit),
		zap.Int("remaining", len(b.chunks)),
	)
	return n
}

// Chunks is the number of chunks currently held.
func (b *Buffer) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Abort wakes every waiter. Later reads and writes fail with ErrAborted.
func (b *Buffer) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.aborted = true
	b.wakeAll()
}

func (b *Buffer) wakeAll() {
	b.writeMoved.Broadcast()
	b.readMoved.Broadcast()
}
