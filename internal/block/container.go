package block

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gftdcojp/buslog/internal/object"
	"github.com/klauspost/compress/zlib"
)

const (
	// MethodStored keeps container bytes uncompressed.
	MethodStored = uint16(0)
	// MethodDeflate stores a zlib stream.
	MethodDeflate = uint16(2)

	// SubHeaderSize: [2 method][2 reserved][4 reserved][4 uncompressed_size][4 reserved]
	SubHeaderSize = 16

	// InternalHeaderSize is the object header plus the container sub-header.
	InternalHeaderSize = object.BaseSize + SubHeaderSize
)

var (
	ErrInflate           = errors.New("block: inflated size mismatch")
	ErrDeflate           = errors.New("block: deflate failed")
	ErrUnsupportedMethod = errors.New("block: unsupported compression method")
)

// LogContainer is one compressed chunk of object bytes.
type LogContainer struct {
	Method           uint16
	UncompressedSize uint32
	Compressed       []byte

	reserved1 uint16
	reserved2 uint32
	reserved3 uint32
}

func (c *LogContainer) Decode(r *object.Reader) error {
	c.Method = r.Uint16()
	c.reserved1 = r.Uint16()
	c.reserved2 = r.Uint32()
	c.UncompressedSize = r.Uint32()
	c.reserved3 = r.Uint32()
	c.Compressed = r.Next(r.Len())
	return r.Err()
}

func (c *LogContainer) Encode(w *object.Writer) {
	w.PutUint16(c.Method)
	w.PutUint16(c.reserved1)
	w.PutUint32(c.reserved2)
	w.PutUint32(c.UncompressedSize)
	w.PutUint32(c.reserved3)
	w.Write(c.Compressed)
}

func (c *LogContainer) Size() int {
	return SubHeaderSize + len(c.Compressed)
}

// CompressedSize is derived from the compressed byte sequence.
func (c *LogContainer) CompressedSize() int {
	return len(c.Compressed)
}

// InternalHeaderSize is the number of bytes the container adds in front of its data.
func (c *LogContainer) InternalHeaderSize() int {
	return InternalHeaderSize
}

// Object wraps the container in an object with a matching header.
func (c *LogContainer) Object() *object.Object {
	return object.New(object.TypeLogContainer, c)
}

// Inflate returns the uncompressed bytes. The result always has exactly
// UncompressedSize bytes or an error wrapping ErrInflate is returned.
func (c *LogContainer) Inflate() ([]byte, error) {
	switch c.Method {
	case MethodStored:
		if len(c.Compressed) != int(c.UncompressedSize) {
			return nil, fmt.Errorf("%w: stored %d bytes, declared %d", ErrInflate, len(c.Compressed), c.UncompressedSize)
		}
		out := make([]byte, len(c.Compressed))
		copy(out, c.Compressed)
		return out, nil

	case MethodDeflate:
		if uint64(c.UncompressedSize) > uint64(len(c.Compressed))*MaxDeflateRatio {
			return nil, fmt.Errorf("%w: declared %d bytes from %d compressed", ErrInflate, c.UncompressedSize, len(c.Compressed))
		}
		zr, err := zlib.NewReader(bytes.NewReader(c.Compressed))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInflate, err)
		}
		defer zr.Close()

		out := make([]byte, c.UncompressedSize)
		if _, err := io.ReadFull(zr, out); err != nil {
			return nil, fmt.Errorf("%w: declared %d bytes: %v", ErrInflate, c.UncompressedSize, err)
		}
		// The stream must end exactly at the declared size.
		var extra [1]byte
		n, err := zr.Read(extra[:])
		if n > 0 {
			return nil, fmt.Errorf("%w: stream longer than declared %d bytes", ErrInflate, c.UncompressedSize)
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: %v", ErrInflate, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedMethod, c.Method)
}

// MaxDeflateRatio bounds how many bytes one compressed byte can inflate to.
const MaxDeflateRatio = 1032

// MethodForLevel maps a configured compression level to a method.
func MethodForLevel(level int) uint16 {
	if level <= 0 {
		return MethodStored
	}
	return MethodDeflate
}

// CompressBound is the worst-case zlib output size for n input bytes.
func CompressBound(n int) int {
	return n + (n >> 12) + (n >> 14) + (n >> 25) + 13
}

// Deflate builds a container holding data compressed with method at level.
// Levels above 9 are clamped.
func Deflate(data []byte, method uint16, level int) (*LogContainer, error) {
	c := &LogContainer{
		Method:           method,
		UncompressedSize: uint32(len(data)),
	}

	switch method {
	case MethodStored:
		c.Compressed = make([]byte, len(data))
		copy(c.Compressed, data)
		return c, nil

	case MethodDeflate:
		if level < 1 {
			level = 1
		}
		if level > 9 {
			level = 9
		}
		bound := CompressBound(len(data))
		buf := bytes.NewBuffer(make([]byte, 0, bound))
		zw, err := zlib.NewWriterLevel(buf, level)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeflate, err)
		}
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeflate, err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeflate, err)
		}
		if buf.Len() > bound {
			return nil, fmt.Errorf("%w: output %d bytes exceeds bound %d", ErrDeflate, buf.Len(), bound)
		}
		c.Compressed = buf.Bytes()
		return c, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedMethod, method)
}

// MethodName is the label used for logs and metrics.
func MethodName(method uint16) string {
	switch method {
	case MethodStored:
		return "stored"
	case MethodDeflate:
		return "deflate"
	}
	return fmt.Sprintf("method_%d", method)
}
