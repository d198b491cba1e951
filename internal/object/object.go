// Package object implements the framing shared by every record in a BLF
// log: the object header, its per-type layout, and dispatch of the payload
// to a type-specific codec.
package object

import (
	"errors"
	"fmt"

	"github.com/gftdcojp/buslog/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrTruncated = errors.New("object: truncated")
	ErrMalformed = errors.New("object: malformed header")
)

// Payload is the type-specific body of an object.
// Decode must consume its fields from r, which is bounded to the payload region.
type Payload interface {
	Decode(r *Reader) error
	Encode(w *Writer)
	Size() int
}

// Factory returns an empty payload for a tag, or nil when the tag is unknown.
type Factory func(Type) Payload

// Object is a decoded header together with its payload.
type Object struct {
	Header
	Payload Payload
}

// New builds an object of type t with header fields matching its layout.
func New(t Type, p Payload) *Object {
	o := &Object{
		Header:  Header{Base: Base{Type: t}},
		Payload: p,
	}
	if LayoutFor(t) != LayoutBase {
		o.Flags = FlagTimeOneNans
	}
	o.Sync()
	return o
}

// Sync recomputes the signature and size fields from the current payload.
func (o *Object) Sync() {
	l := LayoutFor(o.Type)
	o.Signature = Signature
	o.HeaderSize = uint16(l.Size())
	o.HeaderVersion = l.Version()
	o.ObjectSize = uint32(l.Size() + o.Payload.Size())
}

// FrameSize is ObjectSize plus trailing padding.
func (o *Object) FrameSize() int {
	return int(o.ObjectSize) + Padding(o.Type, o.ObjectSize)
}

// EncodeTo appends the header, payload and padding to w.
func (o *Object) EncodeTo(w *Writer) {
	o.Sync()
	l := LayoutFor(o.Type)
	o.Header.encode(w, l)
	o.Payload.Encode(w)
	w.Pad(Padding(o.Type, o.ObjectSize))
}

// Encode returns the complete frame for o.
func (o *Object) Encode() []byte {
	o.Sync()
	w := NewWriter(o.FrameSize())
	o.EncodeTo(w)
	return w.Bytes()
}

// PeekBase parses the fixed header at the start of data without decoding the rest.
func PeekBase(data []byte) (Base, error) {
	if len(data) < BaseSize {
		return Base{}, fmt.Errorf("%w: %d bytes, need %d for header", ErrTruncated, len(data), BaseSize)
	}
	return decodeBase(NewReader(data[:BaseSize])), nil
}

// Decoder turns frames into objects using a Factory for payload dispatch.
type Decoder struct {
	factory Factory
	logger  *zap.Logger
}

func NewDecoder(factory Factory, logger *zap.Logger) *Decoder {
	return &Decoder{factory: factory, logger: logger}
}

// Decode parses one object from the start of data. data must hold at least
// ObjectSize bytes. A nil object with a nil error means the tag is unknown
// and the caller should skip ObjectSize plus padding bytes.
func (d *Decoder) Decode(data []byte) (*Object, error) {
	base, err := PeekBase(data)
	if err != nil {
		return nil, err
	}
	if base.Signature != Signature {
		metrics.SignatureWarnings.Inc()
		d.logger.Warn("object signature mismatch",
			zap.Uint32("signature", base.Signature),
			zap.Stringer("type", base.Type),
		)
	}
	if int(base.ObjectSize) > len(data) {
		return nil, fmt.Errorf("%w: object of %d bytes, have %d", ErrTruncated, base.ObjectSize, len(data))
	}

	p := d.factory(base.Type)
	if p == nil {
		return nil, nil
	}

	l := LayoutFor(base.Type)
	hs := l.Size()
	if int(base.ObjectSize) < hs {
		return nil, fmt.Errorf("%w: %s object size %d below header size %d", ErrMalformed, base.Type, base.ObjectSize, hs)
	}
	if int(base.HeaderSize) != hs {
		d.logger.Debug("declared header size differs from layout",
			zap.Stringer("type", base.Type),
			zap.Uint16("declared", base.HeaderSize),
			zap.Int("layout", hs),
		)
	}

	h := Header{Base: base}
	h.decodeExtension(NewReader(data[BaseSize:hs]), l)

	pr := NewReader(data[hs:base.ObjectSize])
	if err := p.Decode(pr); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", base.Type, err)
	}
	if err := pr.Err(); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", base.Type, err)
	}
	return &Object{Header: h, Payload: p}, nil
}
