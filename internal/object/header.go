package object

import "time"

const (
	// Signature identifies every object frame ("LOBJ").
	Signature = uint32(0x4A424F4C)

	// BaseSize: [4 signature][2 header_size][2 header_version][4 object_size][4 object_type]
	BaseSize = 16

	// HeaderV1Size adds [4 flags][2 client_index][2 object_version][8 timestamp].
	HeaderV1Size = BaseSize + 16

	// HeaderV2Size adds [4 flags][1 timestamp_status][1 reserved][2 object_version][8 timestamp][8 original_timestamp].
	HeaderV2Size = BaseSize + 24
)

// Flags qualify the timestamp unit.
type Flags uint32

const (
	FlagTimeTenMics Flags = 0x1
	FlagTimeOneNans Flags = 0x2
)

// Layout selects which extension follows the base header.
type Layout int

const (
	LayoutBase Layout = iota
	LayoutV1
	LayoutV2
)

// Size is the byte count of the whole header for the layout.
func (l Layout) Size() int {
	switch l {
	case LayoutV1:
		return HeaderV1Size
	case LayoutV2:
		return HeaderV2Size
	}
	return BaseSize
}

// Version is the header_version field value written for the layout.
func (l Layout) Version() uint16 {
	if l == LayoutV2 {
		return 2
	}
	return 1
}

// LayoutFor returns the header layout used by objects of type t.
// The layout is fixed per type.
func LayoutFor(t Type) Layout {
	switch {
	case t == TypeLogContainer:
		return LayoutBase
	case t >= TypeMOST150Message && t <= TypeMOST50Pkt, t == TypeMOSTECL:
		return LayoutV2
	}
	return LayoutV1
}

// Padding returns the number of zero bytes that follow an object of type t
// and size objectSize. They are not counted in objectSize.
func Padding(t Type, objectSize uint32) int {
	switch t {
	case TypeLogContainer, TypeMOSTPkt, TypeMOSTPkt2:
		return int(objectSize % 4)
	}
	return 0
}

// Base is the fixed part shared by all objects.
type Base struct {
	Signature     uint32
	HeaderSize    uint16
	HeaderVersion uint16
	ObjectSize    uint32
	Type          Type
}

// Header is the base plus the version-dependent extension.
// Fields absent from the object's layout stay zero.
type Header struct {
	Base

	Flags             Flags
	ClientIndex       uint16
	ObjectVersion     uint16
	TimestampStatus   uint8
	Timestamp         uint64
	OriginalTimestamp uint64
}

// Layout returns the header layout for the object's type.
func (h *Header) Layout() Layout {
	return LayoutFor(h.Type)
}

// Offset converts Timestamp to a duration since measurement start.
func (h *Header) Offset() time.Duration {
	if h.Flags&FlagTimeOneNans != 0 {
		return time.Duration(h.Timestamp)
	}
	return time.Duration(h.Timestamp) * 10 * time.Microsecond
}

// SetOffset stores d as a nanosecond timestamp.
func (h *Header) SetOffset(d time.Duration) {
	h.Flags = (h.Flags &^ FlagTimeTenMics) | FlagTimeOneNans
	h.Timestamp = uint64(d)
}

func decodeBase(r *Reader) Base {
	return Base{
		Signature:     r.Uint32(),
		HeaderSize:    r.Uint16(),
		HeaderVersion: r.Uint16(),
		ObjectSize:    r.Uint32(),
		Type:          Type(r.Uint32()),
	}
}

func (h *Header) decodeExtension(r *Reader, l Layout) {
	switch l {
	case LayoutV1:
		h.Flags = Flags(r.Uint32())
		h.ClientIndex = r.Uint16()
		h.ObjectVersion = r.Uint16()
		h.Timestamp = r.Uint64()
	case LayoutV2:
		h.Flags = Flags(r.Uint32())
		h.TimestampStatus = r.Uint8()
		r.Skip(1)
		h.ObjectVersion = r.Uint16()
		h.Timestamp = r.Uint64()
		h.OriginalTimestamp = r.Uint64()
	}
}

func (h *Header) encode(w *Writer, l Layout) {
	w.PutUint32(h.Signature)
	w.PutUint16(h.HeaderSize)
	w.PutUint16(h.HeaderVersion)
	w.PutUint32(h.ObjectSize)
	w.PutUint32(uint32(h.Type))
	switch l {
	case LayoutV1:
		w.PutUint32(uint32(h.Flags))
		w.PutUint16(h.ClientIndex)
		w.PutUint16(h.ObjectVersion)
		w.PutUint64(h.Timestamp)
	case LayoutV2:
		w.PutUint32(uint32(h.Flags))
		w.PutUint8(h.TimestampStatus)
		w.PutUint8(0)
		w.PutUint16(h.ObjectVersion)
		w.PutUint64(h.Timestamp)
		w.PutUint64(h.OriginalTimestamp)
	}
}
