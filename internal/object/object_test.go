package object

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// blobPayload consumes the whole payload region.
type blobPayload struct {
	Data []byte
}

func (p *blobPayload) Decode(r *Reader) error {
	p.Data = r.Next(r.Len())
	return r.Err()
}

func (p *blobPayload) Encode(w *Writer) { w.Write(p.Data) }
func (p *blobPayload) Size() int        { return len(p.Data) }

// greedyPayload asks for a fixed number of bytes regardless of the region.
type greedyPayload struct {
	want int
}

func (p *greedyPayload) Decode(r *Reader) error {
	r.Skip(p.want)
	return nil
}

func (p *greedyPayload) Encode(w *Writer) { w.Pad(p.want) }
func (p *greedyPayload) Size() int        { return p.want }

func blobFactory(t Type) Payload {
	if !t.Known() {
		return nil
	}
	return &blobPayload{}
}

func newTestDecoder(f Factory) *Decoder {
	return NewDecoder(f, zap.NewNop())
}

func TestEncodeDecode_V1(t *testing.T) {
	o := New(TypeAppTrigger, &blobPayload{Data: []byte("0123456789")})
	o.ClientIndex = 3
	o.ObjectVersion = 1
	o.SetOffset(1500 * time.Millisecond)

	raw := o.Encode()
	if len(raw) != HeaderV1Size+10 {
		t.Fatalf("frame length = %d, want %d", len(raw), HeaderV1Size+10)
	}

	got, err := newTestDecoder(blobFactory).Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != TypeAppTrigger {
		t.Errorf("type = %v, want %v", got.Type, TypeAppTrigger)
	}
	if got.HeaderSize != HeaderV1Size || got.HeaderVersion != 1 {
		t.Errorf("header size/version = %d/%d", got.HeaderSize, got.HeaderVersion)
	}
	if got.ClientIndex != 3 || got.ObjectVersion != 1 {
		t.Errorf("extension fields = %d/%d", got.ClientIndex, got.ObjectVersion)
	}
	if got.Offset() != 1500*time.Millisecond {
		t.Errorf("offset = %v", got.Offset())
	}
	if !bytes.Equal(got.Payload.(*blobPayload).Data, []byte("0123456789")) {
		t.Errorf("payload = %q", got.Payload.(*blobPayload).Data)
	}
}

func TestEncodeDecode_V2(t *testing.T) {
	o := New(TypeMOSTEthernetPkt, &blobPayload{Data: []byte{1, 2, 3}})
	o.TimestampStatus = 0x12
	o.Timestamp = 42
	o.OriginalTimestamp = 40

	raw := o.Encode()
	if len(raw) != HeaderV2Size+3 {
		t.Fatalf("frame length = %d, want %d", len(raw), HeaderV2Size+3)
	}

	got, err := newTestDecoder(blobFactory).Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.HeaderVersion != 2 {
		t.Errorf("header version = %d, want 2", got.HeaderVersion)
	}
	if got.TimestampStatus != 0x12 || got.Timestamp != 42 || got.OriginalTimestamp != 40 {
		t.Errorf("extension = %+v", got.Header)
	}
}

func TestSyncRecomputesSizes(t *testing.T) {
	p := &blobPayload{Data: []byte("abc")}
	o := New(TypeAppTrigger, p)
	p.Data = append(p.Data, "defgh"...)
	o.ObjectSize = 1 // stale

	raw := o.Encode()
	base, err := PeekBase(raw)
	if err != nil {
		t.Fatal(err)
	}
	if int(base.ObjectSize) != int(base.HeaderSize)+p.Size() {
		t.Errorf("object size %d != header %d + payload %d", base.ObjectSize, base.HeaderSize, p.Size())
	}
}

func TestPadding(t *testing.T) {
	cases := []struct {
		typ  Type
		size uint32
		want int
	}{
		{TypeMOSTPkt, 33, 1},
		{TypeMOSTPkt, 35, 3},
		{TypeMOSTPkt2, 36, 0},
		{TypeLogContainer, 34, 2},
		{TypeCANMessage, 35, 0},
	}
	for _, c := range cases {
		if got := Padding(c.typ, c.size); got != c.want {
			t.Errorf("Padding(%v, %d) = %d, want %d", c.typ, c.size, got, c.want)
		}
	}

	o := New(TypeMOSTPkt, &blobPayload{Data: []byte{9}})
	raw := o.Encode()
	if len(raw) != o.FrameSize() {
		t.Fatalf("encoded %d bytes, frame size %d", len(raw), o.FrameSize())
	}
	if o.FrameSize() != int(o.ObjectSize)+1 {
		t.Errorf("frame size = %d for object size %d", o.FrameSize(), o.ObjectSize)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	o := New(TypeReserved26, &blobPayload{Data: []byte{1, 2}})
	got, err := newTestDecoder(blobFactory).Decode(o.Encode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil object for unknown type, got %+v", got)
	}
}

func TestDecodeBadSignatureContinues(t *testing.T) {
	raw := New(TypeAppTrigger, &blobPayload{Data: []byte("x")}).Encode()
	raw[0] = 'X'

	got, err := newTestDecoder(blobFactory).Decode(raw)
	if err != nil {
		t.Fatalf("bad signature should not fail: %v", err)
	}
	if got == nil || got.Signature == Signature {
		t.Fatalf("expected object carrying the bad signature, got %+v", got)
	}
}

func TestDecodeTruncated(t *testing.T) {
	raw := New(TypeAppTrigger, &blobPayload{Data: []byte("payload")}).Encode()
	_, err := newTestDecoder(blobFactory).Decode(raw[:len(raw)-1])
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if _, err := PeekBase(raw[:BaseSize-1]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated from PeekBase, got %v", err)
	}
}

func TestDecodeStaysWithinObjectSize(t *testing.T) {
	raw := New(TypeAppTrigger, &blobPayload{Data: make([]byte, 4)}).Encode()
	// Trailing bytes belong to the next object and must not be consumed.
	raw = append(raw, make([]byte, 64)...)

	dec := newTestDecoder(func(Type) Payload { return &greedyPayload{want: 8} })
	if _, err := dec.Decode(raw); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated when payload overreads, got %v", err)
	}
}

func TestPeekBase(t *testing.T) {
	raw := New(TypeLogContainer, &blobPayload{Data: make([]byte, 20)}).Encode()
	base, err := PeekBase(raw)
	if err != nil {
		t.Fatal(err)
	}
	if base.Type != TypeLogContainer || base.HeaderSize != BaseSize || base.ObjectSize != BaseSize+20 {
		t.Errorf("unexpected base %+v", base)
	}
}

func TestLayoutFor(t *testing.T) {
	cases := map[Type]Layout{
		TypeLogContainer:    LayoutBase,
		TypeCANMessage:      LayoutV1,
		TypeMOST150Message:  LayoutV2,
		TypeMOST50Pkt:       LayoutV2,
		TypeMOSTEthernetPkt: LayoutV2,
		TypeCANMessage2:     LayoutV1,
	}
	for typ, want := range cases {
		if got := LayoutFor(typ); got != want {
			t.Errorf("LayoutFor(%v) = %v, want %v", typ, got, want)
		}
	}
}

func TestTypeNames(t *testing.T) {
	if TypeLogContainer.String() != "LOG_CONTAINER" {
		t.Errorf("String() = %q", TypeLogContainer.String())
	}
	if Type(500).String() != "TYPE_500" {
		t.Errorf("String() = %q", Type(500).String())
	}
	if typ, ok := ParseType("CAN_MESSAGE2"); !ok || typ != TypeCANMessage2 {
		t.Errorf("ParseType = %v, %v", typ, ok)
	}
	if TypeReserved108.Known() || Type(132).Known() || !TypeAttributeEvent.Known() {
		t.Error("Known() misclassifies reserved or out-of-range tags")
	}
}
