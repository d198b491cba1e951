package event

import "github.com/gftdcojp/buslog/internal/object"

// CAN message flags.
const (
	CANFlagTx   = 0x01
	CANFlagNERR = 0x20
	CANFlagWU   = 0x40
	CANFlagRTR  = 0x80
)

// CANMessage is a classic CAN frame with up to 8 data bytes.
type CANMessage struct {
	Channel uint16
	Flags   uint8
	DLC     uint8
	ID      uint32
	Data    [8]byte
}

func (m *CANMessage) Decode(r *object.Reader) error {
	m.Channel = r.Uint16()
	m.Flags = r.Uint8()
	m.DLC = r.Uint8()
	m.ID = r.Uint32()
	r.Fill(m.Data[:])
	return r.Err()
}

func (m *CANMessage) Encode(w *object.Writer) {
	w.PutUint16(m.Channel)
	w.PutUint8(m.Flags)
	w.PutUint8(m.DLC)
	w.PutUint32(m.ID)
	w.Write(m.Data[:])
}

func (m *CANMessage) Size() int { return 16 }

// CANMessage2 is a CAN frame with variable data length and bit timing details.
type CANMessage2 struct {
	Channel     uint16
	Flags       uint8
	DLC         uint8
	ID          uint32
	Data        []byte
	FrameLength uint32
	BitCount    uint8
	Reserved1   uint8
	Reserved2   uint16
}

const canMessage2Fixed = 16

func (m *CANMessage2) Decode(r *object.Reader) error {
	m.Channel = r.Uint16()
	m.Flags = r.Uint8()
	m.DLC = r.Uint8()
	m.ID = r.Uint32()
	// Data fills everything between the leading and trailing fixed fields.
	if n := r.Len() - 8; n > 0 {
		m.Data = r.Next(n)
	} else {
		m.Data = nil
	}
	m.FrameLength = r.Uint32()
	m.BitCount = r.Uint8()
	m.Reserved1 = r.Uint8()
	m.Reserved2 = r.Uint16()
	return r.Err()
}

func (m *CANMessage2) Encode(w *object.Writer) {
	w.PutUint16(m.Channel)
	w.PutUint8(m.Flags)
	w.PutUint8(m.DLC)
	w.PutUint32(m.ID)
	w.Write(m.Data)
	w.PutUint32(m.FrameLength)
	w.PutUint8(m.BitCount)
	w.PutUint8(m.Reserved1)
	w.PutUint16(m.Reserved2)
}

func (m *CANMessage2) Size() int { return canMessage2Fixed + len(m.Data) }

// CANOverloadFrame marks an overload frame on a channel.
type CANOverloadFrame struct {
	Channel uint16
}

func (f *CANOverloadFrame) Decode(r *object.Reader) error {
	f.Channel = r.Uint16()
	r.Skip(2 + 4)
	return r.Err()
}

func (f *CANOverloadFrame) Encode(w *object.Writer) {
	w.PutUint16(f.Channel)
	w.Pad(2 + 4)
}

func (f *CANOverloadFrame) Size() int { return 8 }
