package event

import (
	"math"

	"github.com/gftdcojp/buslog/internal/object"
)

// ethernetFrameExStructLength counts the fixed fields after StructLength.
const ethernetFrameExStructLength = 30

// Ethernet frame flags.
const (
	EthernetFlagChannelValid   = 0x0001
	EthernetFlagHWChannelValid = 0x0002
	EthernetFlagDurationValid  = 0x0004
	EthernetFlagChecksumValid  = 0x0008
	EthernetFlagLengthValid    = 0x0010
	EthernetFlagHandleValid    = 0x0020
)

// clip16 limits b to what a 16-bit length field can describe.
func clip16(b []byte) []byte {
	if len(b) > math.MaxUint16 {
		return b[:math.MaxUint16]
	}
	return b
}

// EthernetFrameEx is an Ethernet frame with timing and checksum details.
// Only the first 65535 bytes of FrameData are written.
type EthernetFrameEx struct {
	Flags           uint16
	Channel         uint16
	HardwareChannel uint16
	FrameDuration   uint64
	FrameChecksum   uint32
	Dir             uint16
	FrameHandle     uint32
	FrameData       []byte
}

func (f *EthernetFrameEx) Decode(r *object.Reader) error {
	r.Skip(2) // struct length
	f.Flags = r.Uint16()
	f.Channel = r.Uint16()
	f.HardwareChannel = r.Uint16()
	f.FrameDuration = r.Uint64()
	f.FrameChecksum = r.Uint32()
	f.Dir = r.Uint16()
	n := r.Uint16()
	f.FrameHandle = r.Uint32()
	r.Skip(4)
	f.FrameData = r.Next(int(n))
	return r.Err()
}

func (f *EthernetFrameEx) Encode(w *object.Writer) {
	w.PutUint16(ethernetFrameExStructLength)
	w.PutUint16(f.Flags)
	w.PutUint16(f.Channel)
	w.PutUint16(f.HardwareChannel)
	w.PutUint64(f.FrameDuration)
	w.PutUint32(f.FrameChecksum)
	w.PutUint16(f.Dir)
	data := clip16(f.FrameData)
	w.PutUint16(uint16(len(data)))
	w.PutUint32(f.FrameHandle)
	w.Pad(4)
	w.Write(data)
}

func (f *EthernetFrameEx) Size() int { return 32 + len(clip16(f.FrameData)) }
