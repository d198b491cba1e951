package event

import "github.com/gftdcojp/buslog/internal/object"

// MOSTPkt is an asynchronous MOST25 packet. Frames of this type are padded.
type MOSTPkt struct {
	Channel       uint16
	Dir           uint8
	SourceAdr     uint32
	DestAdr       uint32
	Arbitration   uint8
	TimeRes       uint8
	QuadsToFollow uint8
	CRC           uint16
	Priority      uint8
	TransferType  uint8
	State         uint8
	PktData       []byte
}

func (p *MOSTPkt) Decode(r *object.Reader) error {
	p.Channel = r.Uint16()
	p.Dir = r.Uint8()
	r.Skip(1)
	p.SourceAdr = r.Uint32()
	p.DestAdr = r.Uint32()
	p.Arbitration = r.Uint8()
	p.TimeRes = r.Uint8()
	p.QuadsToFollow = r.Uint8()
	r.Skip(1)
	p.CRC = r.Uint16()
	p.Priority = r.Uint8()
	p.TransferType = r.Uint8()
	p.State = r.Uint8()
	r.Skip(1 + 2)
	n := r.Uint32()
	r.Skip(4)
	p.PktData = r.Next(int(n))
	return r.Err()
}

func (p *MOSTPkt) Encode(w *object.Writer) {
	w.PutUint16(p.Channel)
	w.PutUint8(p.Dir)
	w.Pad(1)
	w.PutUint32(p.SourceAdr)
	w.PutUint32(p.DestAdr)
	w.PutUint8(p.Arbitration)
	w.PutUint8(p.TimeRes)
	w.PutUint8(p.QuadsToFollow)
	w.Pad(1)
	w.PutUint16(p.CRC)
	w.PutUint8(p.Priority)
	w.PutUint8(p.TransferType)
	w.PutUint8(p.State)
	w.Pad(1 + 2)
	w.PutUint32(uint32(len(p.PktData)))
	w.Pad(4)
	w.Write(p.PktData)
}

func (p *MOSTPkt) Size() int { return 32 + len(p.PktData) }

// MOSTEthernetPkt is an Ethernet packet tunnelled over MOST150.
// It uses the version 2 object header.
type MOSTEthernetPkt struct {
	Channel      uint16
	Dir          uint8
	SourceMacAdr uint64
	DestMacAdr   uint64
	TransferType uint8
	State        uint8
	AckNack      uint8
	CRC          uint32
	PAck         uint8
	CAck         uint8
	PktData      []byte
}

func (p *MOSTEthernetPkt) Decode(r *object.Reader) error {
	p.Channel = r.Uint16()
	p.Dir = r.Uint8()
	r.Skip(1 + 4)
	p.SourceMacAdr = r.Uint64()
	p.DestMacAdr = r.Uint64()
	p.TransferType = r.Uint8()
	p.State = r.Uint8()
	p.AckNack = r.Uint8()
	r.Skip(1)
	p.CRC = r.Uint32()
	p.PAck = r.Uint8()
	p.CAck = r.Uint8()
	r.Skip(2)
	n := r.Uint32()
	r.Skip(8)
	p.PktData = r.Next(int(n))
	return r.Err()
}

func (p *MOSTEthernetPkt) Encode(w *object.Writer) {
	w.PutUint16(p.Channel)
	w.PutUint8(p.Dir)
	w.Pad(1 + 4)
	w.PutUint64(p.SourceMacAdr)
	w.PutUint64(p.DestMacAdr)
	w.PutUint8(p.TransferType)
	w.PutUint8(p.State)
	w.PutUint8(p.AckNack)
	w.Pad(1)
	w.PutUint32(p.CRC)
	w.PutUint8(p.PAck)
	w.PutUint8(p.CAck)
	w.Pad(2)
	w.PutUint32(uint32(len(p.PktData)))
	w.Pad(8)
	w.Write(p.PktData)
}

func (p *MOSTEthernetPkt) Size() int { return 48 + len(p.PktData) }
