package event

import "github.com/gftdcojp/buslog/internal/object"

// RestorePointContainer holds opaque restore point data written at the end
// of a file. Data longer than 65535 bytes is cut to that length.
type RestorePointContainer struct {
	Reserved [14]byte
	Data     []byte
}

func (c *RestorePointContainer) Decode(r *object.Reader) error {
	r.Fill(c.Reserved[:])
	n := r.Uint16()
	c.Data = r.Next(int(n))
	return r.Err()
}

func (c *RestorePointContainer) Encode(w *object.Writer) {
	w.Write(c.Reserved[:])
	data := clip16(c.Data)
	w.PutUint16(uint16(len(data)))
	w.Write(data)
}

func (c *RestorePointContainer) Size() int { return 16 + len(clip16(c.Data)) }
