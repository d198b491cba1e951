package event

import "github.com/gftdcojp/buslog/internal/object"

// Raw keeps the payload bytes of a known type that has no dedicated codec.
type Raw struct {
	Data []byte
}

func (p *Raw) Decode(r *object.Reader) error {
	p.Data = r.Next(r.Len())
	return r.Err()
}

func (p *Raw) Encode(w *object.Writer) { w.Write(p.Data) }

func (p *Raw) Size() int { return len(p.Data) }
