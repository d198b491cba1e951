package event

import "github.com/gftdcojp/buslog/internal/object"

// DataLostBegin marks the start of a period in which a logger queue overflowed.
type DataLostBegin struct {
	QueueIdentifier uint32
}

func (d *DataLostBegin) Decode(r *object.Reader) error {
	d.QueueIdentifier = r.Uint32()
	return r.Err()
}

func (d *DataLostBegin) Encode(w *object.Writer) { w.PutUint32(d.QueueIdentifier) }

func (d *DataLostBegin) Size() int { return 4 }

// DataLostEnd closes a data loss period.
type DataLostEnd struct {
	QueueIdentifier          uint32
	FirstObjectLostTimeStamp uint64
	NumberOfLostEvents       uint32
}

func (d *DataLostEnd) Decode(r *object.Reader) error {
	d.QueueIdentifier = r.Uint32()
	d.FirstObjectLostTimeStamp = r.Uint64()
	d.NumberOfLostEvents = r.Uint32()
	return r.Err()
}

func (d *DataLostEnd) Encode(w *object.Writer) {
	w.PutUint32(d.QueueIdentifier)
	w.PutUint64(d.FirstObjectLostTimeStamp)
	w.PutUint32(d.NumberOfLostEvents)
}

func (d *DataLostEnd) Size() int { return 16 }
