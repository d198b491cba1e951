package event

import (
	"bytes"

	"github.com/gftdcojp/buslog/internal/object"
)

// EnvironmentVariable carries a named value. The value kind (integer,
// double, string, data) is given by the object type, not by the payload.
type EnvironmentVariable struct {
	Name string
	Data []byte
}

func (e *EnvironmentVariable) Decode(r *object.Reader) error {
	nameLen := r.Uint32()
	dataLen := r.Uint32()
	r.Skip(8)
	e.Name = string(r.Next(int(nameLen)))
	e.Data = r.Next(int(dataLen))
	return r.Err()
}

func (e *EnvironmentVariable) Encode(w *object.Writer) {
	w.PutUint32(uint32(len(e.Name)))
	w.PutUint32(uint32(len(e.Data)))
	w.Pad(8)
	w.Write([]byte(e.Name))
	w.Write(e.Data)
}

func (e *EnvironmentVariable) Size() int { return 16 + len(e.Name) + len(e.Data) }

// AppText sources.
const (
	AppTextSourceComment       = 0
	AppTextSourceChannelInfo   = 1
	AppTextSourceMetadata      = 2
	AppTextSourceFileComment   = 3
	AppTextSourceFileReference = 4
)

// AppText is free text attached to the measurement by the logging application.
type AppText struct {
	Source   uint32
	Reserved uint32
	Text     string
}

func (a *AppText) Decode(r *object.Reader) error {
	a.Source = r.Uint32()
	a.Reserved = r.Uint32()
	textLen := r.Uint32()
	r.Skip(4)
	a.Text = string(r.Next(int(textLen)))
	return r.Err()
}

func (a *AppText) Encode(w *object.Writer) {
	w.PutUint32(a.Source)
	w.PutUint32(a.Reserved)
	w.PutUint32(uint32(len(a.Text)))
	w.Pad(4)
	w.Write([]byte(a.Text))
}

func (a *AppText) Size() int { return 16 + len(a.Text) }

// SysVarType identifies how SystemVariable.Data is encoded.
type SysVarType uint32

const (
	SysVarDouble      SysVarType = 1
	SysVarLong        SysVarType = 2
	SysVarString      SysVarType = 3
	SysVarDoubleArray SysVarType = 4
	SysVarLongArray   SysVarType = 5
	SysVarLongLong    SysVarType = 6
	SysVarByteArray   SysVarType = 7
)

// SystemVariable is a named, typed value change.
type SystemVariable struct {
	Type           SysVarType
	Representation uint32
	Name           string
	Data           []byte
}

func (s *SystemVariable) Decode(r *object.Reader) error {
	s.Type = SysVarType(r.Uint32())
	s.Representation = r.Uint32()
	r.Skip(8)
	nameLen := r.Uint32()
	dataLen := r.Uint32()
	r.Skip(8)
	name := r.Next(int(nameLen))
	// Some writers declare a longer name than they fill; cut at the first NUL.
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	s.Name = string(name)
	s.Data = r.Next(int(dataLen))
	return r.Err()
}

func (s *SystemVariable) Encode(w *object.Writer) {
	w.PutUint32(uint32(s.Type))
	w.PutUint32(s.Representation)
	w.Pad(8)
	w.PutUint32(uint32(len(s.Name)))
	w.PutUint32(uint32(len(s.Data)))
	w.Pad(8)
	w.Write([]byte(s.Name))
	w.Write(s.Data)
}

func (s *SystemVariable) Size() int { return 32 + len(s.Name) + len(s.Data) }

// EventComment annotates an earlier event of the given type.
type EventComment struct {
	CommentedEventType uint32
	Text               string
}

func (c *EventComment) Decode(r *object.Reader) error {
	c.CommentedEventType = r.Uint32()
	textLen := r.Uint32()
	r.Skip(8)
	c.Text = string(r.Next(int(textLen)))
	return r.Err()
}

func (c *EventComment) Encode(w *object.Writer) {
	w.PutUint32(c.CommentedEventType)
	w.PutUint32(uint32(len(c.Text)))
	w.Pad(8)
	w.Write([]byte(c.Text))
}

func (c *EventComment) Size() int { return 16 + len(c.Text) }
