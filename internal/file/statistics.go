package file

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gftdcojp/buslog/internal/object"
)

const (
	StatisticsSignature = 0x47474F4C // "LOGG"
	StatisticsSize      = 144
)

// Library version recorded in new files.
const (
	APIMajor = 4
	APIMinor = 7
	APIBuild = 1
	APIPatch = 0
)

var ErrNotLogFile = errors.New("file: not a log file")

// SystemTime is the calendar time layout used by the statistics header.
type SystemTime struct {
	Year         uint16
	Month        uint16
	DayOfWeek    uint16
	Day          uint16
	Hour         uint16
	Minute       uint16
	Second       uint16
	Milliseconds uint16
}

// SystemTimeOf converts t to its UTC calendar fields.
func SystemTimeOf(t time.Time) SystemTime {
	if t.IsZero() {
		return SystemTime{}
	}
	t = t.UTC()
	return SystemTime{
		Year:         uint16(t.Year()),
		Month:        uint16(t.Month()),
		DayOfWeek:    uint16(t.Weekday()),
		Day:          uint16(t.Day()),
		Hour:         uint16(t.Hour()),
		Minute:       uint16(t.Minute()),
		Second:       uint16(t.Second()),
		Milliseconds: uint16(t.Nanosecond() / int(time.Millisecond)),
	}
}

func (s SystemTime) IsZero() bool { return s.Year == 0 }

// Time returns s as a UTC time, or the zero time when unset.
func (s SystemTime) Time() time.Time {
	if s.IsZero() {
		return time.Time{}
	}
	return time.Date(int(s.Year), time.Month(s.Month), int(s.Day),
		int(s.Hour), int(s.Minute), int(s.Second),
		int(s.Milliseconds)*int(time.Millisecond), time.UTC)
}

func (s *SystemTime) decode(r *object.Reader) {
	s.Year = r.Uint16()
	s.Month = r.Uint16()
	s.DayOfWeek = r.Uint16()
	s.Day = r.Uint16()
	s.Hour = r.Uint16()
	s.Minute = r.Uint16()
	s.Second = r.Uint16()
	s.Milliseconds = r.Uint16()
}

func (s SystemTime) encode(w *object.Writer) {
	w.PutUint16(s.Year)
	w.PutUint16(s.Month)
	w.PutUint16(s.DayOfWeek)
	w.PutUint16(s.Day)
	w.PutUint16(s.Hour)
	w.PutUint16(s.Minute)
	w.PutUint16(s.Second)
	w.PutUint16(s.Milliseconds)
}

// Statistics is the fixed header at offset 0 of every log file.
type Statistics struct {
	Signature                    uint32
	StatisticsSize               uint32
	ApplicationID                uint8
	ApplicationMajor             uint8
	ApplicationMinor             uint8
	ApplicationBuild             uint8
	APIMajor                     uint8
	APIMinor                     uint8
	APIBuild                     uint8
	APIPatch                     uint8
	FileSize                     uint64
	UncompressedFileSize         uint64
	ObjectCount                  uint32
	ObjectsRead                  uint32 // kept as found; files written here leave it zero
	MeasurementStartTime         SystemTime
	LastObjectTime               SystemTime
	FileSizeWithoutRestorePoints uint64
	Reserved                     [16]uint32
}

// NewStatistics returns a header with signature, size and library version set.
func NewStatistics() Statistics {
	return Statistics{
		Signature:      StatisticsSignature,
		StatisticsSize: StatisticsSize,
		APIMajor:       APIMajor,
		APIMinor:       APIMinor,
		APIBuild:       APIBuild,
		APIPatch:       APIPatch,
	}
}

func (s *Statistics) Encode() []byte {
	w := object.NewWriter(StatisticsSize)
	w.PutUint32(s.Signature)
	w.PutUint32(s.StatisticsSize)
	w.PutUint8(s.ApplicationID)
	w.PutUint8(s.ApplicationMajor)
	w.PutUint8(s.ApplicationMinor)
	w.PutUint8(s.ApplicationBuild)
	w.PutUint8(s.APIMajor)
	w.PutUint8(s.APIMinor)
	w.PutUint8(s.APIBuild)
	w.PutUint8(s.APIPatch)
	w.PutUint64(s.FileSize)
	w.PutUint64(s.UncompressedFileSize)
	w.PutUint32(s.ObjectCount)
	w.PutUint32(s.ObjectsRead)
	s.MeasurementStartTime.encode(w)
	s.LastObjectTime.encode(w)
	w.PutUint64(s.FileSizeWithoutRestorePoints)
	for _, v := range s.Reserved {
		w.PutUint32(v)
	}
	return w.Bytes()
}

// DecodeStatistics parses the first StatisticsSize bytes of data.
func DecodeStatistics(data []byte) (Statistics, error) {
	var s Statistics
	if len(data) < StatisticsSize {
		return s, fmt.Errorf("%w: header of %d bytes, need %d", ErrNotLogFile, len(data), StatisticsSize)
	}
	r := object.NewReader(data[:StatisticsSize])
	s.Signature = r.Uint32()
	if s.Signature != StatisticsSignature {
		return s, fmt.Errorf("%w: signature %#x", ErrNotLogFile, s.Signature)
	}
	s.StatisticsSize = r.Uint32()
	s.ApplicationID = r.Uint8()
	s.ApplicationMajor = r.Uint8()
	s.ApplicationMinor = r.Uint8()
	s.ApplicationBuild = r.Uint8()
	s.APIMajor = r.Uint8()
	s.APIMinor = r.Uint8()
	s.APIBuild = r.Uint8()
	s.APIPatch = r.Uint8()
	s.FileSize = r.Uint64()
	s.UncompressedFileSize = r.Uint64()
	s.ObjectCount = r.Uint32()
	s.ObjectsRead = r.Uint32()
	s.MeasurementStartTime.decode(r)
	s.LastObjectTime.decode(r)
	s.FileSizeWithoutRestorePoints = r.Uint64()
	for i := range s.Reserved {
		s.Reserved[i] = r.Uint32()
	}
	return s, r.Err()
}

// ReadStatistics reads the header at the read cursor of f and leaves the
// cursor at the first object, honouring a declared header size larger
// than StatisticsSize.
func ReadStatistics(f *File) (Statistics, error) {
	buf := make([]byte, StatisticsSize)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return Statistics{}, err
	}
	s, err := DecodeStatistics(buf[:n])
	if err != nil {
		return s, err
	}
	if s.StatisticsSize > StatisticsSize {
		if _, err := f.SeekRead(int64(s.StatisticsSize), io.SeekStart); err != nil {
			return s, err
		}
	}
	return s, nil
}

// WriteStatistics writes s at offset 0 without moving the write cursor.
func WriteStatistics(f *File, s *Statistics) error {
	return f.WriteAt(s.Encode(), 0)
}
