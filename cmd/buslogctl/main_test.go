package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/event"
	"github.com/gftdcojp/buslog/internal/object"
	"github.com/gftdcojp/buslog/internal/session"
	"go.uber.org/zap"
)

var start = time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)

func writeLog(t *testing.T, cfg config.SessionConfig) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.blf")
	cfg.Application = config.ApplicationConfig{ID: 5, Major: 2, Minor: 1}
	s, err := session.Create(path, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s.SetMeasurementStart(start)
	for i := 0; i < 20; i++ {
		o := object.New(object.TypeCANMessage, &event.CANMessage{Channel: 1, DLC: 8, ID: 0x200 + uint32(i)})
		o.SetOffset(time.Duration(i) * time.Millisecond)
		if err := s.Write(o); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Write(object.New(object.TypeAppText, &event.AppText{Text: "marker"})); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvertKeepsObjectsAndHeader(t *testing.T) {
	in := writeLog(t, config.DefaultSessionConfig())
	out := filepath.Join(t.TempDir(), "out.blf")

	outCfg := config.DefaultSessionConfig()
	outCfg.CompressionLevel = 0
	outCfg.ContainerSize = 128
	outCfg.WriteRestorePoints = false
	n, err := convert(in, out, config.DefaultSessionConfig(), outCfg, zap.NewNop())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if n != 21 {
		t.Fatalf("converted %d objects, want 21", n)
	}

	sum, err := session.Scan(out, config.DefaultSessionConfig(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Objects != 21 {
		t.Errorf("output holds %d objects", sum.Objects)
	}
	if sum.Containers < 2 {
		t.Errorf("expected several containers at 128 bytes, got %d", sum.Containers)
	}
	st := sum.Statistics
	if st.ApplicationID != 5 || st.ApplicationMajor != 2 || st.ApplicationMinor != 1 {
		t.Errorf("application = %d %d.%d", st.ApplicationID, st.ApplicationMajor, st.ApplicationMinor)
	}
	if !st.MeasurementStartTime.Time().Equal(start) {
		t.Errorf("measurement start = %v", st.MeasurementStartTime.Time())
	}
	if sum.TypeCounts[object.TypeCANMessage.String()] != 20 {
		t.Errorf("type counts = %v", sum.TypeCounts)
	}
}

func TestDumpLimitAndFilter(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	in := writeLog(t, cfg)

	var buf bytes.Buffer
	if err := dump(&buf, in, cfg, 0, 3, 0, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("printed %d lines, want 3:\n%s", lines, buf.String())
	}

	buf.Reset()
	if err := dump(&buf, in, cfg, 0, 0, object.TypeAppText, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Count(out, "\n") != 1 || !strings.Contains(out, "marker") {
		t.Fatalf("filtered dump:\n%s", out)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "20 ") {
		t.Errorf("index should count skipped objects: %q", out)
	}
}

func TestDumpFromOffset(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	cfg.ContainerSize = 128
	in := writeLog(t, cfg)

	var buf bytes.Buffer
	if err := dump(&buf, in, cfg, 0, 0, 0, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) < 21 {
		t.Fatalf("full dump has %d lines", len(lines))
	}
	pos := strings.Fields(lines[10])[1]
	offset, err := strconv.ParseInt(pos, 10, 64)
	if err != nil || offset == 0 {
		t.Fatalf("position column of %q: %v", lines[10], err)
	}

	buf.Reset()
	if err := dump(&buf, in, cfg, offset, 1, 0, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	fields := strings.Fields(buf.String())
	if len(fields) < 2 || fields[0] != "0" || fields[1] != pos {
		t.Fatalf("dump from %d: %q", offset, buf.String())
	}
	if !strings.Contains(buf.String(), "ID:522") {
		t.Errorf("expected the eleventh CAN message: %q", buf.String())
	}
}

func TestStat(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	in := writeLog(t, cfg)

	var buf bytes.Buffer
	if err := stat(&buf, in, cfg, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"2024-05-02T08:30:00Z", object.TypeAppText.String()} {
		if !strings.Contains(out, want) {
			t.Errorf("stat output missing %q:\n%s", want, out)
		}
	}
	var read string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "objects (read)") {
			read = strings.TrimSpace(strings.TrimPrefix(line, "objects (read)"))
		}
	}
	if read != "21" {
		t.Errorf("objects (read) = %q", read)
	}
	if strings.Contains(out, "objects read (header)") {
		t.Errorf("own files leave the objects read field zero:\n%s", out)
	}
}

func TestStatShowsObjectsReadFromHeader(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	in := writeLog(t, cfg)
	raw, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	// Signature, size, application, API, both file sizes and the object count precede it.
	binary.LittleEndian.PutUint32(raw[36:40], 7)
	if err := os.WriteFile(in, raw, 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := stat(&buf, in, cfg, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(l, "objects read (header)") {
			line = l
		}
	}
	if !strings.HasSuffix(line, " 7") {
		t.Fatalf("objects read line = %q in:\n%s", line, buf.String())
	}
}
