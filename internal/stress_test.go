//go:build stress

package internal_test

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/event"
	"github.com/gftdcojp/buslog/internal/object"
	"github.com/gftdcojp/buslog/internal/session"
	"go.uber.org/zap"
)

func stressObject(i int) *object.Object {
	if i%10 == 9 {
		o := object.New(object.TypeAppText, &event.AppText{Text: fmt.Sprintf("marker-%d", i)})
		o.SetOffset(time.Duration(i) * time.Microsecond)
		return o
	}
	o := object.New(object.TypeCANMessage, &event.CANMessage{
		Channel: uint16(i % 4),
		DLC:     8,
		ID:      uint32(i),
		Data:    [8]byte{byte(i), byte(i >> 8), byte(i >> 16)},
	})
	o.SetOffset(time.Duration(i) * time.Microsecond)
	return o
}

func stressRoundTrip(t *testing.T, path string, cfg config.SessionConfig, count int) {
	t.Helper()
	w, err := session.Create(path, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < count; i++ {
		if err := w.Write(stressObject(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := session.Open(path, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	i := 0
	for {
		obj, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if obj.Type == object.TypeRestorePointContainer {
			continue
		}
		if obj.Offset() != time.Duration(i)*time.Microsecond {
			t.Fatalf("object %d offset %v", i, obj.Offset())
		}
		if can, ok := obj.Payload.(*event.CANMessage); ok && can.ID != uint32(i) {
			t.Fatalf("object %d has id %d", i, can.ID)
		}
		i++
	}
	if i != count {
		t.Fatalf("read %d objects, want %d", i, count)
	}
}

// TestStress_HighVolumePipelined writes and reads 200,000 objects through
// the background deflate and inflate workers with a tight buffer.
func TestStress_HighVolumePipelined(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	cfg.Pipelined = true
	cfg.ContainerSize = 4096
	cfg.BufferCapacity = 2 * cfg.ContainerSize
	stressRoundTrip(t, filepath.Join(t.TempDir(), "volume.blf"), cfg, 200000)
}

// TestStress_ConcurrentSessions runs many independent sessions at once.
func TestStress_ConcurrentSessions(t *testing.T) {
	dir := t.TempDir()
	for g := 0; g < 16; g++ {
		t.Run(fmt.Sprintf("session-%02d", g), func(t *testing.T) {
			t.Parallel()
			cfg := config.DefaultSessionConfig()
			cfg.Pipelined = g%2 == 0
			cfg.CompressionLevel = g % 10
			cfg.ContainerSize = config.ByteSize(512 * (g + 1))
			cfg.BufferCapacity = 0
			stressRoundTrip(t, filepath.Join(dir, fmt.Sprintf("s%02d.blf", g)), cfg, 20000)
		})
	}
}

// TestStress_ManySmallContainers forces a container per object.
func TestStress_ManySmallContainers(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	cfg.ContainerSize = 1
	cfg.BufferCapacity = 0
	stressRoundTrip(t, filepath.Join(t.TempDir(), "tiny.blf"), cfg, 5000)
}
