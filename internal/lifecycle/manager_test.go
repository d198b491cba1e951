package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gftdcojp/buslog/internal/archive"
	"github.com/gftdcojp/buslog/internal/catalog"
	"github.com/gftdcojp/buslog/internal/config"
	"go.uber.org/zap"
)

type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (m *memS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, _ := io.ReadAll(params.Body)
	m.mu.Lock()
	m.objects[*params.Key] = data
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	data, ok := m.objects[*params.Key]
	m.mu.Unlock()
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, *params.Key)
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{}, nil
}

func newTestCatalog(t *testing.T) *catalog.BoltStore {
	t.Helper()
	store, err := catalog.NewBoltStore(config.CatalogConfig{Path: filepath.Join(t.TempDir(), "catalog.db")}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestArchive(t *testing.T) (*archive.Store, *memS3) {
	t.Helper()
	mock := &memS3{objects: make(map[string][]byte)}
	arch, err := archive.NewStore(mock, config.ArchiveConfig{Bucket: "rec"}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { arch.Close() })
	return arch, mock
}

// addFile writes a local file and catalogues it as created age ago.
func addFile(t *testing.T, cat catalog.Store, dir, name string, age time.Duration) catalog.FileEntry {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("LOGG"+name), 0644); err != nil {
		t.Fatal(err)
	}
	e := catalog.FileEntry{
		Name:      name,
		Path:      path,
		FileSize:  int64(4 + len(name)),
		CreatedAt: time.Now().Add(-age),
	}
	if err := cat.RecordFile(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestCycleArchivesBacklogAndExpiresLocal(t *testing.T) {
	cat := newTestCatalog(t)
	arch, mock := newTestArchive(t)
	dir := t.TempDir()
	old := addFile(t, cat, dir, "old.blf", 3*time.Hour)
	fresh := addFile(t, cat, dir, "fresh.blf", time.Minute)

	m := NewManager(cat, arch, config.RetentionConfig{MaxAge: config.Duration(time.Hour)}, zap.NewNop())
	rep, err := m.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Archived != 2 || rep.LocalExpired != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if len(mock.objects) != 2 {
		t.Errorf("uploaded %d objects", len(mock.objects))
	}

	if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
		t.Error("expired local file should be removed")
	}
	e, err := cat.GetFile(context.Background(), "old.blf")
	if err != nil {
		t.Fatal(err)
	}
	if !e.LocalDeleted || !e.Archived() {
		t.Errorf("old entry = %+v", e)
	}
	if _, err := os.Stat(fresh.Path); err != nil {
		t.Errorf("fresh file should be kept: %v", err)
	}
}

func TestCycleKeepsUnarchivedWhenUploadFails(t *testing.T) {
	cat := newTestCatalog(t)
	arch, mock := newTestArchive(t)
	mock.putErr = errors.New("bucket unavailable")
	e := addFile(t, cat, t.TempDir(), "old.blf", 3*time.Hour)

	m := NewManager(cat, arch, config.RetentionConfig{MaxAge: config.Duration(time.Hour), DeleteUnarchived: true}, zap.NewNop())
	rep, err := m.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep != (Report{}) {
		t.Fatalf("report = %+v", rep)
	}
	if _, err := os.Stat(e.Path); err != nil {
		t.Fatalf("unarchived file must survive while an archive is configured: %v", err)
	}
}

func TestCycleDeleteUnarchivedWithoutArchive(t *testing.T) {
	cat := newTestCatalog(t)
	dir := t.TempDir()
	e := addFile(t, cat, dir, "old.blf", 3*time.Hour)

	keep := NewManager(cat, nil, config.RetentionConfig{MaxAge: config.Duration(time.Hour)}, zap.NewNop())
	if rep, _ := keep.Cycle(context.Background()); rep.LocalExpired != 0 {
		t.Fatalf("file expired without delete_unarchived: %+v", rep)
	}

	m := NewManager(cat, nil, config.RetentionConfig{MaxAge: config.Duration(time.Hour), DeleteUnarchived: true}, zap.NewNop())
	rep, err := m.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.LocalExpired != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if _, err := os.Stat(e.Path); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}
	if _, err := cat.GetFile(context.Background(), "old.blf"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("catalog entry should be dropped, got %v", err)
	}
}

func TestCycleExpiresArchive(t *testing.T) {
	cat := newTestCatalog(t)
	arch, mock := newTestArchive(t)
	addFile(t, cat, t.TempDir(), "old.blf", 3*time.Hour)

	m := NewManager(cat, arch, config.RetentionConfig{
		MaxAge:        config.Duration(time.Hour),
		ArchiveMaxAge: config.Duration(24 * time.Hour),
	}, zap.NewNop())

	// First cycle uploads and drops the local copy.
	if rep, err := m.Cycle(context.Background()); err != nil || rep.LocalExpired != 1 {
		t.Fatalf("first cycle: %+v, %v", rep, err)
	}
	if len(mock.objects) != 1 {
		t.Fatalf("expected one archived object, got %d", len(mock.objects))
	}

	m.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	rep, err := m.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.ArchiveExpired != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if len(mock.objects) != 0 {
		t.Error("archived object should be deleted")
	}
	if _, err := cat.GetFile(context.Background(), "old.blf"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("catalog entry should be dropped, got %v", err)
	}
}

func TestCollectOrphans(t *testing.T) {
	cat := newTestCatalog(t)
	dir := t.TempDir()
	ctx := context.Background()
	gone := addFile(t, cat, dir, "gone.blf", 0)
	archived := addFile(t, cat, dir, "archived.blf", 0)
	addFile(t, cat, dir, "present.blf", 0)
	cat.MarkArchived(ctx, "archived.blf", "archived.blf")
	os.Remove(gone.Path)
	os.Remove(archived.Path)

	n, err := CollectOrphans(ctx, cat, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("collected %d, want 2", n)
	}
	if _, err := cat.GetFile(ctx, "gone.blf"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("unarchived orphan should be dropped, got %v", err)
	}
	e, err := cat.GetFile(ctx, "archived.blf")
	if err != nil || !e.LocalDeleted {
		t.Errorf("archived orphan = %+v, %v", e, err)
	}
	if _, err := cat.GetFile(ctx, "present.blf"); err != nil {
		t.Errorf("present file: %v", err)
	}
}

func TestRunCancelStops(t *testing.T) {
	m := NewManager(newTestCatalog(t), nil, config.RetentionConfig{Interval: config.Duration(10 * time.Millisecond)}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
