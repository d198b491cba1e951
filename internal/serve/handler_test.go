package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gftdcojp/buslog/internal/archive"
	"github.com/gftdcojp/buslog/internal/catalog"
	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/event"
	"github.com/gftdcojp/buslog/internal/object"
	"github.com/gftdcojp/buslog/internal/recorder"
	"github.com/gftdcojp/buslog/internal/session"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type fakeRecorder struct{ st recorder.Status }

func (f fakeRecorder) Status() recorder.Status { return f.st }

type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
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

func testSessionConfig() config.SessionConfig {
	cfg := config.DefaultSessionConfig()
	cfg.ContainerSize = 256
	return cfg
}

// recordTestFile writes a log file with five CAN messages and one app text
// and catalogues it under name.
func recordTestFile(t *testing.T, cat catalog.Store, name string) catalog.FileEntry {
	t.Helper()
	cfg := testSessionConfig()
	path := filepath.Join(t.TempDir(), name)
	s, err := session.Create(path, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s.SetMeasurementStart(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	for i := 0; i < 5; i++ {
		o := object.New(object.TypeCANMessage, &event.CANMessage{Channel: 1, DLC: 8, ID: 0x200 + uint32(i)})
		o.SetOffset(time.Duration(i) * time.Millisecond)
		if err := s.Write(o); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Write(object.New(object.TypeAppText, &event.AppText{Text: "trip"})); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	sum, err := session.Scan(path, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	entry := recorder.EntryFromSummary(name, sum)
	if err := cat.RecordFile(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	return entry
}

func do(t *testing.T, h http.Handler, method, target string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decoding %q: %v", method, target, w.Body.String(), err)
		}
	}
	return w.Code
}

func TestStatus(t *testing.T) {
	cat := newTestCatalog(t)
	recordTestFile(t, cat, "a.blf")
	recordTestFile(t, cat, "b.blf")
	h := NewHandler(Deps{
		Catalog:  cat,
		Recorder: fakeRecorder{recorder.Status{Stream: "BUS", CurrentFile: "c.blf", CurrentObjects: 3}},
		Session:  testSessionConfig(),
	})

	var st Status
	if code := do(t, h, "GET", "/v1/status", &st); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if st.Status != "ok" || st.Files != 2 || st.Objects != 12 || st.Archive {
		t.Errorf("status = %+v", st)
	}
	if st.Recorder == nil || st.Recorder.CurrentFile != "c.blf" {
		t.Errorf("recorder status = %+v", st.Recorder)
	}
}

func TestListAndGetFiles(t *testing.T) {
	cat := newTestCatalog(t)
	entry := recordTestFile(t, cat, "a.blf")
	h := NewHandler(Deps{Catalog: cat, Session: testSessionConfig()})

	var files []FileInfo
	if code := do(t, h, "GET", "/v1/files", &files); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(files) != 1 || files[0].Name != "a.blf" || files[0].ObjectCount != 6 {
		t.Fatalf("files = %+v", files)
	}
	if files[0].TypeCounts["CAN_MESSAGE"] != 5 || files[0].FileSize != entry.FileSize {
		t.Errorf("file = %+v", files[0])
	}

	files = nil
	do(t, h, "GET", "/v1/files?from=2024-03-01T00:00:00Z&to=2024-03-02T00:00:00Z", &files)
	if len(files) != 1 {
		t.Errorf("range query returned %d files", len(files))
	}
	files = nil
	do(t, h, "GET", "/v1/files?from=2025-01-01T00:00:00Z", &files)
	if len(files) != 0 {
		t.Errorf("later range returned %d files", len(files))
	}
	if code := do(t, h, "GET", "/v1/files?from=yesterday", nil); code != http.StatusBadRequest {
		t.Errorf("bad range: expected 400, got %d", code)
	}

	var fi FileInfo
	if code := do(t, h, "GET", "/v1/files/a.blf", &fi); code != http.StatusOK || fi.Name != "a.blf" {
		t.Fatalf("get: %d %+v", code, fi)
	}
	if !fi.MeasurementStart.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("measurement start = %v", fi.MeasurementStart)
	}
	if code := do(t, h, "GET", "/v1/files/missing.blf", nil); code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", code)
	}
}

func TestObjects(t *testing.T) {
	cat := newTestCatalog(t)
	recordTestFile(t, cat, "a.blf")
	h := NewHandler(Deps{Catalog: cat, Session: testSessionConfig()})

	var objs []ObjectInfo
	if code := do(t, h, "GET", "/v1/files/a.blf/objects?limit=2", &objs); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(objs) != 2 || objs[0].Type != "CAN_MESSAGE" || objs[1].Index != 1 {
		t.Fatalf("objects = %+v", objs)
	}
	if objs[1].OffsetNanos == nil || *objs[1].OffsetNanos != int64(time.Millisecond) {
		t.Errorf("offset = %v", objs[1].OffsetNanos)
	}
	payload, _ := objs[0].Payload.(map[string]any)
	if payload["ID"] != float64(0x200) {
		t.Errorf("payload = %v", objs[0].Payload)
	}

	objs = nil
	do(t, h, "GET", "/v1/files/a.blf/objects", &objs)
	if len(objs) != 6 || objs[5].Type != "APP_TEXT" {
		t.Errorf("all objects = %d, last %+v", len(objs), objs[len(objs)-1])
	}

	if code := do(t, h, "GET", "/v1/files/a.blf/objects?limit=-1", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", code)
	}

	cat.MarkLocalDeleted(context.Background(), "a.blf")
	if code := do(t, h, "GET", "/v1/files/a.blf/objects", nil); code != http.StatusGone {
		t.Errorf("deleted file: expected 410, got %d", code)
	}
}

func TestObjectsResumeAtOffset(t *testing.T) {
	cat := newTestCatalog(t)
	entry := recordTestFile(t, cat, "a.blf")
	if len(entry.ContainerIndex) == 0 {
		t.Fatal("catalog entry carries no container index")
	}
	h := NewHandler(Deps{Catalog: cat, Session: testSessionConfig()})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/v1/files/a.blf/objects?limit=4", nil))
	var first []ObjectInfo
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil || len(first) != 4 {
		t.Fatalf("first page: %d objects, %v", len(first), err)
	}
	next := w.Header().Get(nextOffsetHeader)
	if next == "" || next == "0" {
		t.Fatalf("next offset = %q", next)
	}

	var rest []ObjectInfo
	if code := do(t, h, "GET", "/v1/files/a.blf/objects?offset="+next, &rest); code != http.StatusOK {
		t.Fatalf("second page: %d", code)
	}
	if len(rest) != 2 || rest[1].Type != "APP_TEXT" {
		t.Fatalf("second page = %+v", rest)
	}
	if p, _ := rest[0].Payload.(map[string]any); p["ID"] != float64(0x204) {
		t.Errorf("second page starts at %v", rest[0].Payload)
	}
	if strconv.FormatInt(rest[0].Position, 10) != next {
		t.Errorf("position %d, resumed at %s", rest[0].Position, next)
	}

	var again []ObjectInfo
	do(t, h, "GET", "/v1/files/a.blf/objects?limit=1&offset="+strconv.FormatInt(first[2].Position, 10), &again)
	if len(again) != 1 || again[0].Position != first[2].Position {
		t.Fatalf("re-read = %+v", again)
	}
	if p, _ := again[0].Payload.(map[string]any); p["ID"] != float64(0x202) {
		t.Errorf("re-read payload = %v", again[0].Payload)
	}

	if code := do(t, h, "GET", "/v1/files/a.blf/objects?offset=-3", nil); code != http.StatusBadRequest {
		t.Errorf("bad offset: expected 400, got %d", code)
	}
}

func TestArchiveOnRequest(t *testing.T) {
	cat := newTestCatalog(t)
	recordTestFile(t, cat, "a.blf")

	if code := do(t, NewHandler(Deps{Catalog: cat}), "POST", "/v1/admin/archive/a.blf", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("archive disabled: expected 503, got %d", code)
	}

	mock := &memS3{objects: make(map[string][]byte)}
	arch, err := archive.NewStore(mock, config.ArchiveConfig{Bucket: "rec", Prefix: "cars"}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer arch.Close()
	h := NewHandler(Deps{Catalog: cat, Archive: arch})

	var resp map[string]string
	if code := do(t, h, "POST", "/v1/admin/archive/a.blf", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["key"] != "cars/a.blf" || len(mock.objects["cars/a.blf"]) == 0 {
		t.Fatalf("resp = %v", resp)
	}
	entry, _ := cat.GetFile(context.Background(), "a.blf")
	if !entry.Archived() || entry.ArchivedAt.IsZero() {
		t.Errorf("entry not marked archived: %+v", entry)
	}

	// Archiving again reports the existing key without uploading.
	delete(mock.objects, "cars/a.blf")
	resp = nil
	do(t, h, "POST", "/v1/admin/archive/a.blf", &resp)
	if resp["key"] != "cars/a.blf" || len(mock.objects) != 0 {
		t.Errorf("second archive: %v, objects %d", resp, len(mock.objects))
	}

	if code := do(t, h, "POST", "/v1/admin/archive/missing.blf", nil); code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", code)
	}
}

func TestNATSResponder(t *testing.T) {
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatal(err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats-server failed to start")
	}
	defer ns.Shutdown()

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	cat := newTestCatalog(t)
	recordTestFile(t, cat, "a.blf")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunNATSResponder(ctx, nc, "bl", cat, zap.NewNop()) }()

	var msg *nats.Msg
	for i := 0; i < 50; i++ {
		msg, err = nc.Request("bl.files.get", []byte("a.blf"), 200*time.Millisecond)
		if err == nil {
			break
		}
	}
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var fi FileInfo
	json.Unmarshal(msg.Data, &fi)
	if fi.Name != "a.blf" || fi.ObjectCount != 6 {
		t.Errorf("get reply = %s", msg.Data)
	}

	msg, err = nc.Request("bl.files.list", nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	var files []FileInfo
	json.Unmarshal(msg.Data, &files)
	if len(files) != 1 {
		t.Errorf("list reply = %s", msg.Data)
	}

	msg, err = nc.Request("bl.files.get", []byte("nope.blf"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(msg.Data, []byte("file not found")) {
		t.Errorf("missing reply = %s", msg.Data)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
