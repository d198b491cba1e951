package serve

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gftdcojp/buslog/internal/archive"
	"github.com/gftdcojp/buslog/internal/block"
	"github.com/gftdcojp/buslog/internal/catalog"
	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/object"
	"github.com/gftdcojp/buslog/internal/recorder"
	"github.com/gftdcojp/buslog/internal/session"
	"go.uber.org/zap"
)

const (
	defaultObjectLimit = 100
	maxObjectLimit     = 10000

	// nextOffsetHeader carries the ?offset= that continues an objects listing.
	nextOffsetHeader = "X-Next-Offset"
)

// StatusSource reports the recording in progress.
type StatusSource interface {
	Status() recorder.Status
}

// Deps are the components the API reads from. Recorder and Archive may be nil.
type Deps struct {
	Catalog  catalog.Store
	Archive  *archive.Store
	Recorder StatusSource
	Session  config.SessionConfig
	Logger   *zap.Logger
}

type handler struct {
	catalog  catalog.Store
	archive  *archive.Store
	recorder StatusSource
	sessCfg  config.SessionConfig
	logger   *zap.Logger
}

// NewHandler returns the HTTP API routes.
func NewHandler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		catalog:  d.Catalog,
		archive:  d.Archive,
		recorder: d.Recorder,
		sessCfg:  d.Session,
		logger:   logger.Named("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", h.handleStatus)
	mux.HandleFunc("GET /v1/files", h.handleListFiles)
	mux.HandleFunc("GET /v1/files/{name}", h.handleGetFile)
	mux.HandleFunc("GET /v1/files/{name}/objects", h.handleObjects)
	mux.HandleFunc("POST /v1/admin/archive/{name}", h.handleArchive)
	return mux
}

// RunHTTP starts the HTTP API server.
func RunHTTP(ctx context.Context, cfg config.APIConfig, d Deps) error {
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: NewHandler(d),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if d.Logger != nil {
		d.Logger.Info("HTTP API listening", zap.String("addr", cfg.Listen))
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	files, err := h.catalog.ListFiles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	st := Status{
		Status:  "ok",
		Files:   len(files),
		Archive: h.archive != nil,
	}
	for _, f := range files {
		st.Objects += f.ObjectCount
		if !f.LocalDeleted {
			st.LocalBytes += f.FileSize
		}
		if f.Archived() {
			st.ArchivedFiles++
		}
	}
	if h.recorder != nil {
		rs := h.recorder.Status()
		st.Recorder = &rs
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	var (
		entries []catalog.FileEntry
		err     error
	)
	q := r.URL.Query()
	if q.Has("from") || q.Has("to") {
		from, to, perr := parseRange(q.Get("from"), q.Get("to"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr)
			return
		}
		entries, err = h.catalog.ListByTimeRange(r.Context(), from, to)
	} else {
		entries, err = h.catalog.ListFiles(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	result := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		result = append(result, fileInfo(e))
	}
	writeJSON(w, http.StatusOK, result)
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			return from, to, errors.New("invalid from: want RFC 3339")
		}
	}
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return from, to, errors.New("invalid to: want RFC 3339")
		}
	} else {
		to = time.Now()
	}
	return from, to, nil
}

func (h *handler) lookup(w http.ResponseWriter, r *http.Request) (*catalog.FileEntry, bool) {
	entry, err := h.catalog.GetFile(r.Context(), r.PathValue("name"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return entry, true
}

func (h *handler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, fileInfo(*entry))
}

func (h *handler) handleObjects(w http.ResponseWriter, r *http.Request) {
	limit := defaultObjectLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = min(n, maxObjectLimit)
	}
	var offset int64
	if s := r.URL.Query().Get("offset"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		offset = n
	}

	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if entry.LocalDeleted {
		writeJSON(w, http.StatusGone, map[string]string{"error": "file only exists in the archive"})
		return
	}

	s, err := session.Open(entry.Path, h.sessCfg, h.logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer s.Close()
	if offset > 0 {
		if idx, err := block.DecodeIndex(entry.ContainerIndex); err != nil {
			h.logger.Warn("ignoring stored container index", zap.String("file", entry.Name), zap.Error(err))
		} else {
			s.LoadIndex(*idx)
		}
		if err := s.Seek(offset); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	objects := make([]ObjectInfo, 0, min(limit, int(entry.ObjectCount)))
	for len(objects) < limit {
		if err := r.Context().Err(); err != nil {
			return
		}
		obj, err := s.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if obj.Type == object.TypeRestorePointContainer {
			continue
		}
		objects = append(objects, objectInfo(len(objects), s.Position(), obj))
	}
	w.Header().Set(nextOffsetHeader, strconv.FormatInt(s.Tell(), 10))
	writeJSON(w, http.StatusOK, objects)
}

func (h *handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive is not enabled"})
		return
	}
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if entry.Archived() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "archived", "key": entry.ArchiveKey})
		return
	}
	if entry.LocalDeleted {
		writeJSON(w, http.StatusGone, map[string]string{"error": "local copy was deleted"})
		return
	}

	key, err := h.archive.Put(r.Context(), *entry)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if err := h.catalog.MarkArchived(r.Context(), entry.Name, key); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.logger.Info("file archived on request", zap.String("file", entry.Name), zap.String("key", key))
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived", "key": key})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
