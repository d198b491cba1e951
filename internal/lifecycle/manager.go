// Package lifecycle enforces retention on recorded log files, locally and
// in the archive.
package lifecycle

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/gftdcojp/buslog/internal/archive"
	"github.com/gftdcojp/buslog/internal/catalog"
	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/metrics"
	"go.uber.org/zap"
)

// Report counts what one retention cycle did.
type Report struct {
	Orphans        int
	Archived       int
	LocalExpired   int
	ArchiveExpired int
}

// Manager runs retention cycles. Archive may be nil.
type Manager struct {
	catalog catalog.Store
	archive *archive.Store
	cfg     config.RetentionConfig
	logger  *zap.Logger
	now     func() time.Time
}

func NewManager(cat catalog.Store, arch *archive.Store, cfg config.RetentionConfig, logger *zap.Logger) *Manager {
	return &Manager{
		catalog: cat,
		archive: arch,
		cfg:     cfg,
		logger:  logger.Named("retention"),
		now:     time.Now,
	}
}

// Run starts the periodic retention loop.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Cycle(ctx); err != nil {
				m.logger.Error("retention cycle error", zap.Error(err))
			}
		}
	}
}

// Cycle drops catalog entries whose files vanished, uploads files that are
// not archived yet, then expires local and archived copies.
func (m *Manager) Cycle(ctx context.Context) (Report, error) {
	var rep Report
	var err error

	if rep.Orphans, err = CollectOrphans(ctx, m.catalog, m.logger); err != nil {
		return rep, err
	}

	entries, err := m.catalog.ListFiles(ctx)
	if err != nil {
		return rep, err
	}

	now := m.now()
	for i := range entries {
		e := &entries[i]
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		if m.archive != nil && !e.Archived() && !e.LocalDeleted {
			if m.archiveOne(ctx, e) {
				rep.Archived++
			}
		}

		if maxAge := m.cfg.MaxAge.Duration(); maxAge > 0 && !e.LocalDeleted && e.CreatedAt.Before(now.Add(-maxAge)) {
			if m.expireLocal(ctx, e) {
				rep.LocalExpired++
				continue
			}
		}

		if maxAge := m.cfg.ArchiveMaxAge.Duration(); m.archive != nil && maxAge > 0 &&
			e.Archived() && e.LocalDeleted && e.ArchivedAt.Before(now.Add(-maxAge)) {
			if m.expireArchive(ctx, e) {
				rep.ArchiveExpired++
			}
		}
	}

	if rep != (Report{}) {
		m.logger.Info("retention cycle finished",
			zap.Int("orphans", rep.Orphans),
			zap.Int("archived", rep.Archived),
			zap.Int("local_expired", rep.LocalExpired),
			zap.Int("archive_expired", rep.ArchiveExpired),
		)
	}
	return rep, nil
}

func (m *Manager) archiveOne(ctx context.Context, e *catalog.FileEntry) bool {
	key, err := m.archive.Put(ctx, *e)
	if err != nil {
		m.logger.Warn("archive retry failed", zap.String("file", e.Name), zap.Error(err))
		return false
	}
	if err := m.catalog.MarkArchived(ctx, e.Name, key); err != nil {
		m.logger.Error("failed to mark file archived", zap.String("file", e.Name), zap.Error(err))
		return false
	}
	e.ArchiveKey = key
	e.ArchivedAt = m.now()
	return true
}

// expireLocal removes the local copy. An archived file keeps its catalog
// entry; an unarchived one is forgotten, and only when DeleteUnarchived
// allows it and no archive is configured.
func (m *Manager) expireLocal(ctx context.Context, e *catalog.FileEntry) bool {
	switch {
	case e.Archived():
	case m.archive == nil && m.cfg.DeleteUnarchived:
	default:
		return false
	}

	if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Error("failed to remove expired file", zap.String("path", e.Path), zap.Error(err))
		return false
	}

	var err error
	if e.Archived() {
		err = m.catalog.MarkLocalDeleted(ctx, e.Name)
		e.LocalDeleted = true
	} else {
		err = m.catalog.DeleteFile(ctx, e.Name)
	}
	if err != nil {
		m.logger.Error("failed to update catalog for expired file", zap.String("file", e.Name), zap.Error(err))
		return false
	}

	metrics.FilesExpired.WithLabelValues("local").Inc()
	m.logger.Info("expired local file",
		zap.String("file", e.Name),
		zap.Time("created_at", e.CreatedAt),
		zap.Bool("archived", e.Archived()),
	)
	return true
}

// expireArchive deletes the archived copy of a file that has no local copy left.
func (m *Manager) expireArchive(ctx context.Context, e *catalog.FileEntry) bool {
	if err := m.archive.Delete(ctx, e.ArchiveKey); err != nil {
		m.logger.Error("failed to delete archived file", zap.String("key", e.ArchiveKey), zap.Error(err))
		return false
	}
	if err := m.catalog.DeleteFile(ctx, e.Name); err != nil {
		m.logger.Error("failed to delete catalog entry", zap.String("file", e.Name), zap.Error(err))
		return false
	}
	metrics.FilesExpired.WithLabelValues("archive").Inc()
	m.logger.Info("expired archived file",
		zap.String("file", e.Name),
		zap.String("key", e.ArchiveKey),
		zap.Time("archived_at", e.ArchivedAt),
	)
	return true
}
