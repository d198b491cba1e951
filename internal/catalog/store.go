// Package catalog keeps a durable record of every log file the recorder
// has written or that was imported, together with its archive state.
package catalog

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/gftdcojp/buslog/internal/config"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("catalog: file not found")

// Store provides durable metadata for recorded log files.
type Store interface {
	RecordFile(ctx context.Context, entry FileEntry) error
	GetFile(ctx context.Context, name string) (*FileEntry, error)
	ListFiles(ctx context.Context) ([]FileEntry, error)
	ListByTimeRange(ctx context.Context, start, end time.Time) ([]FileEntry, error)
	MarkArchived(ctx context.Context, name, key string) error
	MarkLocalDeleted(ctx context.Context, name string) error
	DeleteFile(ctx context.Context, name string) error
	GetConsumerState(ctx context.Context, stream string) (uint64, error)
	SetConsumerState(ctx context.Context, stream string, seq uint64) error

	Ping() error
	Close() error
}

// BoltStore implements Store using bbolt (BoltDB).
type BoltStore struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewBoltStore opens or creates the catalog database.
func NewBoltStore(cfg config.CatalogConfig, logger *zap.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(cfg.Path, 0600, &bbolt.Options{Timeout: 5 * time.Second, NoSync: cfg.NoSync})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	s := &BoltStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) initSchema() error {
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		sys, err := tx.CreateBucketIfNotExists(bucketSystem)
		if err != nil {
			return err
		}
		for _, name := range [][]byte{bucketFiles, bucketConsumers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		if sys.Get(keySchemaVersion) == nil {
			if _, err := tx.CreateBucketIfNotExists(bucketTimeIndex); err != nil {
				return err
			}
			return sys.Put(keySchemaVersion, uint64ToBytes(currentSchemaVersion))
		}
		return nil
	}); err != nil {
		return err
	}
	return s.Migrate()
}

func encodeFileEntry(entry *FileEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFileEntry(data []byte) (*FileEntry, error) {
	var entry FileEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// RecordFile inserts or replaces the entry for entry.Name.
func (s *BoltStore) RecordFile(_ context.Context, entry FileEntry) error {
	if entry.Name == "" {
		return fmt.Errorf("catalog: file entry without name")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		timeIdx := tx.Bucket(bucketTimeIndex)

		// Drop the index entry of a previous version of this file.
		if raw := files.Get([]byte(entry.Name)); raw != nil {
			old, err := decodeFileEntry(raw)
			if err != nil {
				return err
			}
			if err := timeIdx.Delete(timeKey(old.MeasurementStart, old.Name)); err != nil {
				return err
			}
		}

		data, err := encodeFileEntry(&entry)
		if err != nil {
			return err
		}
		if err := files.Put([]byte(entry.Name), data); err != nil {
			return err
		}
		return timeIdx.Put(timeKey(entry.MeasurementStart, entry.Name), []byte(entry.Name))
	})
}

func (s *BoltStore) GetFile(_ context.Context, name string) (*FileEntry, error) {
	var entry *FileEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketFiles).Get([]byte(name))
		if raw == nil {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		var err error
		entry, err = decodeFileEntry(raw)
		return err
	})
	return entry, err
}

// ListFiles returns all entries ordered by name.
func (s *BoltStore) ListFiles(_ context.Context) ([]FileEntry, error) {
	var entries []FileEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			entry, err := decodeFileEntry(v)
			if err != nil {
				return err
			}
			entries = append(entries, *entry)
			return nil
		})
	})
	return entries, err
}

// ListByTimeRange returns entries whose measurement started within
// [start, end], ordered by measurement start.
func (s *BoltStore) ListByTimeRange(_ context.Context, start, end time.Time) ([]FileEntry, error) {
	var entries []FileEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		c := tx.Bucket(bucketTimeIndex).Cursor()

		for k, v := c.Seek(timeKey(start, "")); k != nil; k, v = c.Next() {
			raw := files.Get(v)
			if raw == nil {
				continue
			}
			entry, err := decodeFileEntry(raw)
			if err != nil {
				return err
			}
			if entry.MeasurementStart.After(end) {
				break
			}
			entries = append(entries, *entry)
		}
		return nil
	})
	return entries, err
}

func (s *BoltStore) update(name string, fn func(*FileEntry)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		raw := files.Get([]byte(name))
		if raw == nil {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		entry, err := decodeFileEntry(raw)
		if err != nil {
			return err
		}
		fn(entry)
		data, err := encodeFileEntry(entry)
		if err != nil {
			return err
		}
		return files.Put([]byte(name), data)
	})
}

func (s *BoltStore) MarkArchived(_ context.Context, name, key string) error {
	return s.update(name, func(e *FileEntry) {
		e.ArchiveKey = key
		e.ArchivedAt = time.Now()
	})
}

func (s *BoltStore) MarkLocalDeleted(_ context.Context, name string) error {
	return s.update(name, func(e *FileEntry) {
		e.LocalDeleted = true
	})
}

func (s *BoltStore) DeleteFile(_ context.Context, name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		raw := files.Get([]byte(name))
		if raw == nil {
			return nil
		}
		entry, err := decodeFileEntry(raw)
		if err != nil {
			return err
		}
		if err := files.Delete([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketTimeIndex).Delete(timeKey(entry.MeasurementStart, entry.Name))
	})
}

// GetConsumerState returns the last stream sequence persisted for stream.
func (s *BoltStore) GetConsumerState(_ context.Context, stream string) (uint64, error) {
	var seq uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketConsumers).Get([]byte(stream)); v != nil {
			seq = bytesToUint64(v)
		}
		return nil
	})
	return seq, err
}

func (s *BoltStore) SetConsumerState(_ context.Context, stream string, seq uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConsumers).Put([]byte(stream), uint64ToBytes(seq))
	})
}

func (s *BoltStore) Ping() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketSystem) == nil {
			return fmt.Errorf("catalog: system bucket missing")
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
