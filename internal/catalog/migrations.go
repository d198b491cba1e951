package catalog

import (
	"fmt"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Migrate runs any pending schema migrations.
func (s *BoltStore) Migrate() error {
	var version uint64
	s.db.View(func(tx *bbolt.Tx) error {
		sys := tx.Bucket(bucketSystem)
		if sys == nil {
			return nil
		}
		if v := sys.Get(keySchemaVersion); v != nil {
			version = bytesToUint64(v)
		}
		return nil
	})

	if version < 2 {
		if err := s.migrateV1toV2(); err != nil {
			return fmt.Errorf("migration v1→v2: %w", err)
		}
	}
	return nil
}

// migrateV1toV2 builds the measurement start index from existing entries.
func (s *BoltStore) migrateV1toV2() error {
	var indexed int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		timeIdx, err := tx.CreateBucketIfNotExists(bucketTimeIndex)
		if err != nil {
			return err
		}
		if files := tx.Bucket(bucketFiles); files != nil {
			err := files.ForEach(func(k, v []byte) error {
				entry, err := decodeFileEntry(v)
				if err != nil {
					return err
				}
				indexed++
				return timeIdx.Put(timeKey(entry.MeasurementStart, entry.Name), k)
			})
			if err != nil {
				return err
			}
		}

		sys := tx.Bucket(bucketSystem)
		if sys == nil {
			return fmt.Errorf("system bucket not found")
		}
		return sys.Put(keySchemaVersion, uint64ToBytes(2))
	})
	if err == nil {
		s.logger.Info("catalog migrated to schema v2", zap.Int("indexed_files", indexed))
	}
	return err
}
