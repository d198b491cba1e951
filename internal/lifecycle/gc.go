package lifecycle

import (
	"context"
	"errors"
	"os"

	"github.com/gftdcojp/buslog/internal/catalog"
	"go.uber.org/zap"
)

// CollectOrphans reconciles catalog entries whose local file is gone, for
// example after an operator removed it by hand. Archived entries are marked
// as local-deleted; entries with no copy anywhere are dropped.
func CollectOrphans(ctx context.Context, cat catalog.Store, logger *zap.Logger) (int, error) {
	entries, err := cat.ListFiles(ctx)
	if err != nil {
		return 0, err
	}

	collected := 0
	for _, e := range entries {
		if e.LocalDeleted {
			continue
		}
		_, err := os.Stat(e.Path)
		if err == nil {
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("error checking file existence", zap.String("path", e.Path), zap.Error(err))
			continue
		}

		logger.Warn("catalogued file missing on disk",
			zap.String("file", e.Name),
			zap.String("path", e.Path),
			zap.Bool("archived", e.Archived()),
		)
		if e.Archived() {
			err = cat.MarkLocalDeleted(ctx, e.Name)
		} else {
			err = cat.DeleteFile(ctx, e.Name)
		}
		if err != nil {
			logger.Error("failed to clean up orphan entry", zap.String("file", e.Name), zap.Error(err))
			continue
		}
		collected++
	}

	return collected, nil
}
