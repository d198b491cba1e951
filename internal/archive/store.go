// Package archive copies closed log files to S3-compatible object storage
// and restores them from there.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gftdcojp/buslog/internal/catalog"
	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/metrics"
	"go.uber.org/zap"
)

// Store uploads and downloads log files.
type Store struct {
	s3     S3API
	bucket string
	cfg    config.ArchiveConfig
	codec  *codec
	logger *zap.Logger
}

// NewStore creates an archive backed by s3api.
func NewStore(s3api S3API, cfg config.ArchiveConfig, logger *zap.Logger) (*Store, error) {
	c, err := newCodec(cfg.Compression == "zstd")
	if err != nil {
		return nil, fmt.Errorf("creating archive codec: %w", err)
	}
	return &Store{
		s3:     s3api,
		bucket: cfg.Bucket,
		cfg:    cfg,
		codec:  c,
		logger: logger,
	}, nil
}

// Key is the object key used for a file name.
func (s *Store) Key(name string) string {
	key := name
	if s.codec.enabled() {
		key += ".zst"
	}
	if s.cfg.Prefix != "" {
		return path.Join(s.cfg.Prefix, key)
	}
	return key
}

// Put uploads the file described by entry and returns its key.
func (s *Store) Put(ctx context.Context, entry catalog.FileEntry) (string, error) {
	raw, err := os.ReadFile(entry.Path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", entry.Path, err)
	}
	key := s.Key(entry.Name)
	body := s.codec.compress(raw)

	metadata := map[string]string{
		"buslog-name":              entry.Name,
		"buslog-object-count":      strconv.FormatUint(entry.ObjectCount, 10),
		"buslog-file-size":         strconv.FormatInt(entry.FileSize, 10),
		"buslog-uncompressed-size": strconv.FormatUint(entry.UncompressedSize, 10),
	}
	if !entry.MeasurementStart.IsZero() {
		metadata["buslog-measurement-start"] = entry.MeasurementStart.UTC().Format(time.RFC3339Nano)
	}

	input := &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/octet-stream"),
		Metadata:    metadata,
	}
	if s.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(s.cfg.StorageClass)
	}

	start := time.Now()
	if _, err := s.s3.PutObject(ctx, input); err != nil {
		metrics.S3UploadErrors.WithLabelValues(errorType(err)).Inc()
		return "", fmt.Errorf("uploading %s to S3: %w", entry.Name, err)
	}
	metrics.S3UploadDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug("file archived",
		zap.String("name", entry.Name),
		zap.String("key", key),
		zap.Int("size", len(raw)),
		zap.Int("stored", len(body)),
	)
	return key, nil
}

// Fetch downloads key into dest, replacing dest atomically.
func (s *Store) Fetch(ctx context.Context, key, dest string) error {
	start := time.Now()
	resp, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("downloading %s from S3: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading S3 response: %w", err)
	}
	raw, err := s.codec.decompress(body)
	if err != nil {
		return fmt.Errorf("decompressing %s: %w", key, err)
	}
	metrics.S3DownloadDuration.Observe(time.Since(start).Seconds())

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Exists reports whether key is present. Errors other than not-found are returned.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err == nil {
		return true, nil
	}
	var nf *s3types.NotFound
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", key, err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("deleting %s from S3: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.codec.close()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "s3"
}
