// Package recorder consumes encoded bus objects from a JetStream stream and
// writes them into rotating log files that are catalogued and archived.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gftdcojp/buslog/internal/archive"
	"github.com/gftdcojp/buslog/internal/catalog"
	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/event"
	"github.com/gftdcojp/buslog/internal/metrics"
	"github.com/gftdcojp/buslog/internal/object"
	"github.com/gftdcojp/buslog/internal/session"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// partialSuffix marks a recording that is still being written.
const partialSuffix = ".part"

var ErrUnsupportedObject = errors.New("recorder: object type cannot be recorded")

// Config holds the dependencies of a Recorder. Archive may be nil.
type Config struct {
	JS       jetstream.JetStream
	Catalog  catalog.Store
	Archive  *archive.Store
	Recorder config.RecorderConfig
	Session  config.SessionConfig
	Logger   *zap.Logger
}

// Status is a snapshot of the recorder for the API.
type Status struct {
	Stream         string    `json:"stream"`
	CurrentFile    string    `json:"current_file,omitempty"`
	CurrentObjects uint32    `json:"current_objects"`
	CurrentBytes   int64     `json:"current_bytes"`
	OpenedAt       time.Time `json:"opened_at,omitempty"`
	LastSeq        uint64    `json:"last_seq"`
	FilesRotated   uint64    `json:"files_rotated"`
}

// Recorder writes every message of one stream into log files.
type Recorder struct {
	js      jetstream.JetStream
	catalog catalog.Store
	archive *archive.Store
	cfg     config.RecorderConfig
	sessCfg config.SessionConfig
	logger  *zap.Logger
	decoder *object.Decoder

	mu       sync.Mutex
	sess     *session.Session
	name     string
	openedAt time.Time
	wallOpen time.Time
	bytes    int64
	firstSeq uint64
	lastSeq  uint64
	lastMsg  jetstream.Msg
	rotated  uint64
}

// New creates a recorder. Run starts consuming.
func New(cfg Config) *Recorder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("recorder").With(zap.String("stream", cfg.Recorder.Stream))
	return &Recorder{
		js:      cfg.JS,
		catalog: cfg.Catalog,
		archive: cfg.Archive,
		cfg:     cfg.Recorder,
		sessCfg: cfg.Session,
		logger:  logger,
		decoder: event.NewDecoder(logger),
	}
}

// Run consumes the stream until ctx is done, then closes the current
// recording so that every written object ends up in a catalogued file.
func (r *Recorder) Run(ctx context.Context) error {
	if err := os.MkdirAll(r.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	r.removePartials()

	lastSeq, err := r.catalog.GetConsumerState(ctx, r.cfg.Stream)
	if err != nil {
		return fmt.Errorf("loading consumer state: %w", err)
	}
	if lastSeq > 0 {
		r.logger.Info("resuming after last recorded sequence", zap.Uint64("seq", lastSeq))
	}
	r.lastSeq = lastSeq

	cons, err := r.js.CreateOrUpdateConsumer(ctx, r.cfg.Stream, r.consumerConfig())
	if err != nil {
		return fmt.Errorf("creating consumer %s on stream %s: %w", r.cfg.ConsumerName, r.cfg.Stream, err)
	}

	fetchTimeout := r.cfg.FetchTimeout.Duration()
	if fetchTimeout == 0 {
		fetchTimeout = 5 * time.Second
	}
	batchSize := r.cfg.FetchBatch
	if batchSize == 0 {
		batchSize = 256
	}

	r.logger.Info("recorder started",
		zap.String("consumer", r.cfg.ConsumerName),
		zap.String("output_dir", r.cfg.OutputDir),
		zap.Int("fetch_batch", batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			return r.Flush(context.Background())
		default:
		}

		msgs, err := cons.Fetch(batchSize, jetstream.FetchMaxWait(fetchTimeout))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return r.Flush(context.Background())
			}
			r.logger.Warn("fetch error, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for msg := range msgs.Messages() {
			if err := r.handle(ctx, msg); err != nil {
				return err
			}
		}
		if err := msgs.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
			r.logger.Warn("batch error", zap.Error(err))
		}

		if err := r.rotateIfAged(ctx); err != nil {
			return err
		}
	}
}

func (r *Recorder) consumerConfig() jetstream.ConsumerConfig {
	ackWait := 5 * time.Minute
	if age := r.cfg.RotateAge.Duration(); age > 0 {
		ackWait = 2*age + time.Minute
	}
	cfg := jetstream.ConsumerConfig{
		Durable:       r.cfg.ConsumerName,
		AckPolicy:     jetstream.AckAllPolicy,
		AckWait:       ackWait,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxAckPending: -1,
	}
	if len(r.cfg.Subjects) > 0 {
		cfg.FilterSubjects = r.cfg.Subjects
	}
	return cfg
}

// handle writes one message into the current recording. Only session
// failures are returned; undecodable messages are terminated and counted.
func (r *Recorder) handle(ctx context.Context, msg jetstream.Msg) error {
	md, err := msg.Metadata()
	if err != nil {
		r.logger.Warn("failed to get message metadata", zap.Error(err))
		return nil
	}
	seq := md.Sequence.Stream

	r.mu.Lock()
	defer r.mu.Unlock()

	// Redelivery of a message that is already in a file.
	if seq <= r.lastSeq {
		if r.sess == nil {
			msg.Ack()
		}
		return nil
	}

	obj, err := r.decode(msg.Data())
	if err != nil {
		metrics.RecorderDecodeErrors.WithLabelValues(r.cfg.Stream).Inc()
		r.logger.Warn("dropping undecodable message",
			zap.Uint64("seq", seq),
			zap.String("subject", msg.Subject()),
			zap.Error(err),
		)
		msg.Term()
		return nil
	}

	if r.sess == nil {
		if err := r.open(md.Timestamp, seq); err != nil {
			return err
		}
	}
	if obj.Layout() != object.LayoutBase {
		obj.SetOffset(max(md.Timestamp.Sub(r.openedAt), 0))
	}
	if err := r.sess.Write(obj); err != nil {
		return fmt.Errorf("writing seq %d to %s: %w", seq, r.name, err)
	}
	r.bytes += int64(obj.FrameSize())
	r.lastSeq = seq
	r.lastMsg = msg
	metrics.RecordedObjects.WithLabelValues(r.cfg.Stream).Inc()

	if reason := r.rotateReason(); reason != "" {
		return r.rotate(ctx, reason)
	}
	return nil
}

// decode parses one object frame. Unknown tags and nested containers are rejected.
func (r *Recorder) decode(data []byte) (*object.Object, error) {
	obj, err := r.decoder.Decode(data)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: unknown type", ErrUnsupportedObject)
	}
	if obj.Type == object.TypeLogContainer {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedObject, obj.Type)
	}
	return obj, nil
}

func (r *Recorder) rotateReason() string {
	switch {
	case r.cfg.RotateObjects > 0 && r.sess.ObjectCount() >= r.cfg.RotateObjects:
		return "objects"
	case r.cfg.RotateSize > 0 && r.bytes >= int64(r.cfg.RotateSize):
		return "size"
	}
	return ""
}

func (r *Recorder) rotateIfAged(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	age := r.cfg.RotateAge.Duration()
	if r.sess == nil || age <= 0 || time.Since(r.wallOpen) < age {
		return nil
	}
	return r.rotate(ctx, "age")
}

// open starts a new recording whose measurement starts at the first message.
func (r *Recorder) open(start time.Time, seq uint64) error {
	start = start.UTC().Truncate(time.Millisecond)
	name := fmt.Sprintf("%s_%s_%d.blf", r.cfg.FilePrefix, start.Format("20060102T150405Z"), seq)
	path := filepath.Join(r.cfg.OutputDir, name)
	sess, err := session.Create(path+partialSuffix, r.sessCfg, r.logger)
	if err != nil {
		return fmt.Errorf("creating recording %s: %w", name, err)
	}
	sess.SetMeasurementStart(start)

	r.sess = sess
	r.name = name
	r.openedAt = start
	r.wallOpen = time.Now()
	r.bytes = 0
	r.firstSeq = seq
	r.logger.Info("recording opened", zap.String("file", name), zap.Uint64("first_seq", seq))
	return nil
}

// rotate closes the current recording, catalogues and archives it, and
// acknowledges every message it holds. Must hold r.mu.
func (r *Recorder) rotate(ctx context.Context, reason string) error {
	if r.sess == nil {
		return nil
	}
	start := time.Now()
	sess, name := r.sess, r.name
	r.sess = nil

	path := filepath.Join(r.cfg.OutputDir, name)
	if err := sess.Close(); err != nil {
		return fmt.Errorf("closing recording %s: %w", name, err)
	}
	if err := os.Rename(path+partialSuffix, path); err != nil {
		return fmt.Errorf("publishing recording %s: %w", name, err)
	}

	sum, err := session.Scan(path, r.sessCfg, r.logger)
	if err != nil {
		return fmt.Errorf("scanning recording %s: %w", name, err)
	}
	entry := EntryFromSummary(name, sum)
	entry.Stream = r.cfg.Stream
	entry.FirstSeq = r.firstSeq
	entry.LastSeq = r.lastSeq
	if err := r.catalog.RecordFile(ctx, entry); err != nil {
		return fmt.Errorf("cataloguing recording %s: %w", name, err)
	}

	if r.archive != nil {
		key, err := r.archive.Put(ctx, entry)
		if err != nil {
			// Retention retries unarchived files.
			r.logger.Warn("archive upload failed", zap.String("file", name), zap.Error(err))
		} else if err := r.catalog.MarkArchived(ctx, name, key); err != nil {
			r.logger.Warn("failed to mark recording archived", zap.String("file", name), zap.Error(err))
		}
	}

	if r.lastMsg != nil {
		if err := r.lastMsg.Ack(); err != nil {
			r.logger.Warn("failed to ack messages", zap.Uint64("last_seq", r.lastSeq), zap.Error(err))
		}
		r.lastMsg = nil
	}
	if err := r.catalog.SetConsumerState(ctx, r.cfg.Stream, r.lastSeq); err != nil {
		r.logger.Warn("failed to persist consumer state", zap.Error(err))
	}
	r.rotated++

	metrics.FilesRotated.WithLabelValues(r.cfg.Stream, reason).Inc()
	metrics.RotateDuration.WithLabelValues(r.cfg.Stream).Observe(time.Since(start).Seconds())
	r.updateLag(ctx)

	r.logger.Info("recording rotated",
		zap.String("file", name),
		zap.String("reason", reason),
		zap.Uint64("first_seq", entry.FirstSeq),
		zap.Uint64("last_seq", entry.LastSeq),
		zap.Uint64("objects", entry.ObjectCount),
		zap.Int64("file_size", entry.FileSize),
	)
	return nil
}

func (r *Recorder) updateLag(ctx context.Context) {
	cons, err := r.js.Consumer(ctx, r.cfg.Stream, r.cfg.ConsumerName)
	if err != nil {
		return
	}
	info, err := cons.Info(ctx)
	if err != nil {
		return
	}
	metrics.ConsumerLag.WithLabelValues(r.cfg.Stream).Set(float64(info.NumPending))
}

// Flush closes the current recording, if any.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotate(ctx, "shutdown")
}

// Status returns a snapshot of the recording in progress.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		Stream:       r.cfg.Stream,
		LastSeq:      r.lastSeq,
		FilesRotated: r.rotated,
	}
	if r.sess != nil {
		st.CurrentFile = r.name
		st.CurrentObjects = r.sess.ObjectCount()
		st.CurrentBytes = r.bytes
		st.OpenedAt = r.openedAt
	}
	return st
}

// removePartials deletes recordings left open by an earlier crash. Their
// messages were never acknowledged and will be delivered again.
func (r *Recorder) removePartials() {
	matches, _ := filepath.Glob(filepath.Join(r.cfg.OutputDir, "*"+partialSuffix))
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			r.logger.Warn("failed to remove partial recording", zap.String("path", m), zap.Error(err))
			continue
		}
		r.logger.Info("removed partial recording", zap.String("file", strings.TrimSuffix(filepath.Base(m), partialSuffix)))
	}
}

// EntryFromSummary builds the catalog record of a scanned log file.
func EntryFromSummary(name string, sum session.Summary) catalog.FileEntry {
	var size int64
	if info, err := os.Stat(sum.Path); err == nil {
		size = info.Size()
	}
	return catalog.FileEntry{
		Name:             name,
		Path:             sum.Path,
		FileSize:         size,
		UncompressedSize: sum.UncompressedSize,
		ObjectCount:      sum.Objects,
		ContainerCount:   sum.Containers,
		TypeCounts:       sum.TypeCounts,
		ContainerIndex:   sum.Index.Encode(),
		MeasurementStart: sum.Statistics.MeasurementStartTime.Time(),
		FirstTimestamp:   sum.FirstTimestamp(),
		LastTimestamp:    sum.LastTimestamp(),
		CreatedAt:        time.Now().UTC(),
	}
}
