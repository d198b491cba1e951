package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gftdcojp/buslog/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Object framing
	ObjectsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_objects_read_total",
		Help: "Objects decoded from log files",
	}, []string{"type"})

	ObjectsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_objects_written_total",
		Help: "Objects encoded into log files",
	}, []string{"type"})

	ObjectsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buslog_objects_skipped_total",
		Help: "Objects with unknown type tags skipped while reading",
	})

	SignatureWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buslog_signature_warnings_total",
		Help: "Object headers read with a mismatched signature",
	})

	// Container codec
	ContainersInflated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_containers_inflated_total",
		Help: "Log containers inflated",
	}, []string{"method"})

	ContainersDeflated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_containers_deflated_total",
		Help: "Log containers deflated",
	}, []string{"method"})

	CompressedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_compressed_bytes_total",
		Help: "Compressed container bytes moved to or from storage",
	}, []string{"direction"})

	UncompressedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_uncompressed_bytes_total",
		Help: "Uncompressed object bytes moved through containers",
	}, []string{"direction"})

	InflateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "buslog_inflate_duration_seconds",
		Help:    "Time to inflate one log container",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	DeflateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "buslog_deflate_duration_seconds",
		Help:    "Time to deflate one log container",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	StreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_stream_errors_total",
		Help: "Fatal stream errors that left a session unusable",
	}, []string{"mode"})

	// Buffer
	BufferWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_buffer_waits_total",
		Help: "Times a buffer reader or writer had to block",
	}, []string{"side"})

	// Recorder
	RecordedObjects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_recorder_objects_total",
		Help: "Objects received from JetStream and written to recordings",
	}, []string{"stream"})

	RecorderDecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_recorder_decode_errors_total",
		Help: "JetStream messages that did not hold a valid object frame",
	}, []string{"stream"})

	FilesRotated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_recorder_files_rotated_total",
		Help: "Recording files closed and catalogued",
	}, []string{"stream", "reason"})

	RotateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buslog_recorder_rotate_duration_seconds",
		Help:    "Time to close, scan and catalogue a recording",
		Buckets: prometheus.DefBuckets,
	}, []string{"stream"})

	ConsumerLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "buslog_consumer_lag_messages",
		Help: "Messages pending in JetStream not yet recorded",
	}, []string{"stream"})

	// Replay
	ObjectsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_replay_objects_published_total",
		Help: "Objects published to NATS by replay",
	}, []string{"type"})

	// Archive
	S3UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "buslog_s3_upload_duration_seconds",
		Help:    "S3 upload latency",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	S3UploadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_s3_upload_errors_total",
		Help: "S3 upload failures",
	}, []string{"error_type"})

	S3DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "buslog_s3_download_duration_seconds",
		Help:    "S3 download latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// Retention
	FilesExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buslog_files_expired_total",
		Help: "Recordings removed by retention",
	}, []string{"location"})
)

// RunServer starts the Prometheus metrics HTTP server.
func RunServer(ctx context.Context, cfg config.MetricsConfig) error {
	mux := http.NewServeMux()
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
