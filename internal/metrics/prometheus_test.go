package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsServer_MetricsEndpoint(t *testing.T) {
	// Vec metrics only show up after WithLabelValues() is called.
	ObjectsRead.WithLabelValues("CAN_MESSAGE").Add(0)
	ObjectsWritten.WithLabelValues("CAN_MESSAGE").Add(0)
	ObjectsSkipped.Add(0)
	SignatureWarnings.Add(0)
	ContainersInflated.WithLabelValues("deflate").Add(0)
	ContainersDeflated.WithLabelValues("stored").Add(0)
	CompressedBytes.WithLabelValues("read").Add(0)
	UncompressedBytes.WithLabelValues("write").Add(0)
	InflateDuration.Observe(0)
	DeflateDuration.Observe(0)
	StreamErrors.WithLabelValues("read").Add(0)
	BufferWaits.WithLabelValues("reader").Add(0)
	RecordedObjects.WithLabelValues("BUS").Add(0)
	RecorderDecodeErrors.WithLabelValues("BUS").Add(0)
	FilesRotated.WithLabelValues("BUS", "size").Add(0)
	RotateDuration.WithLabelValues("BUS").Observe(0)
	ConsumerLag.WithLabelValues("BUS").Set(0)
	ObjectsPublished.WithLabelValues("CAN_MESSAGE").Add(0)
	S3UploadDuration.Observe(0)
	S3UploadErrors.WithLabelValues("timeout").Add(0)
	S3DownloadDuration.Observe(0)
	FilesExpired.WithLabelValues("local").Add(0)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body := w.Body.String()

	expectedMetrics := []string{
		"buslog_objects_read_total",
		"buslog_objects_written_total",
		"buslog_objects_skipped_total",
		"buslog_signature_warnings_total",
		"buslog_containers_inflated_total",
		"buslog_containers_deflated_total",
		"buslog_compressed_bytes_total",
		"buslog_uncompressed_bytes_total",
		"buslog_inflate_duration_seconds",
		"buslog_deflate_duration_seconds",
		"buslog_stream_errors_total",
		"buslog_buffer_waits_total",
		"buslog_recorder_objects_total",
		"buslog_recorder_decode_errors_total",
		"buslog_recorder_files_rotated_total",
		"buslog_recorder_rotate_duration_seconds",
		"buslog_consumer_lag_messages",
		"buslog_replay_objects_published_total",
		"buslog_s3_upload_duration_seconds",
		"buslog_s3_upload_errors_total",
		"buslog_s3_download_duration_seconds",
		"buslog_files_expired_total",
	}

	for _, name := range expectedMetrics {
		if !strings.Contains(body, name) {
			t.Errorf("expected /metrics to contain %q", name)
		}
	}

	ct := w.Header().Get("Content-Type")
	if !strings.Contains(ct, "text/plain") && !strings.Contains(ct, "text/openmetrics") {
		t.Errorf("expected text/plain or openmetrics content type, got %s", ct)
	}
}
