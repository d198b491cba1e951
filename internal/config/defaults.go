package config

import "time"

const (
	// DefaultContainerSize is the uncompressed size of one log container.
	DefaultContainerSize = 0x20000

	// DefaultCompressionLevel is the DEFLATE level for new files.
	DefaultCompressionLevel = 6
)

// DefaultSessionConfig returns the settings used when a caller supplies none.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ContainerSize:      ByteSize(DefaultContainerSize),
		CompressionLevel:   DefaultCompressionLevel,
		WriteRestorePoints: true,
		BufferCapacity:     ByteSize(4 * DefaultContainerSize),
	}
}

func DefaultConfig() *Config {
	return &Config{
		Session: DefaultSessionConfig(),
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			ConnectionName: "buslog",
			MaxReconnects:  -1,
			ReconnectWait:  Duration(2 * time.Second),
		},
		Recorder: RecorderConfig{
			ConsumerName: "buslog-recorder",
			FetchBatch:   256,
			FetchTimeout: Duration(5 * time.Second),
			OutputDir:    "/var/lib/buslog/recordings",
			FilePrefix:   "bus",
			RotateSize:   ByteSize(256 * 1024 * 1024),
			RotateAge:    Duration(time.Hour),
		},
		Replay: ReplayConfig{
			SubjectPrefix: "buslog.replay",
			Speed:         1,
		},
		Catalog: CatalogConfig{
			Path: "/var/lib/buslog/catalog.db",
		},
		Archive: ArchiveConfig{
			Compression: "none",
		},
		Retention: RetentionConfig{
			Interval: Duration(10 * time.Minute),
		},
		API: APIConfig{
			Enabled: true,
			Listen:  ":8080",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Listen:  ":9090",
				Path:    "/metrics",
			},
			Health: HealthConfig{
				Enabled:       true,
				Listen:        ":8081",
				LivenessPath:  "/healthz",
				ReadinessPath: "/readyz",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stderr",
			},
		},
	}
}
