package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Session       SessionConfig       `yaml:"session"`
	NATS          NATSConfig          `yaml:"nats"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Replay        ReplayConfig        `yaml:"replay"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Retention     RetentionConfig     `yaml:"retention"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SessionConfig controls how log files are read and written.
type SessionConfig struct {
	// ContainerSize is the uncompressed byte threshold at which a log container is written.
	ContainerSize ByteSize `yaml:"container_size"`
	// CompressionLevel 0 stores containers uncompressed, 1-9 selects the DEFLATE level.
	CompressionLevel   int  `yaml:"compression_level"`
	WriteRestorePoints bool `yaml:"write_restore_points"`
	// BufferCapacity bounds the uncompressed bytes held between the object
	// and container stages. Zero means unbounded.
	BufferCapacity ByteSize          `yaml:"buffer_capacity"`
	Pipelined      bool              `yaml:"pipelined"`
	Application    ApplicationConfig `yaml:"application"`
}

type ApplicationConfig struct {
	ID    uint8 `yaml:"id"`
	Major uint8 `yaml:"major"`
	Minor uint8 `yaml:"minor"`
	Build uint8 `yaml:"build"`
}

type NATSConfig struct {
	URL             string    `yaml:"url"`
	CredentialsFile string    `yaml:"credentials_file"`
	NKeySeedFile    string    `yaml:"nkey_seed_file"`
	TLS             TLSConfig `yaml:"tls"`
	ConnectionName  string    `yaml:"connection_name"`
	MaxReconnects   int       `yaml:"max_reconnects"`
	ReconnectWait   Duration  `yaml:"reconnect_wait"`
}

type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RecorderConfig describes the JetStream source and the rotation policy of recordings.
type RecorderConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Stream        string   `yaml:"stream"`
	Subjects      []string `yaml:"subjects"`
	ConsumerName  string   `yaml:"consumer_name"`
	FetchBatch    int      `yaml:"fetch_batch"`
	FetchTimeout  Duration `yaml:"fetch_timeout"`
	OutputDir     string   `yaml:"output_dir"`
	FilePrefix    string   `yaml:"file_prefix"`
	RotateSize    ByteSize `yaml:"rotate_size"`
	RotateObjects uint32   `yaml:"rotate_objects"`
	RotateAge     Duration `yaml:"rotate_age"`
}

type ReplayConfig struct {
	SubjectPrefix string  `yaml:"subject_prefix"`
	JetStream     bool    `yaml:"jetstream"`
	Pace          bool    `yaml:"pace"`
	Speed         float64 `yaml:"speed"`
}

type CatalogConfig struct {
	Path   string `yaml:"path"`
	NoSync bool   `yaml:"no_sync"`
}

type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	StorageClass    string `yaml:"storage_class"`
	// Compression is applied to the archived file body: "none" or "zstd".
	Compression string `yaml:"compression"`
}

type RetentionConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Interval         Duration `yaml:"interval"`
	MaxAge           Duration `yaml:"max_age"`
	ArchiveMaxAge    Duration `yaml:"archive_max_age"`
	DeleteUnarchived bool     `yaml:"delete_unarchived"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// NATSPrefix enables catalog lookups over NATS request-reply on
	// <prefix>.files.list and <prefix>.files.get. Empty disables them.
	NATSPrefix string `yaml:"nats_prefix"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
	Logging LoggingConfig `yaml:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type HealthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Listen        string `yaml:"listen"`
	LivenessPath  string `yaml:"liveness_path"`
	ReadinessPath string `yaml:"readiness_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return err
	}

	if c.Recorder.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required when the recorder is enabled")
		}
		if c.Recorder.Stream == "" {
			return fmt.Errorf("recorder.stream is required")
		}
		if c.Recorder.ConsumerName == "" {
			return fmt.Errorf("recorder.consumer_name is required")
		}
		if c.Recorder.OutputDir == "" {
			return fmt.Errorf("recorder.output_dir is required")
		}
		if c.Recorder.RotateSize <= 0 && c.Recorder.RotateObjects == 0 && c.Recorder.RotateAge <= 0 {
			return fmt.Errorf("recorder needs at least one of rotate_size, rotate_objects, rotate_age")
		}
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required")
		}
		switch c.Archive.Compression {
		case "", "none", "zstd":
		default:
			return fmt.Errorf("archive.compression must be none or zstd, got %q", c.Archive.Compression)
		}
	}

	if c.Retention.Enabled && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be > 0")
	}

	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}

	return nil
}

// Validate checks the session limits.
func (s SessionConfig) Validate() error {
	if s.ContainerSize <= 0 || s.ContainerSize > 64*1024*1024 {
		return fmt.Errorf("session.container_size must be between 1B and 64MB, got %d", s.ContainerSize)
	}
	if s.CompressionLevel < 0 || s.CompressionLevel > 9 {
		return fmt.Errorf("session.compression_level must be between 0 and 9, got %d", s.CompressionLevel)
	}
	if s.BufferCapacity < 0 {
		return fmt.Errorf("session.buffer_capacity must be >= 0")
	}
	if s.BufferCapacity > 0 && s.BufferCapacity < s.ContainerSize {
		return fmt.Errorf("session.buffer_capacity (%d) must be 0 or at least container_size (%d)", s.BufferCapacity, s.ContainerSize)
	}
	return nil
}

// Duration wraps time.Duration for YAML unmarshaling of strings like "5m", "24h".
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize wraps int64 for YAML unmarshaling of strings like "128KB", "1GB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		// Try as integer
		var n int64
		if err2 := value.Decode(&n); err2 != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}
	parsed, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

func parseByteSize(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty byte size")
	}

	var multiplier int64 = 1
	numStr := s

	switch {
	case len(s) >= 2 && s[len(s)-2:] == "KB":
		multiplier = 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "MB":
		multiplier = 1024 * 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "GB":
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "TB":
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case s[len(s)-1] == 'B':
		numStr = s[:len(s)-1]
	}

	var n int64
	_, err := fmt.Sscanf(numStr, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n * multiplier, nil
}
