package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/collector"
	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/crossing"
	"github.com/MeKo-Tech/doorcount/internal/detector"
	"github.com/MeKo-Tech/doorcount/internal/models"
	"github.com/MeKo-Tech/doorcount/internal/onnx"
	"github.com/MeKo-Tech/doorcount/internal/report"
	"github.com/MeKo-Tech/doorcount/internal/server"
	"github.com/MeKo-Tech/doorcount/internal/source"
	"github.com/MeKo-Tech/doorcount/internal/tracker"
)

// Config is the complete doorcount configuration. It is loaded from a config
// file, DOORCOUNT_ environment variables and command-line flags.
type Config struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`

	Counter   CounterConfig    `mapstructure:"counter" yaml:"counter" json:"counter"`
	Remote    RemoteConfig     `mapstructure:"remote" yaml:"remote" json:"remote"`
	Detector  DetectorConfig   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Tracker   TrackerConfig    `mapstructure:"tracker" yaml:"tracker" json:"tracker"`
	Source    SourceConfig     `mapstructure:"source" yaml:"source" json:"source"`
	Server    ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	Collector collector.Config `mapstructure:"collector" yaml:"collector" json:"collector"`
}

// CounterConfig holds the counting loop settings.
type CounterConfig struct {
	LineFraction    float64       `mapstructure:"line_fraction" yaml:"line_fraction" json:"line_fraction"`
	FrameWidth      int           `mapstructure:"frame_width" yaml:"frame_width" json:"frame_width"`
	Cooldown        time.Duration `mapstructure:"cooldown" yaml:"cooldown" json:"cooldown"`
	Swap            bool          `mapstructure:"swap" yaml:"swap" json:"swap"`
	Confidence      float64       `mapstructure:"confidence" yaml:"confidence" json:"confidence"`
	MaxReadErrors   int           `mapstructure:"max_read_errors" yaml:"max_read_errors" json:"max_read_errors"`
	LogPath         string        `mapstructure:"log_path" yaml:"log_path" json:"log_path"`
	LogInterval     time.Duration `mapstructure:"log_interval" yaml:"log_interval" json:"log_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// RemoteConfig holds remote sync settings. An empty URL disables it.
type RemoteConfig struct {
	URL         string        `mapstructure:"url" yaml:"url" json:"url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
	SyncOnFlush bool          `mapstructure:"sync_on_flush" yaml:"sync_on_flush" json:"sync_on_flush"`
}

// DetectorConfig holds person detector settings.
type DetectorConfig struct {
	ModelPath    string         `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LibraryPath  string         `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	Class        int            `mapstructure:"class" yaml:"class" json:"class"`
	IoUThreshold float64        `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	InputSize    int            `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	NumThreads   int            `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	GPU          onnx.GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// TrackerConfig holds IoU tracker settings.
type TrackerConfig struct {
	IoUThreshold float64 `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	MaxAge       int     `mapstructure:"max_age" yaml:"max_age" json:"max_age"`
	MinHits      int     `mapstructure:"min_hits" yaml:"min_hits" json:"min_hits"`
}

// SourceConfig selects the frame source.
type SourceConfig struct {
	Kind    string        `mapstructure:"kind" yaml:"kind" json:"kind"`
	Path    string        `mapstructure:"path" yaml:"path" json:"path"`
	URL     string        `mapstructure:"url" yaml:"url" json:"url"`
	FPS     float64       `mapstructure:"fps" yaml:"fps" json:"fps"`
	Loop    bool          `mapstructure:"loop" yaml:"loop" json:"loop"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// ServerConfig holds the control server settings.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string        `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	JPEGQuality     int           `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	cnt := counter.DefaultConfig()
	det := detector.DefaultConfig()
	trk := tracker.DefaultConfig()
	srv := server.DefaultConfig()

	return Config{
		LogLevel:  "info",
		ModelsDir: models.DefaultModelsDir,
		Counter: CounterConfig{
			LineFraction:    cnt.LineFraction,
			Cooldown:        crossing.DefaultCooldown,
			Confidence:      cnt.Confidence,
			MaxReadErrors:   cnt.MaxReadErrors,
			LogPath:         "occupancy_log.txt",
			LogInterval:     report.DefaultLogInterval,
			ShutdownTimeout: cnt.ShutdownTimeout,
		},
		Remote: RemoteConfig{
			Timeout:   report.DefaultRemoteTimeout,
			QueueSize: report.DefaultQueueSize,
		},
		Detector: DetectorConfig{
			ModelPath:    models.PersonDetector,
			Class:        detector.ClassPerson,
			IoUThreshold: det.IoUThreshold,
			InputSize:    det.InputSize,
			GPU:          det.GPU,
		},
		Tracker: TrackerConfig{
			IoUThreshold: trk.IoUThreshold,
			MaxAge:       trk.MaxAge,
			MinHits:      trk.MinHits,
		},
		Source: SourceConfig{
			Kind:    source.KindImages,
			Timeout: source.DefaultConnectTimeout,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            srv.Host,
			Port:            srv.Port,
			CORSOrigin:      srv.CORSOrigin,
			ShutdownTimeout: srv.ShutdownTimeout,
			JPEGQuality:     srv.JPEGQuality,
		},
		Collector: collector.DefaultConfig(),
	}
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks settings that do not depend on files or devices. Model and
// source paths are checked when the components are opened.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if err := validateFraction(c.Counter.LineFraction, "counter.line_fraction"); err != nil {
		return err
	}
	if err := validateFraction(c.Counter.Confidence, "counter.confidence"); err != nil {
		return err
	}
	if c.Counter.Cooldown < 0 {
		return fmt.Errorf("invalid counter.cooldown: %v (must not be negative)", c.Counter.Cooldown)
	}
	if c.Counter.LogInterval <= 0 {
		return fmt.Errorf("invalid counter.log_interval: %v (must be positive)", c.Counter.LogInterval)
	}
	if c.Counter.LogPath == "" {
		return errors.New("counter.log_path cannot be empty")
	}
	if c.Counter.FrameWidth < 0 {
		return fmt.Errorf("invalid counter.frame_width: %d (must not be negative)", c.Counter.FrameWidth)
	}
	if err := c.Remote.validate(); err != nil {
		return err
	}
	if err := c.ToTrackerConfig().Validate(); err != nil {
		return fmt.Errorf("invalid tracker config: %w", err)
	}
	if err := c.Detector.GPU.Validate(); err != nil {
		return fmt.Errorf("invalid detector.gpu config: %w", err)
	}
	if c.Source.Kind != source.KindImages && c.Source.Kind != source.KindMJPEG {
		return fmt.Errorf("invalid source.kind: %s (must be one of: %s, %s)", c.Source.Kind, source.KindImages, source.KindMJPEG)
	}
	if c.Source.FPS < 0 {
		return fmt.Errorf("invalid source.fps: %g (must not be negative)", c.Source.FPS)
	}
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if err := c.Collector.Validate(); err != nil {
		return err
	}
	return nil
}

func (r RemoteConfig) validate() error {
	if r.QueueSize <= 0 {
		return fmt.Errorf("invalid remote.queue_size: %d (must be positive)", r.QueueSize)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("invalid remote.timeout: %v (must be positive)", r.Timeout)
	}
	if r.URL == "" {
		return nil
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("invalid remote.url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid remote.url: %s (must be an absolute http or https URL)", r.URL)
	}
	return nil
}

func validateFraction(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// ToCounterConfig converts to the counting loop configuration.
func (c *Config) ToCounterConfig() counter.Config {
	return counter.Config{
		LineFraction:    c.Counter.LineFraction,
		FrameWidth:      c.Counter.FrameWidth,
		Cooldown:        c.Counter.Cooldown,
		Swap:            c.Counter.Swap,
		Class:           c.Detector.Class,
		Confidence:      c.Counter.Confidence,
		MaxReadErrors:   c.Counter.MaxReadErrors,
		ShutdownTimeout: c.Counter.ShutdownTimeout,
	}
}

// ToReporterConfig converts to the reporting sink configuration.
func (c *Config) ToReporterConfig() report.Config {
	return report.Config{
		LogPath:       c.Counter.LogPath,
		LogInterval:   c.Counter.LogInterval,
		RemoteURL:     c.Remote.URL,
		RemoteTimeout: c.Remote.Timeout,
		QueueSize:     c.Remote.QueueSize,
		SyncOnFlush:   c.Remote.SyncOnFlush,
	}
}

// ToDetectorConfig converts to the detector configuration, resolving the
// model path against the models directory.
func (c *Config) ToDetectorConfig() detector.Config {
	return detector.Config{
		ModelPath:    models.Resolve(c.ModelsDir, c.Detector.ModelPath),
		LibraryPath:  c.Detector.LibraryPath,
		InputSize:    c.Detector.InputSize,
		IoUThreshold: c.Detector.IoUThreshold,
		NumThreads:   c.Detector.NumThreads,
		GPU:          c.Detector.GPU,
	}
}

// ToTrackerConfig converts to the tracker configuration.
func (c *Config) ToTrackerConfig() tracker.Config {
	return tracker.Config{
		IoUThreshold: c.Tracker.IoUThreshold,
		MaxAge:       c.Tracker.MaxAge,
		MinHits:      c.Tracker.MinHits,
	}
}

// ToSourceConfig converts to the frame source configuration.
func (c *Config) ToSourceConfig() source.Config {
	return source.Config{
		Kind:    c.Source.Kind,
		Path:    c.Source.Path,
		URL:     c.Source.URL,
		FPS:     c.Source.FPS,
		Loop:    c.Source.Loop,
		Timeout: c.Source.Timeout,
	}
}

// ToServerConfig converts to the control server configuration.
func (c *Config) ToServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Host = c.Server.Host
	cfg.Port = c.Server.Port
	cfg.CORSOrigin = c.Server.CORSOrigin
	cfg.ShutdownTimeout = c.Server.ShutdownTimeout
	cfg.JPEGQuality = c.Server.JPEGQuality
	return cfg
}
