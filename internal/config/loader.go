package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "doorcount"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "DOORCOUNT"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that cobra flag
// bindings are visible.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on a private viper instance.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load searches the standard locations for a config file, applies
// environment variables and defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile loads configuration from configFile, or searches the standard
// locations when configFile is empty.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation is LoadWithFile without Validate.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file is fine when searching; defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return l.Unmarshal()
}

// Unmarshal decodes the current settings, including bound flags, without
// re-reading the config file.
func (l *Loader) Unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// GetResolvedConfig returns the merged settings from all sources.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables maps DOORCOUNT_COUNTER_LINE_FRACTION style
// variables onto nested keys.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so that env vars and Unmarshal see it.
// Durations are registered as strings to keep written config files readable.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)
	l.v.SetDefault("models_dir", d.ModelsDir)

	l.v.SetDefault("counter.line_fraction", d.Counter.LineFraction)
	l.v.SetDefault("counter.frame_width", d.Counter.FrameWidth)
	l.v.SetDefault("counter.cooldown", d.Counter.Cooldown.String())
	l.v.SetDefault("counter.swap", d.Counter.Swap)
	l.v.SetDefault("counter.confidence", d.Counter.Confidence)
	l.v.SetDefault("counter.max_read_errors", d.Counter.MaxReadErrors)
	l.v.SetDefault("counter.log_path", d.Counter.LogPath)
	l.v.SetDefault("counter.log_interval", d.Counter.LogInterval.String())
	l.v.SetDefault("counter.shutdown_timeout", d.Counter.ShutdownTimeout.String())

	l.v.SetDefault("remote.url", d.Remote.URL)
	l.v.SetDefault("remote.timeout", d.Remote.Timeout.String())
	l.v.SetDefault("remote.queue_size", d.Remote.QueueSize)
	l.v.SetDefault("remote.sync_on_flush", d.Remote.SyncOnFlush)

	l.v.SetDefault("detector.model_path", d.Detector.ModelPath)
	l.v.SetDefault("detector.library_path", d.Detector.LibraryPath)
	l.v.SetDefault("detector.class", d.Detector.Class)
	l.v.SetDefault("detector.iou_threshold", d.Detector.IoUThreshold)
	l.v.SetDefault("detector.input_size", d.Detector.InputSize)
	l.v.SetDefault("detector.num_threads", d.Detector.NumThreads)
	l.v.SetDefault("detector.gpu.enabled", d.Detector.GPU.UseGPU)
	l.v.SetDefault("detector.gpu.device_id", d.Detector.GPU.DeviceID)
	l.v.SetDefault("detector.gpu.mem_limit", d.Detector.GPU.GPUMemLimit)

	l.v.SetDefault("tracker.iou_threshold", d.Tracker.IoUThreshold)
	l.v.SetDefault("tracker.max_age", d.Tracker.MaxAge)
	l.v.SetDefault("tracker.min_hits", d.Tracker.MinHits)

	l.v.SetDefault("source.kind", d.Source.Kind)
	l.v.SetDefault("source.path", d.Source.Path)
	l.v.SetDefault("source.url", d.Source.URL)
	l.v.SetDefault("source.fps", d.Source.FPS)
	l.v.SetDefault("source.loop", d.Source.Loop)
	l.v.SetDefault("source.timeout", d.Source.Timeout.String())

	l.v.SetDefault("server.enabled", d.Server.Enabled)
	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout.String())
	l.v.SetDefault("server.jpeg_quality", d.Server.JPEGQuality)

	l.v.SetDefault("collector.host", d.Collector.Host)
	l.v.SetDefault("collector.port", d.Collector.Port)
	l.v.SetDefault("collector.db_path", d.Collector.DBPath)
	l.v.SetDefault("collector.cors_origin", d.Collector.CORSOrigin)
	l.v.SetDefault("collector.timezone", d.Collector.Timezone)
	l.v.SetDefault("collector.max_body_bytes", d.Collector.MaxBodyBytes)
	l.v.SetDefault("collector.shutdown_timeout", d.Collector.ShutdownTimeout.String())
	l.v.SetDefault("collector.rate_limit.enabled", d.Collector.RateLimit.Enabled)
	l.v.SetDefault("collector.rate_limit.requests_per_minute", d.Collector.RateLimit.RequestsPerMinute)
	l.v.SetDefault("collector.rate_limit.requests_per_hour", d.Collector.RateLimit.RequestsPerHour)
	l.v.SetDefault("collector.rate_limit.max_requests_per_day", d.Collector.RateLimit.MaxRequestsPerDay)
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes a config file containing every default.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWith(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, filepath.Join("/etc", ConfigFileName))
}
