// Package config loads the application configuration from a YAML file with
// environment overrides (DWELLCAM_ prefix).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultModel is used when the configured detection model is not known.
const DefaultModel = "mobilenet_ssd"

// ValidModels are the detection models the pipeline knows how to load.
var ValidModels = []string{"mobilenet_ssd", "yolo_v2_tiny_voc", "yolo_v2_tiny", "yolo_v3_tiny"}

// Config holds the complete application configuration.
type Config struct {
	Stream    StreamConfig    `mapstructure:"stream"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StreamConfig defines the capture source.
type StreamConfig struct {
	// Source is a device index ("0") or a file/RTSP URL.
	Source        string `mapstructure:"source"`
	WarmupSeconds int    `mapstructure:"warmup_seconds"`
	MaxReadErrors int    `mapstructure:"max_read_errors"`
}

// DetectorConfig defines the object detection model and threshold.
type DetectorConfig struct {
	Model      string  `mapstructure:"model"`
	ModelDir   string  `mapstructure:"model_dir"`
	Confidence float64 `mapstructure:"confidence"`
	Label      string  `mapstructure:"label"`
}

// TrackerConfig defines centroid tracker behavior.
type TrackerConfig struct {
	DeregisterFrames int     `mapstructure:"deregister_frames"`
	MaxDistance      float64 `mapstructure:"max_distance"`
}

// StorageConfig defines the checkpoint database location.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// BroadcastConfig defines the MJPEG streamer endpoint.
type BroadcastConfig struct {
	Addr        string `mapstructure:"addr"`
	JPEGQuality int    `mapstructure:"jpeg_quality"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. A missing
// config file is not an error; defaults and environment apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("DWELLCAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Normalize fixes up recoverable configuration problems and returns a
// warning line for each fix applied.
func (c *Config) Normalize() []string {
	var warnings []string

	if !isValidModel(c.Detector.Model) {
		warnings = append(warnings, fmt.Sprintf(
			"selected model %q is invalid, changing to default: %s", c.Detector.Model, DefaultModel))
		c.Detector.Model = DefaultModel
	}

	if c.Broadcast.JPEGQuality < 1 || c.Broadcast.JPEGQuality > 100 {
		warnings = append(warnings, fmt.Sprintf(
			"jpeg quality %d out of range, using 80", c.Broadcast.JPEGQuality))
		c.Broadcast.JPEGQuality = 80
	}

	return warnings
}

func isValidModel(model string) bool {
	for _, m := range ValidModels {
		if m == model {
			return true
		}
	}
	return false
}

func validate(c *Config) error {
	if c.Detector.Confidence <= 0 || c.Detector.Confidence > 1 {
		return fmt.Errorf("detector confidence must be in (0, 1], got %v", c.Detector.Confidence)
	}
	if c.Tracker.DeregisterFrames < 1 {
		return fmt.Errorf("tracker deregister_frames must be positive, got %d", c.Tracker.DeregisterFrames)
	}
	if c.Tracker.MaxDistance <= 0 {
		return fmt.Errorf("tracker max_distance must be positive, got %v", c.Tracker.MaxDistance)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path must not be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.source", "0")
	v.SetDefault("stream.warmup_seconds", 2)
	v.SetDefault("stream.max_read_errors", 30)

	v.SetDefault("detector.model", DefaultModel)
	v.SetDefault("detector.model_dir", "models")
	v.SetDefault("detector.confidence", 0.8)
	v.SetDefault("detector.label", "person")

	v.SetDefault("tracker.deregister_frames", 20)
	v.SetDefault("tracker.max_distance", 50.0)

	v.SetDefault("storage.path", "data/dwellcam.db")

	v.SetDefault("broadcast.addr", ":8080")
	v.SetDefault("broadcast.jpeg_quality", 80)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
