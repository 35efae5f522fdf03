package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/spigot/internal/stream"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the output directory when --config is not given.
const DefaultFileName = "spigot.yml"

// StreamConfig controls the digit loop. Unset fields take the stream defaults.
type StreamConfig struct {
	CheckpointInterval *uint64        `yaml:"checkpoint_interval,omitempty"` // digits between checkpoints (default 50000)
	SyncInterval       *uint64        `yaml:"sync_interval,omitempty"`       // digits between fsyncs (default 50000)
	ProgressInterval   *time.Duration `yaml:"progress_interval,omitempty"`   // HUD refresh (default 500ms)
	Alpha              *float64       `yaml:"ema_alpha,omitempty"`           // 0..1 (default 0.15)
	LineWidth          *int           `yaml:"line_width,omitempty"`          // 0 = no line breaks
	PausePollInterval  *time.Duration `yaml:"pause_poll_interval,omitempty"` // default 2s
	MaxDigits          uint64         `yaml:"max_digits,omitempty"`          // 0 = unbounded
}

// DiskConfig enables the low-disk guard.
type DiskConfig struct {
	MinFreeGB *float64 `yaml:"min_free_gb,omitempty"` // nil disables the guard
}

// MetricsConfig exposes /metrics and /healthz when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// StatusBoardConfig publishes progress to Redis when URL is set.
type StatusBoardConfig struct {
	URL            string        `yaml:"url,omitempty"`
	Instance       string        `yaml:"instance,omitempty"`        // default "default"
	PublishTimeout time.Duration `yaml:"publish_timeout,omitempty"` // per Redis round trip (default 2s)
}

// HUDConfig controls the terminal display.
type HUDConfig struct {
	Enabled   *bool `yaml:"enabled,omitempty"`   // default: on when stdout is a terminal
	Telemetry *bool `yaml:"telemetry,omitempty"` // CPU/RAM lines (default true)
}

// LogConfig controls the structured log file.
type LogConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error (default info)
	File  string `yaml:"file,omitempty"`  // default <output_dir>/spigot.log
}

// SpigotConfig represents the top-level spigot.yml configuration
type SpigotConfig struct {
	Version     string             `yaml:"version"`
	OutputDir   string             `yaml:"output_dir,omitempty"`
	Stream      StreamConfig       `yaml:"stream,omitempty"`
	Disk        DiskConfig         `yaml:"disk,omitempty"`
	Metrics     MetricsConfig      `yaml:"metrics,omitempty"`
	StatusBoard *StatusBoardConfig `yaml:"statusboard,omitempty"`
	HUD         HUDConfig          `yaml:"hud,omitempty"`
	Log         LogConfig          `yaml:"log,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *SpigotConfig {
	c := &SpigotConfig{Version: "1.0"}
	c.applyDefaults()
	return c
}

func (c *SpigotConfig) applyDefaults() {
	d := stream.DefaultConfig()
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Stream.CheckpointInterval == nil {
		c.Stream.CheckpointInterval = &d.CheckpointInterval
	}
	if c.Stream.SyncInterval == nil {
		c.Stream.SyncInterval = &d.SyncInterval
	}
	if c.Stream.ProgressInterval == nil {
		c.Stream.ProgressInterval = &d.ProgressInterval
	}
	if c.Stream.Alpha == nil {
		c.Stream.Alpha = &d.Alpha
	}
	if c.Stream.LineWidth == nil {
		c.Stream.LineWidth = &d.LineWidth
	}
	if c.Stream.PausePollInterval == nil {
		c.Stream.PausePollInterval = &d.PausePollInterval
	}
	if c.StatusBoard != nil {
		if c.StatusBoard.Instance == "" {
			c.StatusBoard.Instance = "default"
		}
		if c.StatusBoard.PublishTimeout == 0 {
			c.StatusBoard.PublishTimeout = 2 * time.Second
		}
	}
	if c.HUD.Telemetry == nil {
		on := true
		c.HUD.Telemetry = &on
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate applies defaults and performs strict validation on the configuration
func (c *SpigotConfig) Validate() error {
	if c.Version != "" && c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}
	c.applyDefaults()

	if err := c.StreamSettings().Validate(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	if c.Disk.MinFreeGB != nil && *c.Disk.MinFreeGB < 0 {
		return fmt.Errorf("disk.min_free_gb must be >= 0, got %v", *c.Disk.MinFreeGB)
	}

	if c.StatusBoard != nil && c.StatusBoard.URL == "" {
		return errors.New("statusboard.url is required when the statusboard section is present")
	}
	if c.StatusBoard != nil && c.StatusBoard.PublishTimeout < 0 {
		return fmt.Errorf("statusboard.publish_timeout must be positive, got %v", c.StatusBoard.PublishTimeout)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %s (must be 'debug', 'info', 'warn' or 'error')", c.Log.Level)
	}

	return nil
}

// StreamSettings converts the stream section into controller settings.
// Call it after Validate so every pointer is set.
func (c *SpigotConfig) StreamSettings() stream.Config {
	cfg := stream.DefaultConfig()
	if c.Stream.CheckpointInterval != nil {
		cfg.CheckpointInterval = *c.Stream.CheckpointInterval
	}
	if c.Stream.SyncInterval != nil {
		cfg.SyncInterval = *c.Stream.SyncInterval
	}
	if c.Stream.ProgressInterval != nil {
		cfg.ProgressInterval = *c.Stream.ProgressInterval
	}
	if c.Stream.Alpha != nil {
		cfg.Alpha = *c.Stream.Alpha
	}
	if c.Stream.LineWidth != nil {
		cfg.LineWidth = *c.Stream.LineWidth
	}
	if c.Stream.PausePollInterval != nil {
		cfg.PausePollInterval = *c.Stream.PausePollInterval
	}
	cfg.MaxDigits = c.Stream.MaxDigits
	return cfg
}

// MinFreeBytes returns the disk guard threshold, or 0 when the guard is off.
func (c *SpigotConfig) MinFreeBytes() uint64 {
	if c.Disk.MinFreeGB == nil {
		return 0
	}
	return uint64(*c.Disk.MinFreeGB * (1 << 30))
}

// Load reads and validates spigot.yml from the specified path
func Load(path string) (*SpigotConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config SpigotConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOptional behaves like Load but returns defaults when the file does not exist.
func LoadOptional(path string) (*SpigotConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}
