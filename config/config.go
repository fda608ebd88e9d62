// Package config defines the typed configuration surface for a
// viewcast session and loads it from file and environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config carries every tunable of a streaming session. Zero values
// are filled from defaults during Load; hand-built configs should
// call ApplyDefaults before Validate.
type Config struct {
	// Crop is the viewport rectangle. With Follow enabled the origin
	// only seeds the starting position.
	CropX      int `mapstructure:"crop_x"`
	CropY      int `mapstructure:"crop_y"`
	CropWidth  int `mapstructure:"crop_width"`
	CropHeight int `mapstructure:"crop_height"`

	// Source dimensions of the captured screen.
	SourceWidth  int `mapstructure:"source_width"`
	SourceHeight int `mapstructure:"source_height"`

	// Follow mode. When enabled it wins over a static crop origin.
	Follow         bool          `mapstructure:"follow"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	DeadzoneRadius float64       `mapstructure:"deadzone_radius"`
	Smoothing      float64       `mapstructure:"smoothing"`
	LostAfter      int           `mapstructure:"lost_after"`

	// Encoder.
	BitRate     uint32 `mapstructure:"bit_rate"`
	FPS         int    `mapstructure:"fps"`
	KeyInterval int    `mapstructure:"key_interval"`

	// Transport.
	RemoteAddr    string        `mapstructure:"remote_addr"`
	ListenAddr    string        `mapstructure:"listen_addr"`
	MTU           int           `mapstructure:"mtu"`
	JitterLatency time.Duration `mapstructure:"jitter_latency"`

	// Capture handshake and supervision.
	StepTimeout      time.Duration `mapstructure:"step_timeout"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	MaxRestarts      int           `mapstructure:"max_restarts"`
	FallbackInterval time.Duration `mapstructure:"fallback_interval"`

	// Receiver output device path (loopback sink).
	DevicePath string `mapstructure:"device_path"`
}

// ApplyDefaults fills zero-valued fields with session defaults.
func (c *Config) ApplyDefaults() {
	if c.CropWidth == 0 {
		c.CropWidth = 1280
	}
	if c.CropHeight == 0 {
		c.CropHeight = 720
	}
	if c.SourceWidth == 0 {
		c.SourceWidth = 1920
	}
	if c.SourceHeight == 0 {
		c.SourceHeight = 1080
	}
	if c.SampleInterval == 0 {
		c.SampleInterval = 33 * time.Millisecond
	}
	if c.Smoothing == 0 {
		c.Smoothing = 4
	}
	if c.LostAfter == 0 {
		c.LostAfter = 10
	}
	if c.BitRate == 0 {
		c.BitRate = 4_000_000
	}
	if c.FPS == 0 {
		c.FPS = 30
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:0"
	}
	if c.MTU == 0 {
		c.MTU = 1200
	}
	if c.JitterLatency == 0 {
		c.JitterLatency = 25 * time.Millisecond
	}
	if c.StepTimeout == 0 {
		c.StepTimeout = 15 * time.Second
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = 3
	}
	if c.FallbackInterval == 0 {
		c.FallbackInterval = 200 * time.Millisecond
	}
}

// Validate rejects configurations no session could run with.
func (c *Config) Validate() error {
	if c.CropWidth <= 0 || c.CropHeight <= 0 {
		return fmt.Errorf("crop size %dx%d must be positive", c.CropWidth, c.CropHeight)
	}
	if c.CropWidth%2 != 0 || c.CropHeight%2 != 0 {
		return fmt.Errorf("crop size %dx%d must be even for I420 encoding", c.CropWidth, c.CropHeight)
	}
	if c.SourceWidth < c.CropWidth || c.SourceHeight < c.CropHeight {
		return fmt.Errorf("crop %dx%d does not fit source %dx%d",
			c.CropWidth, c.CropHeight, c.SourceWidth, c.SourceHeight)
	}
	if c.CropX < 0 || c.CropY < 0 ||
		c.CropX+c.CropWidth > c.SourceWidth || c.CropY+c.CropHeight > c.SourceHeight {
		return fmt.Errorf("crop origin (%d,%d) pushes rectangle outside source bounds", c.CropX, c.CropY)
	}
	if c.Smoothing < 1 {
		return fmt.Errorf("smoothing %v must be at least 1", c.Smoothing)
	}
	if c.DeadzoneRadius < 0 {
		return errors.New("deadzone radius cannot be negative")
	}
	if c.SampleInterval <= 0 {
		return errors.New("sample interval must be positive")
	}
	if c.FPS <= 0 {
		return errors.New("fps must be positive")
	}
	if c.BitRate == 0 {
		return errors.New("bit rate cannot be zero")
	}
	if c.MTU < 576 {
		return fmt.Errorf("mtu %d below minimum datagram size", c.MTU)
	}
	if c.JitterLatency <= 0 {
		return errors.New("jitter latency must be positive")
	}
	if c.BackoffBase <= 0 {
		return errors.New("backoff base must be positive")
	}
	if c.MaxRestarts < 0 {
		return errors.New("max restarts cannot be negative")
	}
	return nil
}

// Load reads configuration from the given file (optional) and the
// VIEWCAST_* environment, applies defaults and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("viewcast")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Load",
		"crop":      fmt.Sprintf("%dx%d", cfg.CropWidth, cfg.CropHeight),
		"follow":    cfg.Follow,
		"fps":       cfg.FPS,
		"bit_rate":  cfg.BitRate,
		"mtu":       cfg.MTU,
		"file_used": path,
	}).Info("Configuration loaded")

	return cfg, nil
}
