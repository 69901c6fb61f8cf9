package camera

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/video-system/go-camera-hal/pkg/board"
	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/mempool"
)

// Config holds the daemon configuration
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Board     BoardConfig     `yaml:"board"`
	Display   DisplayConfig   `yaml:"display"`
	Recording RecordingConfig `yaml:"recording"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	API       APIConfig       `yaml:"api"`
	Platform  PlatformConfig  `yaml:"platform"`
}

// CameraConfig selects the capture driver and session options
type CameraConfig struct {
	Driver        string            `yaml:"driver"`         // sim, v4l2
	Device        string            `yaml:"device"`         // /dev/video0
	Allocator     string            `yaml:"allocator"`      // heap, memfd, or a device path
	FrameInterval time.Duration     `yaml:"frame_interval"` // sim frame pacing
	FrameTimeout  time.Duration     `yaml:"frame_timeout"`  // watchdog
	CopyPreview   bool              `yaml:"copy_preview"`   // never register window buffers
	Parameters    map[string]string `yaml:"parameters"`     // applied over the defaults
}

// BoardConfig selects the target and overrides its profile
type BoardConfig struct {
	Target         string `yaml:"target"` // msm7627a, msm7630, msm8660, ...
	PreviewBuffers int    `yaml:"preview_buffers"`
	MaxZoom        int    `yaml:"max_zoom"`
	MemoryDevice   string `yaml:"memory_device"`
}

// DisplayConfig configures the built-in compositor window
type DisplayConfig struct {
	Enabled       bool `yaml:"enabled"`
	MinUndequeued int  `yaml:"min_undequeued"`
}

// RecordingConfig configures the ffmpeg recording sink
type RecordingConfig struct {
	OutputDir string `yaml:"output_dir"`
	Codec     string `yaml:"codec"`   // h264, hevc
	Preset    string `yaml:"preset"`  // ultrafast, fast, medium
	Bitrate   int    `yaml:"bitrate"` // kbps
}

// SnapshotConfig configures where pictures are written
type SnapshotConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// APIConfig configures the control API
type APIConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// PlatformConfig configures optional platform integration
type PlatformConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Camera.Driver == "" {
		c.Camera.Driver = "sim"
	}
	if c.Camera.Allocator == "" {
		c.Camera.Allocator = "heap"
	}
	if c.Camera.FrameTimeout == 0 {
		c.Camera.FrameTimeout = DefaultFrameTimeout
	}
	if c.Board.Target == "" {
		c.Board.Target = "msm7627a"
	}
	if c.Display.MinUndequeued == 0 {
		c.Display.MinUndequeued = 2
	}
	if c.Recording.Codec == "" {
		c.Recording.Codec = "h264"
	}
	if c.Recording.Preset == "" {
		c.Recording.Preset = "fast"
	}
	if c.Recording.Bitrate == 0 {
		c.Recording.Bitrate = 4000
	}
	if c.Snapshot.OutputDir == "" {
		c.Snapshot.OutputDir = "./pictures"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}

// Profile resolves the board profile with overrides applied
func (c *Config) Profile() (board.Profile, error) {
	p, err := board.Lookup(c.Board.Target)
	if err != nil {
		return p, err
	}
	if c.Board.PreviewBuffers > 0 {
		p.PreviewBuffers = c.Board.PreviewBuffers
	}
	if c.Board.MaxZoom > 0 && c.Board.MaxZoom <= board.MaxZoomRatios {
		p.MaxZoom = c.Board.MaxZoom
	}
	if c.Board.MemoryDevice != "" {
		p.MemoryDevice = c.Board.MemoryDevice
	}
	return p, nil
}

// Options builds session options from the camera section
func (c *Config) Options() Options {
	return Options{
		Allocator:    mempool.NewAllocator(c.Camera.Allocator),
		FrameTimeout: c.Camera.FrameTimeout,
		CopyPreview:  c.Camera.CopyPreview,
		Parameters:   c.Camera.Parameters,
	}
}

// DriverOptions builds driver options from the camera section
func (c *Config) DriverOptions() driver.Options {
	return driver.Options{
		Device:        c.Camera.Device,
		FrameInterval: c.Camera.FrameInterval,
	}
}
