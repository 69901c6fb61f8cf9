package camera

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/video-system/go-camera-hal/pkg/board"
	"github.com/video-system/go-camera-hal/pkg/mempool"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "camera:\n  copy_preview: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Camera.Driver != "sim" || cfg.Camera.Allocator != "heap" {
		t.Errorf("camera defaults %+v", cfg.Camera)
	}
	if !cfg.Camera.CopyPreview {
		t.Error("copy_preview not read")
	}
	if cfg.Camera.FrameTimeout != DefaultFrameTimeout {
		t.Errorf("frame timeout %v", cfg.Camera.FrameTimeout)
	}
	if cfg.Board.Target != "msm7627a" || cfg.API.Port != 8080 || cfg.Recording.Codec != "h264" {
		t.Errorf("defaults board=%s port=%d codec=%s", cfg.Board.Target, cfg.API.Port, cfg.Recording.Codec)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("CAMERA_TARGET", "msm8660")
	t.Setenv("CAMERA_TIMEOUT", "750ms")
	cfg, err := LoadConfig(writeConfig(t, `
board:
  target: ${CAMERA_TARGET}
camera:
  frame_timeout: ${CAMERA_TIMEOUT}
  allocator: memfd
  parameters:
    effect: sepia
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Board.Target != "msm8660" {
		t.Errorf("target %q", cfg.Board.Target)
	}
	if cfg.Camera.FrameTimeout != 750*time.Millisecond {
		t.Errorf("frame timeout %v", cfg.Camera.FrameTimeout)
	}
	opts := cfg.Options()
	if _, ok := opts.Allocator.(mempool.MemfdAllocator); !ok {
		t.Errorf("allocator %T", opts.Allocator)
	}
	if opts.Parameters["effect"] != "sepia" {
		t.Errorf("parameters %v", opts.Parameters)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := LoadConfig(writeConfig(t, "camera: [unterminated\n")); err == nil {
		t.Error("malformed yaml accepted")
	}
}

func TestConfigProfileOverrides(t *testing.T) {
	cfg := &Config{Board: BoardConfig{Target: "qsd8250", PreviewBuffers: 6, MaxZoom: 20, MemoryDevice: "/dev/ion"}}
	p, err := cfg.Profile()
	if err != nil {
		t.Fatal(err)
	}
	if p.Target != board.QSD8250 || p.PreviewBuffers != 6 || p.MaxZoom != 20 || p.MemoryDevice != "/dev/ion" {
		t.Errorf("profile %+v", p)
	}

	cfg.Board.MaxZoom = board.MaxZoomRatios + 1
	if p, _ = cfg.Profile(); p.MaxZoom != 31 {
		t.Errorf("out of range zoom override applied: %d", p.MaxZoom)
	}

	cfg.Board.Target = "msm9999"
	if _, err := cfg.Profile(); err == nil {
		t.Error("unknown target accepted")
	}
}
