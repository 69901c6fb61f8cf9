package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// FFmpeg wraps FFmpeg binary execution
type FFmpeg struct {
	binaryPath  string
	inspectPath string
}

// New creates a new FFmpeg wrapper
func New() (*FFmpeg, error) {
	ffmpegPath, err := findBinary("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	inspectPath, err := findBinary("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &FFmpeg{
		binaryPath:  ffmpegPath,
		inspectPath: inspectPath,
	}, nil
}

// findBinary locates a binary in PATH or common locations
func findBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/opt/homebrew/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "linux", "android":
		paths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
			"/system/bin/" + name,
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// Version returns the FFmpeg version string
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, f.binaryPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fmt.Errorf("no version output")
}

// Process represents a running FFmpeg process fed through stdin
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	done   chan error
	mu     sync.Mutex
	closed bool
}

// StartEncoder starts an FFmpeg process encoding raw frames from stdin into
// cfg.OutputPath
func (f *FFmpeg) StartEncoder(ctx context.Context, cfg EncoderConfig) (*Process, error) {
	cfg.setDefaults()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("encoder geometry %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.OutputPath == "" {
		return nil, fmt.Errorf("encoder output path not set")
	}

	cmd := exec.CommandContext(ctx, f.binaryPath, buildEncoderArgs(cfg)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	proc := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		done:   make(chan error, 1),
	}

	go func() {
		err := cmd.Wait()
		if err != nil {
			err = fmt.Errorf("ffmpeg exited: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		proc.done <- err
	}()

	return proc, nil
}

// Write writes raw frame data to FFmpeg stdin
func (p *Process) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, os.ErrClosed
	}
	return p.stdin.Write(data)
}

// Close closes stdin and waits for FFmpeg to finish
func (p *Process) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.stdin.Close()
	}
	p.mu.Unlock()
	return <-p.done
}

// Kill forcefully terminates the process
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}

// Done returns a channel that receives the exit error
func (p *Process) Done() <-chan error {
	return p.done
}

// EncoderConfig holds configuration for the encoder
type EncoderConfig struct {
	// Input
	PixelFormat string // nv21, yuv420p
	Width       int
	Height      int
	Framerate   int

	// Encoding
	Codec   string // h264, hevc, or an ffmpeg encoder name
	Preset  string // ultrafast, fast, medium
	Bitrate int    // kbps
	GOP     int    // keyframe interval in frames

	// Output
	OutputPath string // container file, format from the extension
}

func (c *EncoderConfig) setDefaults() {
	if c.PixelFormat == "" {
		c.PixelFormat = "nv21"
	}
	if c.Framerate <= 0 {
		c.Framerate = 30
	}
	if c.Preset == "" {
		c.Preset = "fast"
	}
	if c.Bitrate <= 0 {
		c.Bitrate = 4000
	}
	if c.GOP <= 0 {
		c.GOP = c.Framerate * 2
	}
}

// encoderName maps a codec family onto the software encoder
func encoderName(codec string) string {
	switch strings.ToLower(codec) {
	case "", "h264", "avc":
		return "libx264"
	case "hevc", "h265":
		return "libx265"
	}
	return codec
}

// buildEncoderArgs builds FFmpeg arguments for raw frame encoding
func buildEncoderArgs(cfg EncoderConfig) []string {
	return []string{
		"-y",
		"-loglevel", "error",

		// Input
		"-f", "rawvideo",
		"-pix_fmt", cfg.PixelFormat,
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", strconv.Itoa(cfg.Framerate),
		"-i", "pipe:0",

		// Video encoding
		"-c:v", encoderName(cfg.Codec),
		"-preset", cfg.Preset,
		"-b:v", fmt.Sprintf("%dk", cfg.Bitrate),
		"-g", strconv.Itoa(cfg.GOP),
		"-pix_fmt", "yuv420p",

		cfg.OutputPath,
	}
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
