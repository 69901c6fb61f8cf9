package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// MediaInfo holds recording file information
type MediaInfo struct {
	Format  MediaFormat   `json:"format"`
	Streams []MediaStream `json:"streams"`
}

// MediaFormat holds container-level information
type MediaFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// MediaStream holds stream-level information
type MediaStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	PixFmt       string `json:"pix_fmt,omitempty"`
	FrameRate    string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	NbFrames     string `json:"nb_frames,omitempty"`
	Duration     string `json:"duration,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
}

// Inspect analyzes a recording and returns ffprobe's view of it
func (f *FFmpeg) Inspect(ctx context.Context, path string) (*MediaInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, f.inspectPath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result MediaInfo
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	return &result, nil
}

// VideoInfo is the summary logged after a recording closes
type VideoInfo struct {
	Width     int
	Height    int
	Duration  float64
	Framerate float64
	Frames    int64
	Codec     string
	BitRate   int64
	PixelFmt  string
}

// GetVideoInfo returns the first video stream of a recording
func (f *FFmpeg) GetVideoInfo(ctx context.Context, path string) (*VideoInfo, error) {
	media, err := f.Inspect(ctx, path)
	if err != nil {
		return nil, err
	}

	info := &VideoInfo{}

	for _, stream := range media.Streams {
		if stream.CodecType == "video" {
			info.Width = stream.Width
			info.Height = stream.Height
			info.Codec = stream.CodecName
			info.PixelFmt = stream.PixFmt

			if stream.AvgFrameRate != "" {
				info.Framerate = parseFramerate(stream.AvgFrameRate)
			} else if stream.FrameRate != "" {
				info.Framerate = parseFramerate(stream.FrameRate)
			}
			if stream.NbFrames != "" {
				info.Frames, _ = strconv.ParseInt(stream.NbFrames, 10, 64)
			}
			if stream.BitRate != "" {
				info.BitRate, _ = strconv.ParseInt(stream.BitRate, 10, 64)
			}

			break
		}
	}

	if media.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(media.Format.Duration, 64)
	}

	if info.BitRate == 0 && media.Format.BitRate != "" {
		info.BitRate, _ = strconv.ParseInt(media.Format.BitRate, 10, 64)
	}

	return info, nil
}

// parseFramerate parses a framerate string like "30/1" or "30000/1001"
func parseFramerate(s string) float64 {
	var num, den int
	if n, _ := fmt.Sscanf(s, "%d/%d", &num, &den); n == 2 && den != 0 {
		return float64(num) / float64(den)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return 0
}

// Resolution returns resolution string like "1920x1080"
func (v *VideoInfo) Resolution() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}
