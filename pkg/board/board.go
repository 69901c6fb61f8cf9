// Package board describes the fixed matrix of supported SoC targets. A Profile
// is selected once at startup and passed to the session; nothing here changes
// at runtime.
package board

import (
	"fmt"
	"strings"

	"github.com/video-system/go-camera-hal/pkg/params"
)

// Target is a supported SoC
type Target int

const (
	MSM7625 Target = iota
	MSM7625A
	MSM7627
	MSM7627A
	QSD8250
	MSM7630
	MSM8660
)

var targetNames = map[Target]string{
	MSM7625:  "msm7625",
	MSM7625A: "msm7625a",
	MSM7627:  "msm7627",
	MSM7627A: "msm7627a",
	QSD8250:  "qsd8250",
	MSM7630:  "msm7630",
	MSM8660:  "msm8660",
}

func (t Target) String() string {
	if n, ok := targetNames[t]; ok {
		return n
	}
	return fmt.Sprintf("target(%d)", int(t))
}

// MaxZoomRatios bounds the zoom table the driver can report
const MaxZoomRatios = 62

// Profile is the capability set of one target
type Profile struct {
	Target              Target      `json:"target"`
	PreviewSizeMask     uint32      `json:"preview_size_mask"`
	HasSceneDetect      bool        `json:"has_scene_detect"`
	HasSelectableZoneAf bool        `json:"has_selectable_zone_af"`
	HasFaceDetect       bool        `json:"has_face_detect"`
	HasAutoFocus        bool        `json:"has_auto_focus"`
	DualVFE             bool        `json:"dual_vfe"`   // independent preview and video outputs
	NeedsYV12           bool        `json:"needs_yv12"` // display wants planar preview
	SupportsZSL         bool        `json:"supports_zsl"`
	SupportsHFR         bool        `json:"supports_hfr"`
	MaxZoom             int         `json:"max_zoom"`        // zoom table size
	PreviewBuffers      int         `json:"preview_buffers"` // active preview slots
	RecordBuffers       int         `json:"record_buffers"`  // video slots on dual-VFE targets
	MaxSnapshotBuffers  int         `json:"max_snapshot_buffers"`
	ZSLExtraBuffers     int         `json:"zsl_extra_buffers"`
	MaxFocusAreas       int         `json:"max_focus_areas"`
	MaxPictureSize      params.Size `json:"max_picture_size"`
	MemoryDevice        string      `json:"memory_device"`
}

var profiles = map[Target]Profile{
	MSM7625: {
		PreviewSizeMask: 0x3fc8, NeedsYV12: true,
		MaxZoom: 31, PreviewBuffers: 4, MaxSnapshotBuffers: 5,
		MaxPictureSize: params.Size{Width: 2048, Height: 1536},
		MemoryDevice:   "/dev/pmem_adsp",
	},
	MSM7625A: {
		PreviewSizeMask: 0x3fc8, NeedsYV12: true, HasAutoFocus: true,
		MaxZoom: 31, PreviewBuffers: 4, MaxSnapshotBuffers: 5, MaxFocusAreas: 1,
		MaxPictureSize: params.Size{Width: 2592, Height: 1944},
		MemoryDevice:   "/dev/pmem_adsp",
	},
	MSM7627: {
		PreviewSizeMask: 0x3ff8, NeedsYV12: true, HasAutoFocus: true,
		MaxZoom: 31, PreviewBuffers: 4, MaxSnapshotBuffers: 5, MaxFocusAreas: 1,
		MaxPictureSize: params.Size{Width: 2592, Height: 1944},
		MemoryDevice:   "/dev/pmem_adsp",
	},
	MSM7627A: {
		PreviewSizeMask: 0x3ff8, NeedsYV12: true, HasAutoFocus: true,
		MaxZoom: 31, PreviewBuffers: 4, MaxSnapshotBuffers: 5, MaxFocusAreas: 1,
		MaxPictureSize: params.Size{Width: 2592, Height: 1944},
		MemoryDevice:   "/dev/ion",
	},
	QSD8250: {
		PreviewSizeMask: 0x3ff8, HasAutoFocus: true,
		MaxZoom: 31, PreviewBuffers: 4, MaxSnapshotBuffers: 5, MaxFocusAreas: 1,
		MaxPictureSize: params.Size{Width: 3264, Height: 2448},
		MemoryDevice:   "/dev/pmem_smipool",
	},
	MSM7630: {
		PreviewSizeMask: 0x3ffe, HasSceneDetect: true, HasSelectableZoneAf: true,
		HasAutoFocus: true, DualVFE: true, SupportsHFR: true,
		MaxZoom: MaxZoomRatios, PreviewBuffers: 4, RecordBuffers: 6, MaxSnapshotBuffers: 5,
		MaxFocusAreas:  1,
		MaxPictureSize: params.Size{Width: 3264, Height: 2448},
		MemoryDevice:   "/dev/pmem_adsp",
	},
	MSM8660: {
		PreviewSizeMask: 0x3fff, HasSceneDetect: true, HasSelectableZoneAf: true,
		HasFaceDetect: true, HasAutoFocus: true, DualVFE: true, SupportsZSL: true,
		SupportsHFR: true, MaxZoom: MaxZoomRatios, PreviewBuffers: 4, RecordBuffers: 6,
		MaxSnapshotBuffers: 5, ZSLExtraBuffers: 3, MaxFocusAreas: 1,
		MaxPictureSize: params.Size{Width: 4000, Height: 3000},
		MemoryDevice:   "/dev/ion",
	},
}

// Lookup returns the profile for a target name such as "msm7627a"
func Lookup(name string) (Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range targetNames {
		if n == name {
			p := profiles[t]
			p.Target = t
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown target %q", name)
}

// Targets lists every supported target name
func Targets() []string {
	out := make([]string, 0, len(targetNames))
	for t := MSM7625; t <= MSM8660; t++ {
		out = append(out, targetNames[t])
	}
	return out
}

// PreviewSizes returns the preview sizes enabled by the mask
func (p Profile) PreviewSizes() []params.Size {
	var out []params.Size
	for i, s := range params.PreviewSizes {
		if p.PreviewSizeMask&(1<<uint(i)) != 0 {
			out = append(out, s)
		}
	}
	return out
}

// PictureSizes returns the picture sizes the sensor can produce. With zero
// shutter lag on, the reduced list applies.
func (p Profile) PictureSizes(zsl bool) []params.Size {
	src := params.PictureSizes
	if zsl {
		src = params.ZSLPictureSizes
	}
	var out []params.Size
	for _, s := range src {
		if s.Width <= p.MaxPictureSize.Width && s.Height <= p.MaxPictureSize.Height {
			out = append(out, s)
		}
	}
	return out
}

// VideoSizes returns the recording sizes. Single-VFE targets record at preview
// sizes only.
func (p Profile) VideoSizes() []params.Size {
	if !p.DualVFE {
		return p.PreviewSizes()
	}
	return params.VideoSizes
}

// MaxBurst is the largest snapshot burst: two of the snapshot buffers are
// reserved for the thumbnail and postview
func (p Profile) MaxBurst() int {
	n := p.MaxSnapshotBuffers - 2
	if n < 1 {
		n = 1
	}
	return n
}

// ZoomRatios returns the zoom table as percent values, 1x to 4x
func (p Profile) ZoomRatios() []int {
	if p.MaxZoom <= 1 {
		return []int{100}
	}
	out := make([]int, p.MaxZoom)
	for i := range out {
		out[i] = 100 + i*300/(p.MaxZoom-1)
	}
	return out
}
