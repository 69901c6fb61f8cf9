package camera

import (
	"strconv"
	"strings"

	"github.com/video-system/go-camera-hal/pkg/board"
	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/display"
	"github.com/video-system/go-camera-hal/pkg/params"
)

// Lens characteristics reported to the host
const (
	focalLength         = 3.53
	horizontalViewAngle = 54.8
	verticalViewAngle   = 42.5
	focusDistances      = "0.10,1.20,Infinity"
	maxFacesHW          = 2
)

var previewFrameRates = []int{5, 10, 15, 20, 24, 30}

// optionalKeys may be set by the host even though they have no default
var optionalKeys = map[string]bool{
	params.KeyExifDateTime:           true,
	params.KeyPreferredPreviewForVid: true,
}

func init() {
	for _, k := range params.GpsKeys {
		optionalKeys[k] = true
	}
}

// defaultParameters builds the full parameter set advertised for a board
func defaultParameters(b board.Profile) *params.Parameters {
	p := params.New()

	previews := b.PreviewSizes()
	preview := params.DefaultPreviewSize
	if !params.ContainsSize(previews, preview) && len(previews) > 0 {
		preview = previews[len(previews)/2]
	}
	p.SetSize(params.KeyPreviewSize, preview)
	p.Set(params.KeyPreviewSizeValues, params.SizeList(previews))
	p.Set(params.KeyPreviewFormat, display.FormatNV21.String())
	if b.NeedsYV12 {
		p.Set(params.KeyPreviewFormatValues, display.FormatYV12.String())
	} else {
		p.Set(params.KeyPreviewFormatValues, params.PreviewFormats.Values())
	}
	p.SetInt(params.KeyPreviewFrameRate, params.DefaultFPS)
	p.Set(params.KeyPreviewFrameRateValues, joinInts(previewFrameRates))
	p.Set(params.KeyPreviewFrameRateMode, params.FrameRateModes[0].Name)
	p.Set(params.KeyPreviewFrameRateModes, params.FrameRateModes.Values())
	fpsRange := strconv.Itoa(params.MinFPS*1000) + "," + strconv.Itoa(params.MaxFPS*1000)
	p.Set(params.KeyPreviewFpsRange, fpsRange)
	p.Set(params.KeyPreviewFpsRangeValues, "("+fpsRange+")")

	p.SetSize(params.KeyPictureSize, params.DefaultPictureSize)
	p.Set(params.KeyPictureSizeValues, params.SizeList(b.PictureSizes(false)))
	p.Set(params.KeyPictureFormat, "jpeg")
	p.Set(params.KeyPictureFormatValues, params.PictureFormats.Values())

	p.SetSize(params.KeyVideoSize, preview)
	p.Set(params.KeyVideoSizeValues, params.SizeList(b.VideoSizes()))
	if b.DualVFE {
		p.SetSize(params.KeyPreferredPreviewForVid, params.DefaultPreviewSize)
	}
	p.Set(params.KeyVideoFrameFormat, display.FormatNV21.String())
	p.Set(params.KeyVideoSnapshotSupported, "true")

	thumb := params.ThumbnailForPicture(params.DefaultPictureSize)
	p.SetInt(params.KeyJpegThumbnailWidth, thumb.Width)
	p.SetInt(params.KeyJpegThumbnailHeight, thumb.Height)
	p.Set(params.KeyJpegThumbnailSizeValues, params.SizeList(params.JpegThumbnailSizes))
	p.SetInt(params.KeyJpegThumbnailQuality, params.DefaultThumbnailQuality)
	p.SetInt(params.KeyJpegQuality, params.DefaultJpegQuality)
	p.SetInt(params.KeyRotation, 0)
	p.Set(params.KeyOrientation, "landscape")
	p.SetInt(params.KeyCameraMode, 0)

	p.Set(params.KeyEffect, "none")
	p.Set(params.KeyEffectValues, params.Effects.Values())
	p.Set(params.KeyWhiteBalance, "auto")
	p.Set(params.KeyWhiteBalanceValues, params.WhiteBalance.Values())
	p.Set(params.KeyAntibanding, "off")
	p.Set(params.KeyAntibandingValues, params.Antibanding.Values())
	p.Set(params.KeySceneMode, params.SceneModeAuto)
	p.Set(params.KeySceneModeValues, params.SceneModes.Values())
	if b.HasSceneDetect {
		p.Set(params.KeySceneDetect, "off")
		p.Set(params.KeySceneDetectValues, params.SceneDetect.Values())
	}
	p.Set(params.KeyFlashMode, "off")
	p.Set(params.KeyFlashModeValues, params.FlashModes.Values())

	if b.HasAutoFocus {
		p.Set(params.KeyFocusMode, params.FocusModeAuto)
		p.Set(params.KeyFocusModeValues, params.FocusModes.Values())
	} else {
		p.Set(params.KeyFocusMode, params.FocusModeInfinity)
		p.Set(params.KeyFocusModeValues, params.FocusModeInfinity)
	}
	p.SetInt(params.KeyMaxNumFocusAreas, b.MaxFocusAreas)
	p.SetInt(params.KeyMaxNumMeteringAreas, b.MaxFocusAreas)
	if b.MaxFocusAreas > 0 {
		p.Set(params.KeyFocusAreas, params.ClearArea)
		p.Set(params.KeyMeteringAreas, params.ClearArea)
	}
	p.SetFloat(params.KeyFocalLength, focalLength)
	p.SetFloat(params.KeyHorizontalViewAngle, horizontalViewAngle)
	p.SetFloat(params.KeyVerticalViewAngle, verticalViewAngle)
	p.Set(params.KeyFocusDistances, focusDistances)

	p.SetInt(params.KeyExposureCompensation, 0)
	p.SetInt(params.KeyMaxExposureComp, params.MaxExposureCompensation)
	p.SetInt(params.KeyMinExposureComp, params.MinExposureCompensation)
	p.Set(params.KeyExposureCompStep, strconv.FormatFloat(params.ExposureCompStep, 'f', 6, 64))
	p.Set(params.KeyAutoExposure, params.AutoExposure[0].Name)
	p.Set(params.KeyAutoExposureValues, params.AutoExposure.Values())

	p.SetInt(params.KeyZoom, 0)
	p.SetInt(params.KeyMaxZoom, b.MaxZoom-1)
	p.Set(params.KeyZoomRatios, joinInts(b.ZoomRatios()))
	p.Set(params.KeyZoomSupported, "true")
	p.Set(params.KeySmoothZoomSupported, "true")

	p.Set(params.KeyISO, "auto")
	p.Set(params.KeyISOValues, params.ISOModes.Values())
	p.Set(params.KeyLensShade, "enable")
	p.Set(params.KeyLensShadeValues, params.LensShade.Values())
	p.Set(params.KeyMCE, "enable")
	p.Set(params.KeyMCEValues, params.MCE.Values())
	p.Set(params.KeyTouchAfAec, "touch-off")
	p.Set(params.KeyTouchAfAecValues, params.TouchAfAec.Values())
	p.Set(params.KeyTouchIndexAec, "-1,-1")
	p.Set(params.KeyTouchIndexAf, "-1,-1")
	if b.HasSelectableZoneAf {
		p.Set(params.KeySelectableZoneAf, "auto")
		p.Set(params.KeySelectableZoneAfValues, params.SelectableZoneAf.Values())
	}

	p.SetInt(params.KeySharpness, params.DefaultSharpness)
	p.SetInt(params.KeyMaxSharpness, params.MaxSharpness)
	p.SetInt(params.KeyContrast, params.DefaultContrast)
	p.SetInt(params.KeyMaxContrast, params.MaxContrast)
	p.SetInt(params.KeySaturation, params.DefaultSaturation)
	p.SetInt(params.KeyMaxSaturation, params.MaxSaturation)
	p.SetInt(params.KeyBrightness, params.DefaultBrightness)

	p.Set(params.KeyHistogram, "disable")
	p.Set(params.KeyHistogramValues, params.Histogram.Values())
	p.Set(params.KeySkinTone, "disable")
	p.Set(params.KeySkinToneValues, params.SkinTone.Values())
	p.Set(params.KeyDenoise, "denoise-off")
	p.Set(params.KeyDenoiseValues, params.Denoise.Values())
	p.Set(params.KeyRedeyeReduction, "disable")
	p.Set(params.KeyRedeyeReductionValues, params.RedeyeReduction.Values())
	if b.HasFaceDetect {
		p.Set(params.KeyFaceDetection, "off")
		p.Set(params.KeyFaceDetectionValues, params.FaceDetection.Values())
		p.SetInt(params.KeyMaxFacesHW, maxFacesHW)
	} else {
		p.SetInt(params.KeyMaxFacesHW, 0)
	}
	if b.SupportsHFR {
		p.Set(params.KeyHFR, "off")
		p.Set(params.KeyHFRValues, params.HFRModes.Values())
		p.Set(params.KeyHFRSizeValues, params.SizeList(params.HFRSizes))
	}
	if b.SupportsZSL {
		p.Set(params.KeyZSL, "off")
		p.Set(params.KeyZSLValues, params.ZSLModes.Values())
	}
	p.SetInt(params.KeyNumSnapsPerShutter, 1)
	p.Set(params.KeyAEBracketHDR, params.AEBracket[0].Name)
	p.Set(params.KeyAEBracketHDRValues, params.AEBracket.Values())
	p.Set(params.KeyRecordingHint, "false")
	return p
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}

// GetParameters returns a copy of the current parameters
func (s *Session) GetParameters() *params.Parameters {
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	return s.params.Clone()
}

// PutParameters gives back a set obtained from GetParameters. Copies are
// garbage collected, so there is nothing to free.
func (s *Session) PutParameters(*params.Parameters) {}

// dimension collects the geometry the driver needs for the next stream
func (s *Session) dimension() driver.Dimension {
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	p := s.params
	preview, _ := p.Size(params.KeyPreviewSize)
	video, ok := p.Size(params.KeyVideoSize)
	if !ok {
		video = preview
	}
	picture, _ := p.Size(params.KeyPictureSize)
	format, _ := params.PreviewFormats.Lookup(p.Get(params.KeyPreviewFormat))
	return driver.Dimension{
		Preview:       preview,
		Video:         video,
		Picture:       picture,
		Thumbnail:     params.Size{Width: p.GetInt(params.KeyJpegThumbnailWidth), Height: p.GetInt(params.KeyJpegThumbnailHeight)},
		PreviewFormat: uint32(format),
	}
}

func (s *Session) videoSize() params.Size {
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	v, ok := s.params.Size(params.KeyVideoSize)
	if !ok {
		v, _ = s.params.Size(params.KeyPreviewSize)
	}
	return v
}

func (s *Session) zslEnabled() bool {
	if !s.board.SupportsZSL {
		return false
	}
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	return s.params.Get(params.KeyZSL) == "on"
}

func (s *Session) focusMode() string {
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	return s.params.Get(params.KeyFocusMode)
}

// numSnapshotsLocked returns the burst size clamped to what the board can
// hold. s.paramsMu must be held.
func (s *Session) numSnapshotsLocked() int {
	n := s.params.GetInt(params.KeyNumSnapsPerShutter)
	return clamp(n, 1, s.board.MaxBurst())
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
