package params

// Parameter keys. The names are part of the host contract and must not change.
const (
	KeyPreviewSize             = "preview-size"
	KeyPreviewSizeValues       = "preview-size-values"
	KeyPreviewFormat           = "preview-format"
	KeyPreviewFormatValues     = "preview-format-values"
	KeyPreviewFrameRate        = "preview-frame-rate"
	KeyPreviewFrameRateValues  = "preview-frame-rate-values"
	KeyPreviewFrameRateMode    = "preview-frame-rate-mode"
	KeyPreviewFrameRateModes   = "preview-frame-rate-modes"
	KeyPreviewFpsRange         = "preview-fps-range"
	KeyPreviewFpsRangeValues   = "preview-fps-range-values"
	KeyPictureSize             = "picture-size"
	KeyPictureSizeValues       = "picture-size-values"
	KeyPictureFormat           = "picture-format"
	KeyPictureFormatValues     = "picture-format-values"
	KeyVideoSize               = "video-size"
	KeyVideoSizeValues         = "video-size-values"
	KeyPreferredPreviewForVid  = "preferred-preview-size-for-video"
	KeyVideoFrameFormat        = "video-frame-format"
	KeyJpegThumbnailWidth      = "jpeg-thumbnail-width"
	KeyJpegThumbnailHeight     = "jpeg-thumbnail-height"
	KeyJpegThumbnailSizeValues = "jpeg-thumbnail-size-values"
	KeyJpegThumbnailQuality    = "jpeg-thumbnail-quality"
	KeyJpegQuality             = "jpeg-quality"
	KeyRotation                = "rotation"
	KeyOrientation             = "orientation"
	KeyCameraMode              = "camera-mode"

	KeyGpsLatitude         = "gps-latitude"
	KeyGpsLatitudeRef      = "gps-latitude-ref"
	KeyGpsLongitude        = "gps-longitude"
	KeyGpsLongitudeRef     = "gps-longitude-ref"
	KeyGpsAltitude         = "gps-altitude"
	KeyGpsAltitudeRef      = "gps-altitude-ref"
	KeyGpsTimestamp        = "gps-timestamp"
	KeyGpsProcessingMethod = "gps-processing-method"
	KeyGpsStatus           = "gps-status"
	KeyExifDateTime        = "exif-datetime"

	KeyEffect                 = "effect"
	KeyEffectValues           = "effect-values"
	KeyWhiteBalance           = "whitebalance"
	KeyWhiteBalanceValues     = "whitebalance-values"
	KeyAntibanding            = "antibanding"
	KeyAntibandingValues      = "antibanding-values"
	KeySceneMode              = "scene-mode"
	KeySceneModeValues        = "scene-mode-values"
	KeySceneDetect            = "scene-detect"
	KeySceneDetectValues      = "scene-detect-values"
	KeyFlashMode              = "flash-mode"
	KeyFlashModeValues        = "flash-mode-values"
	KeyFocusMode              = "focus-mode"
	KeyFocusModeValues        = "focus-mode-values"
	KeyFocusAreas             = "focus-areas"
	KeyMaxNumFocusAreas       = "max-num-focus-areas"
	KeyMeteringAreas          = "metering-areas"
	KeyMaxNumMeteringAreas    = "max-num-metering-areas"
	KeyFocalLength            = "focal-length"
	KeyHorizontalViewAngle    = "horizontal-view-angle"
	KeyVerticalViewAngle      = "vertical-view-angle"
	KeyFocusDistances         = "focus-distances"
	KeyExposureCompensation   = "exposure-compensation"
	KeyMaxExposureComp        = "max-exposure-compensation"
	KeyMinExposureComp        = "min-exposure-compensation"
	KeyExposureCompStep       = "exposure-compensation-step"
	KeyAutoExposure           = "auto-exposure"
	KeyAutoExposureValues     = "auto-exposure-values"
	KeyZoom                   = "zoom"
	KeyMaxZoom                = "max-zoom"
	KeyZoomRatios             = "zoom-ratios"
	KeyZoomSupported          = "zoom-supported"
	KeySmoothZoomSupported    = "smooth-zoom-supported"
	KeyISO                    = "iso"
	KeyISOValues              = "iso-values"
	KeyLensShade              = "lensshade"
	KeyLensShadeValues        = "lensshade-values"
	KeyMCE                    = "mce"
	KeyMCEValues              = "mce-values"
	KeyTouchAfAec             = "touch-af-aec"
	KeyTouchAfAecValues       = "touch-af-aec-values"
	KeyTouchIndexAec          = "touch-index-aec"
	KeyTouchIndexAf           = "touch-index-af"
	KeySelectableZoneAf       = "selectable-zone-af"
	KeySelectableZoneAfValues = "selectable-zone-af-values"
	KeySharpness              = "sharpness"
	KeyMaxSharpness           = "max-sharpness"
	KeyContrast               = "contrast"
	KeyMaxContrast            = "max-contrast"
	KeySaturation             = "saturation"
	KeyMaxSaturation          = "max-saturation"
	KeyBrightness             = "luma-adaptation"
	KeyHistogram              = "histogram"
	KeyHistogramValues        = "histogram-values"
	KeySkinTone               = "skinToneEnhancement"
	KeySkinToneValues         = "skinToneEnhancement-values"
	KeyDenoise                = "denoise"
	KeyDenoiseValues          = "denoise-values"
	KeyRedeyeReduction        = "redeye-reduction"
	KeyRedeyeReductionValues  = "redeye-reduction-values"
	KeyFaceDetection          = "face-detection"
	KeyFaceDetectionValues    = "face-detection-values"
	KeyMaxFacesHW             = "max-num-detected-faces-hw"
	KeyHFR                    = "video-hfr"
	KeyHFRValues              = "video-hfr-values"
	KeyHFRSizeValues          = "hfr-size-values"
	KeyZSL                    = "zsl"
	KeyZSLValues              = "zsl-values"
	KeyNumSnapsPerShutter     = "num-snaps-per-shutter"
	KeyAEBracketHDR           = "ae-bracket-hdr"
	KeyAEBracketHDRValues     = "ae-bracket-hdr-values"
	KeyRecordingHint          = "recording-hint"
	KeyVideoSnapshotSupported = "video-snapshot-supported"
)

// GpsKeys are removed from the current parameters when a new set omits them
var GpsKeys = []string{
	KeyGpsLatitude, KeyGpsLatitudeRef, KeyGpsLongitude, KeyGpsLongitudeRef,
	KeyGpsAltitude, KeyGpsAltitudeRef, KeyGpsTimestamp, KeyGpsProcessingMethod,
	KeyGpsStatus,
}

// Ranges and defaults for numeric controls
const (
	MinExposureCompensation = -12
	MaxExposureCompensation = 12
	ExposureCompDenominator = 6
	ExposureCompStep        = 1.0 / ExposureCompDenominator

	MinFPS     = 5
	MaxFPS     = 30
	DefaultFPS = 30

	MinBrightness     = 0
	MaxBrightness     = 6
	DefaultBrightness = 3

	MinContrast     = 0
	MaxContrast     = 10
	DefaultContrast = 5

	MinSaturation     = 0
	MaxSaturation     = 10
	DefaultSaturation = 5

	MinSharpness     = 0
	MaxSharpness     = 30
	SharpnessStep    = 2
	DefaultSharpness = 10

	DefaultJpegQuality      = 85
	DefaultThumbnailQuality = 50

	AreaMin       = -1000
	AreaMax       = 1000
	AreaWeightMin = 1
	AreaWeightMax = 1000

	// ClearArea resets focus or metering areas
	ClearArea = "(0,0,0,0,0)"
)
