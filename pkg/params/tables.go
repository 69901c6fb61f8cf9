package params

import "strings"

// Entry maps a parameter value name onto the driver value
type Entry struct {
	Name  string
	Value int
}

// Table is an ordered name to value mapping
type Table []Entry

// Lookup returns the driver value for name
func (t Table) Lookup(name string) (int, bool) {
	for _, e := range t {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

// Name returns the first name mapped to value
func (t Table) Name(value int) (string, bool) {
	for _, e := range t {
		if e.Value == value {
			return e.Name, true
		}
	}
	return "", false
}

// Values joins the names the way "*-values" keys advertise them
func (t Table) Values() string {
	names := make([]string, len(t))
	for i, e := range t {
		names[i] = e.Name
	}
	return strings.Join(names, ",")
}

// Filter keeps entries accepted by keep
func (t Table) Filter(keep func(Entry) bool) Table {
	var out Table
	for _, e := range t {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

const (
	off = 0
	on  = 1
)

var Effects = Table{
	{"none", 0}, {"mono", 1}, {"negative", 2}, {"solarize", 3}, {"sepia", 4},
	{"posterize", 5}, {"whiteboard", 6}, {"blackboard", 7}, {"aqua", 8},
	{"emboss", 9}, {"sketch", 10}, {"neon", 11},
}

// ISO values; HJR is hand-jitter reduction (deblur)
var ISOModes = Table{
	{"auto", 0}, {"ISO_HJR", 1}, {"ISO100", 2}, {"ISO200", 3}, {"ISO400", 4},
	{"ISO800", 5}, {"ISO1600", 6},
}

// ISOSpeeds indexes ISOModes values to the Exif ISO speed
var ISOSpeeds = []int{0, 1, 100, 200, 400, 800, 1600}

const SceneModeAuto = "auto"

var SceneModes = Table{
	{SceneModeAuto, 0}, {"asd", 1}, {"action", 2}, {"portrait", 3},
	{"landscape", 4}, {"night", 5}, {"night-portrait", 6}, {"theatre", 7},
	{"beach", 8}, {"snow", 9}, {"sunset", 10}, {"steadyphoto", 11},
	{"fireworks", 12}, {"sports", 13}, {"party", 14}, {"candlelight", 15},
	{"backlight", 16}, {"flowers", 17}, {"AR", 18},
}

var SceneDetect = Table{{"off", off}, {"on", on}}

const (
	FocusModeAuto     = "auto"
	FocusModeInfinity = "infinity"
	focusDontCare     = 6
)

var FocusModes = Table{
	{FocusModeAuto, 0}, {FocusModeInfinity, focusDontCare}, {"normal", 1},
	{"macro", 2}, {"continuous-picture", 3}, {"continuous-video", 4},
}

// FocusModeNeedsDriver reports whether a focus mode issues an autofocus command
func FocusModeNeedsDriver(mode string) bool {
	v, ok := FocusModes.Lookup(mode)
	return ok && v != focusDontCare
}

var SelectableZoneAf = Table{
	{"auto", 0}, {"spot-metering", 1}, {"center-weighted", 2}, {"frame-average", 3},
}

var AutoExposure = Table{
	{"frame-average", 0}, {"center-weighted", 1}, {"spot-metering", 2},
}

var WhiteBalance = Table{
	{"auto", 1}, {"incandescent", 3}, {"fluorescent", 4}, {"daylight", 5},
	{"cloudy-daylight", 6},
}

var Antibanding = Table{
	{"off", 0}, {"50hz", 2}, {"60hz", 1}, {"auto", 3},
}

var FrameRateModes = Table{
	{"frame-rate-auto", 0}, {"frame-rate-fixed", 1},
}

var TouchAfAec = Table{{"touch-off", off}, {"touch-on", on}}

// HFR values are the frame rate divisor relative to 30fps
var HFRModes = Table{
	{"off", 0}, {"60", 2}, {"90", 3}, {"120", 4},
}

var FlashModes = Table{
	{"off", 0}, {"auto", 1}, {"on", 2}, {"torch", 3},
}

var LensShade = Table{{"enable", on}, {"disable", off}}

var MCE = Table{{"enable", on}, {"disable", off}}

var Histogram = Table{{"enable", on}, {"disable", off}}

var SkinTone = Table{{"enable", on}, {"disable", off}}

var Denoise = Table{{"denoise-off", off}, {"denoise-on", on}}

var FaceDetection = Table{{"off", off}, {"on", on}}

var RedeyeReduction = Table{{"enable", on}, {"disable", off}}

const (
	PictureFormatJpeg = 1
	PictureFormatRaw  = 2
)

var PictureFormats = Table{{"jpeg", PictureFormatJpeg}, {"raw", PictureFormatRaw}}

var RecordingHints = Table{{"false", off}, {"true", on}}

// PreviewFormats map onto display pixel format codes
var PreviewFormats = Table{
	{"yuv420sp", 0x11}, {"yuv420sp-adreno", 0x108}, {"yv12", 0x32315659},
	{"yuv420p", 0x32315659}, {"nv12", 0x109},
}

var ZSLModes = Table{{"off", off}, {"on", on}}

var AEBracket = Table{
	{"Off", 0}, {"HDR", 1}, {"AE-Bracket", 2},
}

var Orientations = Table{{"portrait", 1}, {"landscape", 2}}
