package v4l2

import (
	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/params"
)

// Control ids from linux/v4l2-controls.h
const (
	cidBrightness       uint32 = 0x00980900
	cidContrast         uint32 = 0x00980901
	cidSaturation       uint32 = 0x00980902
	cidAutoWhiteBalance uint32 = 0x0098090c
	cidPowerLineFreq    uint32 = 0x00980918
	cidWhiteBalanceTemp uint32 = 0x0098091a
	cidSharpness        uint32 = 0x0098091b
	cidFocusAuto        uint32 = 0x009a090c
	cidZoomAbsolute     uint32 = 0x009a090d
)

// setting is one control write. A non-empty engine range [lo, hi] is scaled
// onto the device range; otherwise value is written as is.
type setting struct {
	id     uint32
	value  int32
	lo, hi int32
}

func (s setting) scaled() bool { return s.lo < s.hi }

// scale maps v from [lo, hi] onto the device range [dmin, dmax]
func scale(v, lo, hi, dmin, dmax int32) int32 {
	if v <= lo {
		return dmin
	}
	if v >= hi {
		return dmax
	}
	return dmin + int32(int64(v-lo)*int64(dmax-dmin)/int64(hi-lo))
}

var whiteBalanceTemps = map[int32]int32{
	3: 2800, // incandescent
	4: 4000, // fluorescent
	5: 5500, // daylight
	6: 6500, // cloudy-daylight
}

// powerLineFreqs maps antibanding values onto V4L2_CID_POWER_LINE_FREQUENCY
var powerLineFreqs = map[int32]int32{0: 0, 1: 2, 2: 1, 3: 3}

// settingsFor translates an engine control into device writes. ok is false
// for controls a UVC device has no equivalent of.
func settingsFor(p driver.Parm, v int32, zoomSteps int) (out []setting, ok bool) {
	switch p {
	case driver.ParmBrightness:
		return []setting{{cidBrightness, v, params.MinBrightness, params.MaxBrightness}}, true
	case driver.ParmContrast:
		return []setting{{cidContrast, v, params.MinContrast, params.MaxContrast}}, true
	case driver.ParmSaturation:
		return []setting{{cidSaturation, v, params.MinSaturation, params.MaxSaturation}}, true
	case driver.ParmSharpness:
		return []setting{{cidSharpness, v, params.MinSharpness, params.MaxSharpness}}, true
	case driver.ParmZoom:
		return []setting{{cidZoomAbsolute, v, 0, int32(zoomSteps - 1)}}, true
	case driver.ParmAntibanding:
		f, known := powerLineFreqs[v]
		if !known {
			return nil, false
		}
		return []setting{{id: cidPowerLineFreq, value: f}}, true
	case driver.ParmWhiteBalance:
		temp, manual := whiteBalanceTemps[v]
		if !manual {
			return []setting{{id: cidAutoWhiteBalance, value: 1}}, true
		}
		return []setting{{id: cidAutoWhiteBalance, value: 0}, {id: cidWhiteBalanceTemp, value: temp}}, true
	case driver.ParmFocusMode:
		var auto int32
		if v == 3 || v == 4 { // continuous-picture, continuous-video
			auto = 1
		}
		return []setting{{id: cidFocusAuto, value: auto}}, true
	}
	return nil, false
}
