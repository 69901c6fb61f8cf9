package v4l2

import (
	"testing"

	"github.com/video-system/go-camera-hal/pkg/driver"
)

func TestScale(t *testing.T) {
	tests := []struct {
		v, lo, hi, dmin, dmax, want int32
	}{
		{0, 0, 6, -64, 64, -64},
		{6, 0, 6, -64, 64, 64},
		{3, 0, 6, -64, 64, 0},
		{-1, 0, 6, 0, 255, 0},
		{9, 0, 6, 0, 255, 255},
		{15, 0, 30, 0, 7, 3},
	}
	for _, tt := range tests {
		if got := scale(tt.v, tt.lo, tt.hi, tt.dmin, tt.dmax); got != tt.want {
			t.Errorf("scale(%d, [%d,%d] -> [%d,%d]) = %d, want %d", tt.v, tt.lo, tt.hi, tt.dmin, tt.dmax, got, tt.want)
		}
	}
}

func TestSettingsFor(t *testing.T) {
	out, ok := settingsFor(driver.ParmBrightness, 4, 31)
	if !ok || len(out) != 1 || out[0].id != cidBrightness || !out[0].scaled() {
		t.Errorf("brightness %+v", out)
	}

	out, _ = settingsFor(driver.ParmZoom, 10, 31)
	if out[0].hi != 30 {
		t.Errorf("zoom range %+v", out[0])
	}

	out, _ = settingsFor(driver.ParmWhiteBalance, 5, 31)
	if len(out) != 2 || out[0].value != 0 || out[1].id != cidWhiteBalanceTemp || out[1].value != 5500 {
		t.Errorf("daylight %+v", out)
	}
	out, _ = settingsFor(driver.ParmWhiteBalance, 1, 31)
	if len(out) != 1 || out[0].id != cidAutoWhiteBalance || out[0].value != 1 {
		t.Errorf("auto white balance %+v", out)
	}

	out, _ = settingsFor(driver.ParmAntibanding, 2, 31)
	if out[0].value != 1 || out[0].scaled() {
		t.Errorf("50hz %+v", out)
	}
	if _, ok := settingsFor(driver.ParmAntibanding, 7, 31); ok {
		t.Error("unknown antibanding accepted")
	}

	out, _ = settingsFor(driver.ParmFocusMode, 3, 31)
	if out[0].value != 1 {
		t.Errorf("continuous focus %+v", out)
	}

	for _, p := range []driver.Parm{driver.ParmEffect, driver.ParmHFR, driver.ParmFPS} {
		if _, ok := settingsFor(p, 0, 31); ok {
			t.Errorf("%s mapped", p)
		}
	}
}
