package camera

import (
	"errors"
	"testing"

	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/params"
)

func TestDefaultParametersRoundTrip(t *testing.T) {
	for _, target := range []string{"msm7625", "msm7627a", "qsd8250", "msm7630", "msm8660"} {
		t.Run(target, func(t *testing.T) {
			s, _ := newTestSession(t, target, Options{}, driver.Options{})
			before := s.GetParameters()
			if err := s.SetParameters(before.Clone()); err != nil {
				t.Fatalf("defaults rejected: %v", err)
			}
			after := s.GetParameters()
			if before.Flatten() != after.Flatten() {
				t.Errorf("defaults changed on round trip:\n%s\n%s", before.Flatten(), after.Flatten())
			}
		})
	}
}

func TestParameterRoundTrip(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{params.KeyEffect, "mono"},
		{params.KeyWhiteBalance, "daylight"},
		{params.KeyBrightness, "5"},
		{params.KeySharpness, "12"},
		{params.KeyContrast, "7"},
		{params.KeySaturation, "2"},
		{params.KeyExposureCompensation, "-6"},
		{params.KeyISO, "ISO400"},
		{params.KeyAntibanding, "50hz"},
		{params.KeyJpegQuality, "70"},
		{params.KeyJpegThumbnailQuality, "30"},
		{params.KeyPictureSize, "1280x720"},
		{params.KeyPreviewSize, "800x480"},
		{params.KeyZoom, "10"},
		{params.KeyFocusMode, "macro"},
		{params.KeyFocusAreas, "(-100,-100,100,100,500)"},
		{params.KeyMeteringAreas, "(0,0,500,500,1)"},
		{params.KeyRotation, "90"},
		{params.KeyFlashMode, "torch"},
		{params.KeyPreviewFpsRange, "10000,20000"},
		{params.KeyPreviewFrameRate, "15"},
		{params.KeyNumSnapsPerShutter, "2"},
		{params.KeyRecordingHint, "true"},
		{params.KeyPictureFormat, "raw"},
		{params.KeyTouchIndexAf, "100,200"},
		{params.KeyDenoise, "denoise-on"},
		{params.KeyAEBracketHDR, "HDR"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			s, _ := newTestSession(t, "qsd8250", Options{}, driver.Options{})
			p := s.GetParameters()
			p.Set(tt.key, tt.value)
			if err := s.SetParameters(p); err != nil {
				t.Fatalf("set %s=%s: %v", tt.key, tt.value, err)
			}
			if got := s.GetParameters().Get(tt.key); got != tt.value {
				t.Errorf("%s = %q, want %q", tt.key, got, tt.value)
			}
		})
	}
}

func TestSetParametersRejectsWithoutMutation(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{params.KeyBrightness, "9"},
		{params.KeySharpness, "11"},
		{params.KeyContrast, "-1"},
		{params.KeyExposureCompensation, "13"},
		{params.KeyEffect, "vintage"},
		{params.KeyPreviewSize, "123x45"},
		{params.KeyPictureSize, "big"},
		{params.KeyJpegQuality, "0"},
		{params.KeyZoom, "31"},
		{params.KeyRotation, "45"},
		{params.KeyFocusAreas, "(0,0,0,0,0),(-10,-10,10,10,1)"},
		{params.KeyFocusAreas, "(10,10,-10,-10,1)"},
		{params.KeyPreviewFpsRange, "30000,5000"},
		{params.KeyNumSnapsPerShutter, "0"},
		{params.KeyGpsLatitude, "91"},
		{params.KeyFocusMode, "continuous-sideways"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			s, _ := newTestSession(t, "qsd8250", Options{}, driver.Options{})
			before := s.GetParameters()
			p := before.Clone()
			p.Set(tt.key, tt.value)
			err := s.SetParameters(p)
			if !errors.Is(err, ErrBadValue) {
				t.Fatalf("set %s=%s: got %v, want bad value", tt.key, tt.value, err)
			}
			if Status(err) != StatusBadValue {
				t.Errorf("status %d", Status(err))
			}
			got, had := s.GetParameters().Lookup(tt.key)
			want, wanted := before.Lookup(tt.key)
			if got != want || had != wanted {
				t.Errorf("%s changed to %q (was %q)", tt.key, got, want)
			}
		})
	}
}

func TestLastErrorWinsAndOthersApply(t *testing.T) {
	s, _ := newTestSession(t, "qsd8250", Options{}, driver.Options{})
	p := s.GetParameters()
	p.Set(params.KeyEffect, "bogus")
	p.Set(params.KeyWhiteBalance, "cloudy-daylight")
	p.SetInt(params.KeyBrightness, 99)

	err := s.SetParameters(p)
	if !errors.Is(err, ErrBadValue) {
		t.Fatalf("got %v", err)
	}
	q := s.GetParameters()
	if q.Get(params.KeyWhiteBalance) != "cloudy-daylight" {
		t.Error("valid setting skipped after an earlier failure")
	}
	if q.GetInt(params.KeyBrightness) != params.DefaultBrightness {
		t.Error("invalid brightness applied")
	}
}

func TestUnsupportedControlIsSkipped(t *testing.T) {
	s, drv := newTestSession(t, "qsd8250", Options{}, driver.Options{Unsupported: []driver.Parm{driver.ParmEffect}})
	p := s.GetParameters()
	p.Set(params.KeyEffect, "mono")
	if err := s.SetParameters(p); err != nil {
		t.Fatalf("unsupported control failed the batch: %v", err)
	}
	if got := s.GetParameters().Get(params.KeyEffect); got != "none" {
		t.Errorf("effect %q", got)
	}
	if _, ok := drv.Parm(driver.ParmEffect); ok {
		t.Error("unsupported control reached the driver")
	}
}

func TestSceneModeGatesManualControls(t *testing.T) {
	s, _ := newTestSession(t, "qsd8250", Options{}, driver.Options{})
	p := s.GetParameters()
	p.Set(params.KeySceneMode, "night")
	if err := s.SetParameters(p); err != nil {
		t.Fatal(err)
	}

	p = s.GetParameters()
	p.Set(params.KeyWhiteBalance, "daylight")
	if err := s.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	if got := s.GetParameters().Get(params.KeyWhiteBalance); got != "auto" {
		t.Errorf("white balance %q applied outside auto scene", got)
	}
}

func TestGPSKeysRemovedWhenOmitted(t *testing.T) {
	s, _ := newTestSession(t, "qsd8250", Options{}, driver.Options{})
	p := s.GetParameters()
	p.Set(params.KeyGpsLatitude, "37.422")
	p.Set(params.KeyGpsLongitude, "-122.084")
	p.Set(params.KeyGpsTimestamp, "1199145600")
	if err := s.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	if got := s.GetParameters().Get(params.KeyGpsLatitude); got != "37.422" {
		t.Fatalf("latitude %q", got)
	}

	q := s.GetParameters()
	q.Remove(params.KeyGpsLatitude)
	q.Remove(params.KeyGpsLongitude)
	q.Remove(params.KeyGpsTimestamp)
	if err := s.SetParameters(q); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{params.KeyGpsLatitude, params.KeyGpsLongitude, params.KeyGpsTimestamp} {
		if s.GetParameters().Has(k) {
			t.Errorf("%s kept after being omitted", k)
		}
	}
}

func TestPictureSizePicksThumbnail(t *testing.T) {
	s, _ := newTestSession(t, "qsd8250", Options{}, driver.Options{})
	p := s.GetParameters()
	p.Set(params.KeyPictureSize, "1280x720")
	p.Remove(params.KeyJpegThumbnailWidth)
	p.Remove(params.KeyJpegThumbnailHeight)
	if err := s.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	q := s.GetParameters()
	if w, h := q.GetInt(params.KeyJpegThumbnailWidth), q.GetInt(params.KeyJpegThumbnailHeight); w != 512 || h != 288 {
		t.Errorf("thumbnail %dx%d for a 16:9 picture", w, h)
	}
}

func TestVideoSizeFollowsPreviewOnSingleVFE(t *testing.T) {
	s, _ := newTestSession(t, "qsd8250", Options{}, driver.Options{})
	p := s.GetParameters()
	p.Set(params.KeyPreviewSize, "320x240")
	p.Set(params.KeyVideoSize, "1280x720")
	if err := s.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	if got := s.GetParameters().Get(params.KeyVideoSize); got != "320x240" {
		t.Errorf("video size %q", got)
	}
}

func TestDualVFEPreviewNeverExceedsVideo(t *testing.T) {
	s, _ := newTestSession(t, "msm7630", Options{}, driver.Options{})
	p := s.GetParameters()
	p.Set(params.KeyPreviewSize, "800x480")
	p.Set(params.KeyVideoSize, "320x240")
	if err := s.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	q := s.GetParameters()
	if q.Get(params.KeyVideoSize) != "320x240" || q.Get(params.KeyPreviewSize) != "320x240" {
		t.Errorf("preview %s video %s", q.Get(params.KeyPreviewSize), q.Get(params.KeyVideoSize))
	}
}

func TestFocusAreasReachDriverWhilePreviewing(t *testing.T) {
	s, drv := newTestSession(t, "qsd8250", Options{}, driver.Options{})
	startPreview(t, s)

	p := s.GetParameters()
	p.Set(params.KeyFocusAreas, "(-1000,-1000,0,0,100)")
	if err := s.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	regions := drv.Areas(driver.AreaFocus)
	if len(regions) != 1 {
		t.Fatalf("regions %+v", regions)
	}
	if r := regions[0]; r.X != 0 || r.Y != 0 || r.DX != 320 || r.DY != 240 || r.Weight != 100 {
		t.Errorf("region %+v", r)
	}

	p.Set(params.KeyFocusAreas, params.ClearArea)
	if err := s.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	if regions := drv.Areas(driver.AreaFocus); len(regions) != 0 {
		t.Errorf("clear left %+v", regions)
	}
}

func TestHFRChangeRestartsPreview(t *testing.T) {
	s, _ := newTestSession(t, "msm7630", Options{}, driver.Options{})
	startPreview(t, s)

	p := s.GetParameters()
	p.Set(params.KeyHFR, "60")
	if err := s.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	s.hfrWorker.wait()
	if s.State() != StatePreviewRunning {
		t.Errorf("state %s after hfr restart", s.State())
	}
	if d := s.hfrDivisor.Load(); d != 2 {
		t.Errorf("divisor %d", d)
	}
}
