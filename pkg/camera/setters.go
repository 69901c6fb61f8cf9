package camera

import (
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"

	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/params"
)

// setter validates one key, programs the driver and commits the value
type setter struct {
	key       string
	supported func(s *Session) bool
	sceneAuto bool // only applied while the scene mode is auto
	apply     func(c *setCtx) error
}

// setCtx carries one SetParameters call. req is the host's set, out the
// session's current parameters.
type setCtx struct {
	s   *Session
	req *params.Parameters
	out *params.Parameters
}

// SetParameters validates and applies a parameter set. Keys missing from p
// keep their current value, except the GPS keys which are removed. Every
// setter runs even after a failure; values already applied stay applied and
// the last failure is returned.
func (s *Session) SetParameters(p *params.Parameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	return s.setParametersLocked(p)
}

func (s *Session) setParametersLocked(req *params.Parameters) error {
	if req == nil {
		return fmt.Errorf("%w: nil parameters", ErrBadValue)
	}
	s.paramsMu.Lock()
	c := &setCtx{s: s, req: req, out: s.params}
	var last error
	for _, st := range setters {
		if st.supported != nil && !st.supported(s) {
			continue
		}
		if st.sceneAuto && c.out.Get(params.KeySceneMode) != params.SceneModeAuto {
			continue
		}
		if err := st.apply(c); err != nil {
			log.Printf("[params] Warning: %s: %v", st.key, err)
			last = err
		}
	}
	c.dropUnknown()
	restart := s.hfrChange
	s.hfrChange = false
	s.paramsMu.Unlock()

	if restart {
		s.scheduleHFRRestart()
	}
	return last
}

// dropUnknown logs keys the session does not know about
func (c *setCtx) dropUnknown() {
	for _, k := range c.req.Keys() {
		if !c.out.Has(k) && !optionalKeys[k] {
			log.Printf("[params] unknown key %q dropped", k)
		}
	}
}

func badValue(key, v string) error {
	return fmt.Errorf("%w: %s=%q", ErrBadValue, key, v)
}

// parm programs a sensor control. A control the driver lacks is logged and
// reported as not applied.
func (c *setCtx) parm(p driver.Parm, v int32) (bool, error) {
	if !c.s.drv.IsParmSupported(p) {
		log.Printf("[params] %s not supported by %s", p, c.s.drv.Name())
		return false, nil
	}
	if err := c.s.drv.SetParm(p, v); err != nil {
		return false, fmt.Errorf("%w: set %s: %v", ErrUnknown, p, err)
	}
	return true, nil
}

// tableSetter maps a named value through t onto a driver control. onApply,
// when set, runs with the driver value after the commit.
func tableSetter(key string, t params.Table, p driver.Parm, onApply func(s *Session, n int)) func(*setCtx) error {
	return func(c *setCtx) error {
		v, ok := c.req.Lookup(key)
		if !ok {
			return nil
		}
		n, ok := t.Lookup(v)
		if !ok {
			return badValue(key, v)
		}
		applied, err := c.parm(p, int32(n))
		if err != nil || !applied {
			return err
		}
		c.out.Set(key, v)
		if onApply != nil {
			onApply(c.s, n)
		}
		return nil
	}
}

// rangeSetter accepts integers in lo..hi that are a multiple of step
func rangeSetter(key string, lo, hi, step int, p driver.Parm) func(*setCtx) error {
	return func(c *setCtx) error {
		v, ok := c.req.Lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < lo || n > hi || (step > 1 && n%step != 0) {
			return badValue(key, v)
		}
		applied, err := c.parm(p, int32(n))
		if err != nil || !applied {
			return err
		}
		c.out.SetInt(key, n)
		return nil
	}
}

// storeSetter checks the value with valid and commits it without touching the driver
func storeSetter(key string, valid func(c *setCtx, v string) bool) func(*setCtx) error {
	return func(c *setCtx) error {
		v, ok := c.req.Lookup(key)
		if !ok {
			return nil
		}
		if !valid(c, v) {
			return badValue(key, v)
		}
		c.out.Set(key, v)
		return nil
	}
}

func inTable(t params.Table) func(*setCtx, string) bool {
	return func(_ *setCtx, v string) bool {
		_, ok := t.Lookup(v)
		return ok
	}
}

func hasSceneDetect(s *Session) bool { return s.board.HasSceneDetect }
func hasFaceDetect(s *Session) bool { return s.board.HasFaceDetect }
func hasZoneAf(s *Session) bool { return s.board.HasSelectableZoneAf }
func supportsZSL(s *Session) bool { return s.board.SupportsZSL }
func supportsHFR(s *Session) bool { return s.board.SupportsHFR }

// setters run in this order. Selectable zone AF and HFR come last because an
// HFR change restarts preview with everything else already applied.
var setters = []setter{
	{key: params.KeyCameraMode, apply: storeSetter(params.KeyCameraMode, func(_ *setCtx, v string) bool {
		return v == "0" || v == "1"
	})},
	{key: params.KeyPreviewSize, apply: setPreviewSize},
	{key: params.KeyVideoSize, apply: setVideoSize},
	{key: params.KeyPictureSize, apply: setPictureSize},
	{key: params.KeyJpegThumbnailWidth, apply: setThumbnailSize},
	{key: params.KeyJpegQuality, apply: qualitySetter(params.KeyJpegQuality)},
	{key: params.KeyJpegThumbnailQuality, apply: qualitySetter(params.KeyJpegThumbnailQuality)},
	{key: params.KeyPreviewFormat, apply: storeSetter(params.KeyPreviewFormat, inTable(params.PreviewFormats))},
	{key: params.KeyPictureFormat, apply: storeSetter(params.KeyPictureFormat, inTable(params.PictureFormats))},
	{key: params.KeyEffect, apply: tableSetter(params.KeyEffect, params.Effects, driver.ParmEffect, nil)},
	{key: params.KeyGpsLatitude, apply: setGPS},
	{key: params.KeyRotation, apply: storeSetter(params.KeyRotation, func(_ *setCtx, v string) bool {
		return v == "0" || v == "90" || v == "180" || v == "270"
	})},
	{key: params.KeyZoom, apply: setZoom},
	{key: params.KeyOrientation, apply: storeSetter(params.KeyOrientation, inTable(params.Orientations))},
	{key: params.KeyLensShade, apply: tableSetter(params.KeyLensShade, params.LensShade, driver.ParmLensShade, nil)},
	{key: params.KeyMCE, apply: tableSetter(params.KeyMCE, params.MCE, driver.ParmMCE, nil)},
	{key: params.KeyAEBracketHDR, apply: tableSetter(params.KeyAEBracketHDR, params.AEBracket, driver.ParmAEBracket, nil)},
	{key: params.KeySharpness, apply: rangeSetter(params.KeySharpness, params.MinSharpness, params.MaxSharpness, params.SharpnessStep, driver.ParmSharpness)},
	{key: params.KeyContrast, sceneAuto: true, apply: rangeSetter(params.KeyContrast, params.MinContrast, params.MaxContrast, 1, driver.ParmContrast)},
	{key: params.KeySaturation, apply: rangeSetter(params.KeySaturation, params.MinSaturation, params.MaxSaturation, 1, driver.ParmSaturation)},
	{key: params.KeyTouchAfAec, apply: setTouchAfAec},
	{key: params.KeySceneMode, apply: tableSetter(params.KeySceneMode, params.SceneModes, driver.ParmBestShotMode, nil)},
	{key: params.KeySceneDetect, supported: hasSceneDetect, apply: tableSetter(params.KeySceneDetect, params.SceneDetect, driver.ParmSceneDetect, nil)},
	{key: params.KeyAntibanding, apply: tableSetter(params.KeyAntibanding, params.Antibanding, driver.ParmAntibanding, nil)},
	{key: params.KeyRedeyeReduction, apply: tableSetter(params.KeyRedeyeReduction, params.RedeyeReduction, driver.ParmRedeyeReduction, nil)},
	{key: params.KeyDenoise, apply: tableSetter(params.KeyDenoise, params.Denoise, driver.ParmDenoise, nil)},
	{key: params.KeyFaceDetection, supported: hasFaceDetect, apply: tableSetter(params.KeyFaceDetection, params.FaceDetection, driver.ParmFaceDetection,
		func(s *Session, n int) { s.faceDetect.Store(n == 1) })},
	{key: params.KeySkinTone, apply: tableSetter(params.KeySkinTone, params.SkinTone, driver.ParmSkinTone, nil)},
	{key: params.KeyHistogram, apply: tableSetter(params.KeyHistogram, params.Histogram, driver.ParmHistogram,
		func(s *Session, n int) { s.hist.setEnabled(n == 1) })},
	{key: params.KeyPreviewFpsRange, apply: setFpsRange},
	{key: params.KeyZSL, supported: supportsZSL, apply: tableSetter(params.KeyZSL, params.ZSLModes, driver.ParmZSL, nil)},
	{key: params.KeyNumSnapsPerShutter, apply: setNumSnaps},
	{key: params.KeyRecordingHint, apply: tableSetter(params.KeyRecordingHint, params.RecordingHints, driver.ParmRecordingHint, nil)},

	{key: params.KeyPreviewFrameRate, sceneAuto: true, apply: setFrameRate},
	{key: params.KeyPreviewFrameRateMode, sceneAuto: true, apply: tableSetter(params.KeyPreviewFrameRateMode, params.FrameRateModes, driver.ParmFPSMode, nil)},
	{key: params.KeyAutoExposure, sceneAuto: true, apply: tableSetter(params.KeyAutoExposure, params.AutoExposure, driver.ParmAutoExposure, nil)},
	{key: params.KeyExposureCompensation, sceneAuto: true, apply: setExposureCompensation},
	{key: params.KeyWhiteBalance, sceneAuto: true, apply: tableSetter(params.KeyWhiteBalance, params.WhiteBalance, driver.ParmWhiteBalance, nil)},
	{key: params.KeyFlashMode, sceneAuto: true, apply: tableSetter(params.KeyFlashMode, params.FlashModes, driver.ParmFlash, nil)},
	{key: params.KeyFocusMode, sceneAuto: true, apply: setFocusMode},
	{key: params.KeyBrightness, sceneAuto: true, apply: rangeSetter(params.KeyBrightness, params.MinBrightness, params.MaxBrightness, 1, driver.ParmBrightness)},
	{key: params.KeyISO, sceneAuto: true, apply: tableSetter(params.KeyISO, params.ISOModes, driver.ParmISO, nil)},
	{key: params.KeyFocusAreas, sceneAuto: true, apply: areaSetter(params.KeyFocusAreas, params.KeyMaxNumFocusAreas, driver.AreaFocus)},
	{key: params.KeyMeteringAreas, sceneAuto: true, apply: areaSetter(params.KeyMeteringAreas, params.KeyMaxNumMeteringAreas, driver.AreaMetering)},

	{key: params.KeySelectableZoneAf, supported: hasZoneAf, apply: tableSetter(params.KeySelectableZoneAf, params.SelectableZoneAf, driver.ParmSelectableZoneAF, nil)},
	{key: params.KeyHFR, supported: supportsHFR, apply: setHFR},
}

func setPreviewSize(c *setCtx) error {
	v, ok := c.req.Lookup(params.KeyPreviewSize)
	if !ok {
		return nil
	}
	size, err := params.ParseSize(v)
	if err != nil || !params.ContainsSize(c.s.board.PreviewSizes(), size) {
		return badValue(params.KeyPreviewSize, v)
	}
	c.out.SetSize(params.KeyPreviewSize, size)
	return nil
}

// setVideoSize keeps the video size equal to the preview size on single-VFE
// targets. With two VFEs the preview never exceeds the video size.
func setVideoSize(c *setCtx) error {
	preview, _ := c.out.Size(params.KeyPreviewSize)
	v, ok := c.req.Lookup(params.KeyVideoSize)
	if !c.s.board.DualVFE || !ok {
		c.out.SetSize(params.KeyVideoSize, preview)
		return nil
	}
	size, err := params.ParseSize(v)
	if err != nil || !params.ContainsSize(c.s.board.VideoSizes(), size) {
		return badValue(params.KeyVideoSize, v)
	}
	c.out.SetSize(params.KeyVideoSize, size)
	if preview.Area() > size.Area() {
		log.Printf("[params] preview %v larger than video %v, using %v", preview, size, size)
		c.out.SetSize(params.KeyPreviewSize, size)
	}
	return nil
}

func setPictureSize(c *setCtx) error {
	v, ok := c.req.Lookup(params.KeyPictureSize)
	if !ok {
		return nil
	}
	zsl := c.out.Get(params.KeyZSL)
	if z, ok := c.req.Lookup(params.KeyZSL); ok {
		zsl = z
	}
	size, err := params.ParseSize(v)
	if err != nil || !params.ContainsSize(c.s.board.PictureSizes(zsl == "on"), size) {
		return badValue(params.KeyPictureSize, v)
	}
	c.out.SetSize(params.KeyPictureSize, size)
	if !c.req.Has(params.KeyJpegThumbnailWidth) && !c.req.Has(params.KeyJpegThumbnailHeight) {
		t := params.ThumbnailForPicture(size)
		c.out.SetInt(params.KeyJpegThumbnailWidth, t.Width)
		c.out.SetInt(params.KeyJpegThumbnailHeight, t.Height)
	}
	return nil
}

// setThumbnailSize accepts a listed size, or 0x0 for no thumbnail
func setThumbnailSize(c *setCtx) error {
	ws, wok := c.req.Lookup(params.KeyJpegThumbnailWidth)
	hs, hok := c.req.Lookup(params.KeyJpegThumbnailHeight)
	if !wok && !hok {
		return nil
	}
	w, h := c.out.GetInt(params.KeyJpegThumbnailWidth), c.out.GetInt(params.KeyJpegThumbnailHeight)
	var err error
	if wok {
		if w, err = strconv.Atoi(ws); err != nil {
			return badValue(params.KeyJpegThumbnailWidth, ws)
		}
	}
	if hok {
		if h, err = strconv.Atoi(hs); err != nil {
			return badValue(params.KeyJpegThumbnailHeight, hs)
		}
	}
	size := params.Size{Width: w, Height: h}
	if size != (params.Size{}) && !params.ContainsSize(params.JpegThumbnailSizes, size) {
		return fmt.Errorf("%w: thumbnail size %v", ErrBadValue, size)
	}
	c.out.SetInt(params.KeyJpegThumbnailWidth, w)
	c.out.SetInt(params.KeyJpegThumbnailHeight, h)
	return nil
}

func qualitySetter(key string) func(*setCtx) error {
	return storeSetter(key, func(_ *setCtx, v string) bool {
		n, err := strconv.Atoi(v)
		return err == nil && n >= 1 && n <= 100
	})
}

// setGPS copies the location tags. Tags the host leaves out are removed so a
// stale location never ends up in a picture.
func setGPS(c *setCtx) error {
	var last error
	for _, key := range append(slices.Clone(params.GpsKeys), params.KeyExifDateTime) {
		v, ok := c.req.Lookup(key)
		if !ok {
			c.out.Remove(key)
			continue
		}
		if !validGPS(key, v) {
			last = badValue(key, v)
			continue
		}
		c.out.Set(key, v)
	}
	return last
}

func validGPS(key, v string) bool {
	switch key {
	case params.KeyGpsLatitude, params.KeyGpsLongitude:
		f, err := strconv.ParseFloat(v, 64)
		limit := 90.0
		if key == params.KeyGpsLongitude {
			limit = 180
		}
		return err == nil && f >= -limit && f <= limit
	case params.KeyGpsAltitude:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	case params.KeyGpsTimestamp:
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	case params.KeyGpsLatitudeRef:
		return v == "N" || v == "S"
	case params.KeyGpsLongitudeRef:
		return v == "E" || v == "W"
	case params.KeyGpsAltitudeRef:
		return v == "0" || v == "1"
	}
	return true
}

func setZoom(c *setCtx) error {
	v, ok := c.req.Lookup(params.KeyZoom)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > c.s.board.MaxZoom-1 {
		return badValue(params.KeyZoom, v)
	}
	if c.s.zoom.worker.isRunning() {
		log.Printf("[params] smooth zoom running, zoom %d ignored", n)
		return nil
	}
	applied, err := c.parm(driver.ParmZoom, int32(n))
	if err != nil || !applied {
		return err
	}
	c.out.SetInt(params.KeyZoom, n)
	c.s.zoom.set(n)
	return nil
}

func setTouchAfAec(c *setCtx) error {
	if err := tableSetter(params.KeyTouchAfAec, params.TouchAfAec, driver.ParmTouchAFAEC, nil)(c); err != nil {
		return err
	}
	var last error
	for _, key := range []string{params.KeyTouchIndexAec, params.KeyTouchIndexAf} {
		v, ok := c.req.Lookup(key)
		if !ok {
			continue
		}
		if _, _, err := params.ParsePoint(v); err != nil {
			last = badValue(key, v)
			continue
		}
		c.out.Set(key, v)
	}
	return last
}

func setFpsRange(c *setCtx) error {
	v, ok := c.req.Lookup(params.KeyPreviewFpsRange)
	if !ok {
		return nil
	}
	lo, hi, err := params.ParseRange(v)
	if err != nil || lo > hi || lo < params.MinFPS*1000 || hi > params.MaxFPS*1000 {
		return badValue(params.KeyPreviewFpsRange, v)
	}
	applied, err := c.parm(driver.ParmFPS, int32(lo/1000)<<16|int32(hi/1000))
	if err != nil || !applied {
		return err
	}
	c.out.Set(params.KeyPreviewFpsRange, v)
	return nil
}

// setNumSnaps clamps the burst to what the board can hold
func setNumSnaps(c *setCtx) error {
	v, ok := c.req.Lookup(params.KeyNumSnapsPerShutter)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return badValue(params.KeyNumSnapsPerShutter, v)
	}
	if n < 1 {
		n = 1
	}
	if limit := c.s.board.MaxBurst(); n > limit {
		log.Printf("[params] %d snapshots per shutter clamped to %d", n, limit)
		n = limit
	}
	c.out.SetInt(params.KeyNumSnapsPerShutter, n)
	return nil
}

func setFrameRate(c *setCtx) error {
	v, ok := c.req.Lookup(params.KeyPreviewFrameRate)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || !slices.Contains(previewFrameRates, n) {
		return badValue(params.KeyPreviewFrameRate, v)
	}
	applied, err := c.parm(driver.ParmFPS, int32(n))
	if err != nil || !applied {
		return err
	}
	c.out.SetInt(params.KeyPreviewFrameRate, n)
	return nil
}

// setExposureCompensation sends the value as a Q16 numerator over the step
// denominator
func setExposureCompensation(c *setCtx) error {
	v, ok := c.req.Lookup(params.KeyExposureCompensation)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < params.MinExposureCompensation || n > params.MaxExposureCompensation {
		return badValue(params.KeyExposureCompensation, v)
	}
	applied, err := c.parm(driver.ParmExposureCompensation, int32(n)<<16|params.ExposureCompDenominator)
	if err != nil || !applied {
		return err
	}
	c.out.SetInt(params.KeyExposureCompensation, n)
	return nil
}

func setFocusMode(c *setCtx) error {
	v, ok := c.req.Lookup(params.KeyFocusMode)
	if !ok {
		return nil
	}
	allowed := strings.Split(c.out.Get(params.KeyFocusModeValues), ",")
	n, known := params.FocusModes.Lookup(v)
	if !known || !slices.Contains(allowed, v) {
		return badValue(params.KeyFocusMode, v)
	}
	if c.s.board.HasAutoFocus {
		applied, err := c.parm(driver.ParmFocusMode, int32(n))
		if err != nil || !applied {
			return err
		}
	}
	c.out.Set(params.KeyFocusMode, v)
	return nil
}

// areaSetter validates focus or metering areas. They reach the driver only
// while preview runs, since regions are in preview pixels.
func areaSetter(key, maxKey string, kind driver.AreaKind) func(*setCtx) error {
	return func(c *setCtx) error {
		v, ok := c.req.Lookup(key)
		if !ok {
			return nil
		}
		limit := c.out.GetInt(maxKey)
		if limit <= 0 {
			return nil
		}
		areas, err := params.ParseAreas(v, limit)
		if err == nil {
			err = params.ValidateAreas(areas)
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadValue, key, err)
		}
		if c.s.previewActive {
			var regions []driver.Region
			if !params.Cleared(areas) {
				for _, a := range areas {
					x, y, dx, dy := a.ToPreview(c.s.previewDim)
					regions = append(regions, driver.Region{X: x, Y: y, DX: dx, DY: dy, Weight: a.Weight})
				}
			}
			if err := c.s.drv.SetAreas(kind, regions); err != nil {
				return fmt.Errorf("%w: set %s areas: %v", ErrUnknown, kind, err)
			}
		}
		c.out.Set(key, v)
		return nil
	}
}

// setHFR changes the sensor frame rate. A change while preview runs restarts
// preview once SetParameters returns.
func setHFR(c *setCtx) error {
	v, ok := c.req.Lookup(params.KeyHFR)
	if !ok {
		return nil
	}
	n, ok := params.HFRModes.Lookup(v)
	if !ok {
		return badValue(params.KeyHFR, v)
	}
	if n != 0 {
		preview, _ := c.out.Size(params.KeyPreviewSize)
		if !params.ContainsSize(params.HFRSizes, preview) {
			return fmt.Errorf("%w: hfr %s needs preview size in %s", ErrBadValue, v, params.SizeList(params.HFRSizes))
		}
	}
	applied, err := c.parm(driver.ParmHFR, int32(n))
	if err != nil || !applied {
		return err
	}
	old := c.out.Get(params.KeyHFR)
	c.out.Set(params.KeyHFR, v)
	c.s.hfrDivisor.Store(int32(n))
	if old != v && c.s.sm.is(StatePreviewRunning) {
		c.s.hfrChange = true
	}
	return nil
}
