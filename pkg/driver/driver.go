// Package driver defines the contract between the camera engine and a capture
// driver. A driver fills registered buffer slots and hands them back to the
// engine through callbacks; custody of every slot moves with
// frame.Descriptor.Transfer at each hand-off.
package driver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/video-system/go-camera-hal/pkg/frame"
	"github.com/video-system/go-camera-hal/pkg/params"
)

var (
	ErrNotOpen          = errors.New("driver: not open")
	ErrNotRegistered    = errors.New("driver: buffer not registered")
	ErrAlreadyStreaming = errors.New("driver: stream already running")
	ErrNotStreaming     = errors.New("driver: stream not running")
	ErrUnsupported      = errors.New("driver: parameter not supported")
	ErrBusy             = errors.New("driver: operation in progress")
	ErrDeviceLost       = errors.New("driver: device lost")
)

// Parm identifies a sensor control
type Parm int

const (
	ParmZoom Parm = iota
	ParmEffect
	ParmWhiteBalance
	ParmAntibanding
	ParmAutoExposure
	ParmExposureCompensation
	ParmBrightness
	ParmContrast
	ParmSaturation
	ParmSharpness
	ParmISO
	ParmBestShotMode
	ParmSceneDetect
	ParmFocusMode
	ParmSelectableZoneAF
	ParmLensShade
	ParmMCE
	ParmHFR
	ParmHistogram
	ParmRedeyeReduction
	ParmDenoise
	ParmFaceDetection
	ParmFPS
	ParmFPSMode
	ParmFlash
	ParmSkinTone
	ParmRecordingHint
	ParmAEBracket
	ParmTouchAFAEC
	ParmZSL
	ParmRotation
	numParms
)

var parmNames = [...]string{
	"zoom", "effect", "white-balance", "antibanding", "auto-exposure",
	"exposure-compensation", "brightness", "contrast", "saturation", "sharpness",
	"iso", "bestshot-mode", "scene-detect", "focus-mode", "selectable-zone-af",
	"lens-shade", "mce", "hfr", "histogram", "redeye-reduction", "denoise",
	"face-detection", "fps", "fps-mode", "flash", "skin-tone", "recording-hint",
	"ae-bracket", "touch-af-aec", "zsl", "rotation",
}

func (p Parm) String() string {
	if p >= 0 && int(p) < len(parmNames) {
		return parmNames[p]
	}
	return fmt.Sprintf("parm(%d)", int(p))
}

// AllParms lists every control, in declaration order
func AllParms() []Parm {
	out := make([]Parm, 0, numParms)
	for p := Parm(0); p < numParms; p++ {
		out = append(out, p)
	}
	return out
}

// Dimension is the stream geometry programmed before streaming starts
type Dimension struct {
	Preview       params.Size
	Video         params.Size
	Picture       params.Size
	Thumbnail     params.Size
	PreviewFormat uint32
}

// AreaKind selects the focus or metering region set
type AreaKind int

const (
	AreaFocus AreaKind = iota
	AreaMetering
)

func (k AreaKind) String() string {
	if k == AreaMetering {
		return "metering"
	}
	return "focus"
}

// Region is an area mapped into preview pixel coordinates
type Region struct {
	X, Y, DX, DY int
	Weight       int
}

// FocusStatus reports how an autofocus request ended
type FocusStatus int

const (
	FocusSuccess FocusStatus = iota
	FocusFailed
	FocusCancelled
)

func (s FocusStatus) String() string {
	switch s {
	case FocusSuccess:
		return "success"
	case FocusCancelled:
		return "cancelled"
	}
	return "failed"
}

// Callbacks are invoked from driver goroutines. A descriptor passed to a frame
// callback is already engine-owned.
type Callbacks struct {
	OnPreviewFrame func(d *frame.Descriptor)
	OnVideoFrame   func(d *frame.Descriptor)
	OnShutter      func()
	OnSnapshot     func(d *frame.Descriptor)
	OnSnapshotDone func(err error)
	OnFocus        func(status FocusStatus)
	OnError        func(err error)
}

// Driver is a capture engine.
//
// After StopPreview or StopVideo returns no further frame callbacks arrive for
// that stream. Every AutoFocus call yields exactly one OnFocus callback.
type Driver interface {
	Name() string
	Open(cb Callbacks) error
	Close() error

	SetDimension(d Dimension) error
	IsParmSupported(p Parm) bool
	SetParm(p Parm, value int32) error
	SetAreas(kind AreaKind, regions []Region) error

	RegisterBuffer(d *frame.Descriptor) error
	UnregisterBuffer(d *frame.Descriptor) error
	// ReleaseFrame hands an engine-owned slot back to the driver free list
	ReleaseFrame(d *frame.Descriptor) error

	StartPreview() error
	StopPreview() error
	StartVideo() error
	StopVideo() error
	StartSnapshot(n int) error
	StopSnapshot() error
	AutoFocus(mode int32) error
	CancelAutoFocus() error
}

// Options configure a driver instance
type Options struct {
	Device        string
	FrameInterval time.Duration
	Unsupported   []Parm
	ZoomSteps     int // size of the board zoom table
}

// Factory builds a driver
type Factory func(opts Options) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register registers a driver factory
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New builds a registered driver by name
func New(name string, opts Options) (Driver, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (have %v)", name, Names())
	}
	return factory(opts)
}

// Names lists registered drivers
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
