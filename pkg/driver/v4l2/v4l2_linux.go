//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackjack/webcam"

	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/frame"
	"github.com/video-system/go-camera-hal/pkg/params"
)

const (
	// DefaultDevice is opened when no device is configured
	DefaultDevice = "/dev/video0"

	fourccYUYV       webcam.PixelFormat = 0x56595559
	captureBuffers                      = 4
	frameWaitSeconds                    = 1
	focusSettle                         = 600 * time.Millisecond
	defaultZoomSteps                    = 31
)

func init() {
	driver.Register("v4l2", func(opts driver.Options) (driver.Driver, error) {
		return New(opts), nil
	})
}

// Stats counts driver activity
type Stats struct {
	PreviewFrames int64 `json:"preview_frames"`
	VideoFrames   int64 `json:"video_frames"`
	Dropped       int64 `json:"dropped"`
	Snapshots     int64 `json:"snapshots"`
}

type stream struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *stream) stop() {
	s.cancel()
	<-s.done
}

// Driver is a video4linux capture engine
type Driver struct {
	device    string
	zoomSteps int
	slots     *driver.Slots

	mu       sync.Mutex
	cam      *webcam.Webcam
	cb       driver.Callbacks
	dim      driver.Dimension
	controls map[uint32]webcam.Control
	capture  *stream
	width    int
	height   int
	snapshot *stream
	focus    *stream

	// deliverMu is held for each frame hand-off so that a stream switched
	// off under it sees no further callbacks.
	deliverMu sync.Mutex
	previewOn bool
	videoOn   bool

	previewFrames atomic.Int64
	videoFrames   atomic.Int64
	dropped       atomic.Int64
	snapshots     atomic.Int64
}

// New creates a driver for a device node
func New(opts driver.Options) *Driver {
	d := &Driver{
		device:    opts.Device,
		zoomSteps: opts.ZoomSteps,
		slots:     driver.NewSlots(),
		controls:  make(map[uint32]webcam.Control),
	}
	if d.device == "" {
		d.device = DefaultDevice
	}
	if d.zoomSteps <= 0 {
		d.zoomSteps = defaultZoomSteps
	}
	return d
}

func (d *Driver) Name() string { return "v4l2" }

func (d *Driver) Open(cb driver.Callbacks) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam != nil {
		return fmt.Errorf("v4l2: %s already open", d.device)
	}
	cam, err := webcam.Open(d.device)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.device, err)
	}
	if _, ok := cam.GetSupportedFormats()[fourccYUYV]; !ok {
		cam.Close()
		return fmt.Errorf("v4l2: %s does not offer YUYV", d.device)
	}
	for id, c := range cam.GetControls() {
		d.controls[uint32(id)] = c
	}
	d.cam = cam
	d.cb = cb
	log.Printf("[v4l2] opened %s (%d controls)", d.device, len(d.controls))
	return nil
}

func (d *Driver) Close() error {
	d.StopPreview()
	d.StopVideo()
	d.StopSnapshot()
	d.CancelAutoFocus()
	d.waitFocus()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return nil
	}
	err := d.cam.Close()
	d.cam = nil
	d.cb = driver.Callbacks{}
	log.Printf("[v4l2] closed %s", d.device)
	return err
}

func (d *Driver) SetDimension(dim driver.Dimension) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return driver.ErrNotOpen
	}
	d.dim = dim
	return nil
}

func (d *Driver) IsParmSupported(p driver.Parm) bool {
	out, ok := settingsFor(p, 0, d.zoomSteps)
	if !ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return true
	}
	for _, s := range out {
		if _, has := d.controls[s.id]; !has {
			return false
		}
	}
	return true
}

func (d *Driver) SetParm(p driver.Parm, value int32) error {
	out, ok := settingsFor(p, value, d.zoomSteps)
	if !ok {
		return driver.ErrUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return driver.ErrNotOpen
	}
	for _, s := range out {
		c, has := d.controls[s.id]
		if !has {
			return driver.ErrUnsupported
		}
		v := s.value
		if s.scaled() {
			v = scale(v, s.lo, s.hi, c.Min, c.Max)
		}
		if err := d.cam.SetControl(webcam.ControlID(s.id), v); err != nil {
			return fmt.Errorf("set %s (%s=%d): %w", p, c.Name, v, err)
		}
	}
	return nil
}

// SetAreas is accepted and ignored: UVC has no region controls
func (d *Driver) SetAreas(kind driver.AreaKind, regions []driver.Region) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return driver.ErrNotOpen
	}
	return nil
}

func (d *Driver) RegisterBuffer(fd *frame.Descriptor) error {
	return d.slots.Register(fd)
}

func (d *Driver) UnregisterBuffer(fd *frame.Descriptor) error {
	return d.slots.Unregister(fd)
}

func (d *Driver) ReleaseFrame(fd *frame.Descriptor) error {
	return d.slots.Release(fd)
}

func (d *Driver) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return driver.ErrNotOpen
	}
	if d.snapshot != nil {
		return driver.ErrBusy
	}
	d.deliverMu.Lock()
	running := d.previewOn
	d.deliverMu.Unlock()
	if running {
		return driver.ErrAlreadyStreaming
	}
	if err := d.startCaptureLocked(d.dim.Preview); err != nil {
		return err
	}
	d.setStream(&d.previewOn, true)
	log.Printf("[v4l2] preview streaming %dx%d", d.width, d.height)
	return nil
}

func (d *Driver) StopPreview() error {
	if !d.setStream(&d.previewOn, false) {
		return driver.ErrNotStreaming
	}
	d.stopCaptureIfIdle()
	log.Printf("[v4l2] preview stopped")
	return nil
}

func (d *Driver) StartVideo() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return driver.ErrNotOpen
	}
	d.deliverMu.Lock()
	running := d.videoOn
	d.deliverMu.Unlock()
	if running {
		return driver.ErrAlreadyStreaming
	}
	if err := d.startCaptureLocked(d.dim.Preview); err != nil {
		return err
	}
	d.setStream(&d.videoOn, true)
	return nil
}

func (d *Driver) StopVideo() error {
	if !d.setStream(&d.videoOn, false) {
		return driver.ErrNotStreaming
	}
	d.stopCaptureIfIdle()
	return nil
}

// setStream flips a stream flag under deliverMu and reports the old value
func (d *Driver) setStream(flag *bool, on bool) bool {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()
	old := *flag
	*flag = on
	return old
}

func (d *Driver) stopCaptureIfIdle() {
	d.deliverMu.Lock()
	idle := !d.previewOn && !d.videoOn
	d.deliverMu.Unlock()
	if !idle {
		return
	}
	d.mu.Lock()
	s := d.capture
	d.capture = nil
	cam := d.cam
	d.mu.Unlock()
	if s == nil {
		return
	}
	s.stop()
	if cam != nil {
		if err := cam.StopStreaming(); err != nil {
			log.Printf("[v4l2] Warning: stop streaming: %v", err)
		}
	}
}

// startCaptureLocked programs the format and starts the capture goroutine;
// d.mu must be held. A running capture is reused.
func (d *Driver) startCaptureLocked(size params.Size) error {
	if d.capture != nil {
		return nil
	}
	w, h, err := d.configureLocked(size)
	if err != nil {
		return err
	}
	if err := d.cam.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}
	d.width, d.height = w, h

	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{cancel: cancel, done: make(chan struct{})}
	d.capture = s
	go d.captureLoop(ctx, s, d.cam, d.cb, w, h)
	return nil
}

// configureLocked selects the YUYV frame size closest to the request
func (d *Driver) configureLocked(size params.Size) (int, int, error) {
	want := size
	if want.Width <= 0 || want.Height <= 0 {
		want = params.Size{Width: 640, Height: 480}
	}
	best, found := want, false
	var bestDiff int
	for _, fs := range d.cam.GetSupportedFrameSizes(fourccYUYV) {
		c := params.Size{Width: int(fs.MaxWidth), Height: int(fs.MaxHeight)}
		diff := abs(c.Width-want.Width) + abs(c.Height-want.Height)
		if !found || diff < bestDiff {
			best, bestDiff, found = c, diff, true
		}
	}
	_, w, h, err := d.cam.SetImageFormat(fourccYUYV, uint32(best.Width), uint32(best.Height))
	if err != nil {
		return 0, 0, fmt.Errorf("set format %v: %w", best, err)
	}
	if err := d.cam.SetBufferCount(captureBuffers); err != nil {
		return 0, 0, fmt.Errorf("set buffer count: %w", err)
	}
	return int(w), int(h), nil
}

func (d *Driver) captureLoop(ctx context.Context, s *stream, cam *webcam.Webcam, cb driver.Callbacks, w, h int) {
	defer close(s.done)
	nv21 := make([]byte, NV21Size(w, h))
	for ctx.Err() == nil {
		err := readFrame(cam, nv21, w, h)
		if errors.Is(err, errNoFrame) {
			continue
		}
		if err != nil {
			log.Printf("[v4l2] capture failed: %v", err)
			if cb.OnError != nil {
				cb.OnError(fmt.Errorf("%w: %v", driver.ErrDeviceLost, err))
			}
			return
		}

		d.mu.Lock()
		dim := d.dim
		d.mu.Unlock()

		d.deliverMu.Lock()
		if d.previewOn {
			d.deliver(frame.RolePreview, nv21, w, h, dim.Preview, cb.OnPreviewFrame, &d.previewFrames)
		}
		if d.videoOn {
			d.deliver(frame.RoleVideo, nv21, w, h, dim.Video, cb.OnVideoFrame, &d.videoFrames)
		}
		d.deliverMu.Unlock()
	}
}

var errNoFrame = errors.New("v4l2: no frame")

// readFrame waits for one frame and converts it into dst
func readFrame(cam *webcam.Webcam, dst []byte, w, h int) error {
	err := cam.WaitForFrame(frameWaitSeconds)
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return errNoFrame
	default:
		return fmt.Errorf("wait for frame: %w", err)
	}
	raw, index, err := cam.GetFrame()
	if err != nil {
		return fmt.Errorf("get frame: %w", err)
	}
	if len(raw) == 0 {
		return errNoFrame
	}
	err = YUYVToNV21(dst, raw, w, h)
	if rerr := cam.ReleaseFrame(index); rerr != nil {
		log.Printf("[v4l2] Warning: release frame %d: %v", index, rerr)
	}
	return err
}

// deliver fills the oldest free slot of a role and hands it to the engine;
// deliverMu must be held
func (d *Driver) deliver(role frame.Role, src []byte, w, h int, size params.Size, fn func(*frame.Descriptor), count *atomic.Int64) {
	fd := d.slots.Take(role)
	if fd == nil {
		d.dropped.Add(1)
		return
	}
	if size.Width <= 0 || size.Height <= 0 {
		size = params.Size{Width: w, Height: h}
	}
	if err := ScaleNV21(fd.Bytes(), src, w, h, size.Width, size.Height); err != nil {
		log.Printf("[v4l2] Warning: %s: %v", fd, err)
		d.slots.Requeue(fd)
		return
	}
	fd.Timestamp = time.Now().UnixNano()
	fd.Crop = frame.Crop{InWidth: size.Width, InHeight: size.Height, OutWidth: size.Width, OutHeight: size.Height}
	if err := driver.Deliver(fd); err != nil {
		log.Printf("[v4l2] Warning: %v", err)
		return
	}
	count.Add(1)
	if fn != nil {
		fn(fd)
	} else {
		d.slots.Release(fd)
	}
}

// StartSnapshot reconfigures the device for the picture size and captures n
// frames. Preview must be stopped.
func (d *Driver) StartSnapshot(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return driver.ErrNotOpen
	}
	if d.snapshot != nil || d.capture != nil {
		return driver.ErrBusy
	}
	if n < 1 {
		n = 1
	}
	w, h, err := d.configureLocked(d.dim.Picture)
	if err != nil {
		return err
	}
	if err := d.cam.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{cancel: cancel, done: make(chan struct{})}
	d.snapshot = s
	cam, cb, picture := d.cam, d.cb, d.dim.Picture

	go func() {
		defer close(s.done)
		err := d.shoot(ctx, cam, cb, n, w, h, picture)
		if serr := cam.StopStreaming(); serr != nil {
			log.Printf("[v4l2] Warning: stop streaming: %v", serr)
		}
		d.mu.Lock()
		if d.snapshot == s {
			d.snapshot = nil
		}
		d.mu.Unlock()
		if cb.OnSnapshotDone != nil {
			cb.OnSnapshotDone(err)
		}
	}()
	return nil
}

func (d *Driver) shoot(ctx context.Context, cam *webcam.Webcam, cb driver.Callbacks, n, w, h int, picture params.Size) error {
	if picture.Width <= 0 || picture.Height <= 0 {
		picture = params.Size{Width: w, Height: h}
	}
	nv21 := make([]byte, NV21Size(w, h))
	shutter := false
	for i := 0; i < n; {
		if ctx.Err() != nil {
			return context.Canceled
		}
		err := readFrame(cam, nv21, w, h)
		if errors.Is(err, errNoFrame) {
			continue
		}
		if err != nil {
			return err
		}
		if !shutter {
			shutter = true
			if cb.OnShutter != nil {
				cb.OnShutter()
			}
		}
		fd := d.slots.Take(frame.RoleMainImage)
		if fd == nil {
			return fmt.Errorf("v4l2: snapshot %d/%d: no main image buffer", i+1, n)
		}
		if err := ScaleNV21(fd.Bytes(), nv21, w, h, picture.Width, picture.Height); err != nil {
			d.slots.Requeue(fd)
			return err
		}
		fd.Timestamp = time.Now().UnixNano()
		if err := driver.Deliver(fd); err != nil {
			return err
		}
		d.snapshots.Add(1)
		if cb.OnSnapshot != nil {
			cb.OnSnapshot(fd)
		}
		i++
	}
	return nil
}

func (d *Driver) StopSnapshot() error {
	d.mu.Lock()
	s := d.snapshot
	d.mu.Unlock()
	if s == nil {
		return nil
	}
	s.stop()
	return nil
}

// AutoFocus runs a one-shot sweep by enabling continuous autofocus for a
// settle period and locking it again. Fixed-focus devices succeed at once.
func (d *Driver) AutoFocus(mode int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return driver.ErrNotOpen
	}
	if d.focus != nil {
		return driver.ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{cancel: cancel, done: make(chan struct{})}
	d.focus = s
	cam, cb := d.cam, d.cb
	_, hasAF := d.controls[cidFocusAuto]

	go func() {
		defer close(s.done)
		status := driver.FocusSuccess
		if hasAF {
			status = sweep(ctx, cam)
		}
		d.mu.Lock()
		if d.focus == s {
			d.focus = nil
		}
		d.mu.Unlock()
		if cb.OnFocus != nil {
			cb.OnFocus(status)
		}
	}()
	return nil
}

func sweep(ctx context.Context, cam *webcam.Webcam) driver.FocusStatus {
	if err := cam.SetControl(webcam.ControlID(cidFocusAuto), 1); err != nil {
		log.Printf("[v4l2] autofocus on: %v", err)
		return driver.FocusFailed
	}
	status := driver.FocusSuccess
	select {
	case <-ctx.Done():
		status = driver.FocusCancelled
	case <-time.After(focusSettle):
	}
	if err := cam.SetControl(webcam.ControlID(cidFocusAuto), 0); err != nil {
		log.Printf("[v4l2] Warning: autofocus lock: %v", err)
	}
	return status
}

func (d *Driver) CancelAutoFocus() error {
	d.mu.Lock()
	s := d.focus
	d.mu.Unlock()
	if s != nil {
		s.cancel()
	}
	return nil
}

func (d *Driver) waitFocus() {
	d.mu.Lock()
	s := d.focus
	d.mu.Unlock()
	if s != nil {
		<-s.done
	}
}

// Stats returns activity counters
func (d *Driver) Stats() Stats {
	return Stats{
		PreviewFrames: d.previewFrames.Load(),
		VideoFrames:   d.videoFrames.Load(),
		Dropped:       d.dropped.Load(),
		Snapshots:     d.snapshots.Load(),
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
