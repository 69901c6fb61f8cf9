// Package sim is a deterministic capture driver that paints a test pattern
// into registered slots on a fixed frame interval. Fault injection knobs make
// it the driver the engine tests run against.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/frame"
)

// DefaultFrameInterval is roughly 30 fps
const DefaultFrameInterval = 33 * time.Millisecond

func init() {
	driver.Register("sim", func(opts driver.Options) (driver.Driver, error) {
		return New(opts), nil
	})
}

// Faults configures failure injection
type Faults struct {
	FailRegisterAt   int // fail the Nth RegisterBuffer call (1-based)
	FailStartPreview bool
	StallAfter       int           // stop producing preview frames after N
	LoseDevice       bool          // report the device lost at the stall instead
	FocusDelay       time.Duration // time an autofocus sweep takes
	FocusFail        bool
	SnapshotFail     bool
}

// Stats counts driver activity
type Stats struct {
	PreviewFrames int64 `json:"preview_frames"`
	VideoFrames   int64 `json:"video_frames"`
	Dropped       int64 `json:"dropped"`
	Snapshots     int64 `json:"snapshots"`
	FocusRequests int64 `json:"focus_requests"`
	Registered    int   `json:"registered"`
}

type stream struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *stream) stop() {
	s.cancel()
	<-s.done
}

// Driver is the simulated capture engine
type Driver struct {
	interval    time.Duration
	unsupported map[driver.Parm]bool
	slots       *driver.Slots

	mu        sync.Mutex
	faults    Faults
	open      bool
	cb        driver.Callbacks
	dim       driver.Dimension
	parms     map[driver.Parm]int32
	areas     map[driver.AreaKind][]driver.Region
	registers int
	preview   *stream
	video     *stream
	snapshot  *stream
	focus     *stream
	focusStop chan struct{}

	previewFrames atomic.Int64
	videoFrames   atomic.Int64
	dropped       atomic.Int64
	snapshots     atomic.Int64
	focusRequests atomic.Int64
}

// New creates a simulated driver
func New(opts driver.Options) *Driver {
	d := &Driver{
		interval:    opts.FrameInterval,
		unsupported: make(map[driver.Parm]bool),
		slots:       driver.NewSlots(),
		parms:       make(map[driver.Parm]int32),
		areas:       make(map[driver.AreaKind][]driver.Region),
	}
	if d.interval <= 0 {
		d.interval = DefaultFrameInterval
	}
	for _, p := range opts.Unsupported {
		d.unsupported[p] = true
	}
	return d
}

// SetFaults replaces the fault injection settings
func (d *Driver) SetFaults(f Faults) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults = f
}

func (d *Driver) Name() string { return "sim" }

func (d *Driver) Open(cb driver.Callbacks) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return fmt.Errorf("sim: already open")
	}
	d.cb = cb
	d.open = true
	log.Printf("[sim] opened (frame interval %v)", d.interval)
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
	if !d.open {
		return nil
	}
	d.open = false
	d.cb = driver.Callbacks{}
	log.Printf("[sim] closed")
	return nil
}

func (d *Driver) SetDimension(dim driver.Dimension) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return driver.ErrNotOpen
	}
	d.dim = dim
	return nil
}

// Dimension returns the last programmed geometry
func (d *Driver) Dimension() driver.Dimension {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dim
}

func (d *Driver) IsParmSupported(p driver.Parm) bool {
	return !d.unsupported[p]
}

func (d *Driver) SetParm(p driver.Parm, value int32) error {
	if d.unsupported[p] {
		return driver.ErrUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return driver.ErrNotOpen
	}
	d.parms[p] = value
	return nil
}

// Parm returns the last value programmed for a control
func (d *Driver) Parm(p driver.Parm) (int32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.parms[p]
	return v, ok
}

func (d *Driver) SetAreas(kind driver.AreaKind, regions []driver.Region) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return driver.ErrNotOpen
	}
	d.areas[kind] = append([]driver.Region(nil), regions...)
	return nil
}

// Areas returns the last programmed regions of a kind
func (d *Driver) Areas(kind driver.AreaKind) []driver.Region {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.areas[kind]
}

func (d *Driver) RegisterBuffer(fd *frame.Descriptor) error {
	d.mu.Lock()
	d.registers++
	n := d.registers
	failAt := d.faults.FailRegisterAt
	d.mu.Unlock()
	if failAt > 0 && n == failAt {
		return fmt.Errorf("sim: register %s: injected failure", fd)
	}
	return d.slots.Register(fd)
}

func (d *Driver) UnregisterBuffer(fd *frame.Descriptor) error {
	return d.slots.Unregister(fd)
}

func (d *Driver) ReleaseFrame(fd *frame.Descriptor) error {
	return d.slots.Release(fd)
}

// Slots exposes the driver-side slot bookkeeping
func (d *Driver) Slots() *driver.Slots { return d.slots }

func (d *Driver) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return driver.ErrNotOpen
	}
	if d.faults.FailStartPreview {
		return fmt.Errorf("sim: start preview: injected failure")
	}
	if d.preview != nil {
		return driver.ErrAlreadyStreaming
	}
	var lost func()
	if onError := d.cb.OnError; d.faults.LoseDevice && onError != nil {
		lost = func() { onError(fmt.Errorf("sim: %w", driver.ErrDeviceLost)) }
	}
	d.preview = d.startStream(frame.RolePreview, d.dim.Preview.Width, d.dim.Preview.Height,
		d.faults.StallAfter, lost, d.cb.OnPreviewFrame, &d.previewFrames)
	log.Printf("[sim] preview streaming %v", d.dim.Preview)
	return nil
}

func (d *Driver) StopPreview() error {
	d.mu.Lock()
	s := d.preview
	d.preview = nil
	d.mu.Unlock()
	if s == nil {
		return driver.ErrNotStreaming
	}
	s.stop()
	log.Printf("[sim] preview stopped")
	return nil
}

func (d *Driver) StartVideo() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return driver.ErrNotOpen
	}
	if d.video != nil {
		return driver.ErrAlreadyStreaming
	}
	d.video = d.startStream(frame.RoleVideo, d.dim.Video.Width, d.dim.Video.Height,
		0, nil, d.cb.OnVideoFrame, &d.videoFrames)
	return nil
}

func (d *Driver) StopVideo() error {
	d.mu.Lock()
	s := d.video
	d.video = nil
	d.mu.Unlock()
	if s == nil {
		return driver.ErrNotStreaming
	}
	s.stop()
	return nil
}

// startStream runs a producer goroutine; d.mu must be held. A stream that
// reaches stallAfter frames stops producing, or calls lost and exits.
func (d *Driver) startStream(role frame.Role, w, h, stallAfter int, lost func(), deliver func(*frame.Descriptor), count *atomic.Int64) *stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		var seq int
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if stallAfter > 0 && seq >= stallAfter {
				if lost != nil {
					lost()
					return
				}
				continue
			}
			fd := d.slots.Take(role)
			if fd == nil {
				d.dropped.Add(1)
				continue
			}
			Paint(fd.Bytes(), w, h, seq)
			fd.Timestamp = time.Now().UnixNano()
			fd.Crop = cropFor(w, h, d.zoom())
			if err := driver.Deliver(fd); err != nil {
				log.Printf("[sim] Warning: %v", err)
				continue
			}
			seq++
			count.Add(1)
			if deliver != nil {
				deliver(fd)
			} else {
				d.slots.Release(fd)
			}
		}
	}()
	return s
}

func (d *Driver) zoom() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parms[driver.ParmZoom]
}

// cropFor models the zoom engine: each step trims 5% off the field of view
func cropFor(w, h int, zoom int32) frame.Crop {
	c := frame.Crop{InWidth: w, InHeight: h, OutWidth: w, OutHeight: h}
	if zoom <= 0 {
		return c
	}
	c.InWidth = (w * 100 / (100 + 5*int(zoom))) &^ 1
	c.InHeight = (h * 100 / (100 + 5*int(zoom))) &^ 1
	return c
}

// Paint writes a moving gradient into an NV21 frame
func Paint(buf []byte, w, h, seq int) {
	luma := w * h
	if luma > len(buf) {
		luma = len(buf)
	}
	if w <= 0 {
		luma = 0
	}
	for y := 0; y*w < luma; y++ {
		row := buf[y*w : min(y*w+w, luma)]
		for x := range row {
			row[x] = byte(x + y + seq)
		}
	}
	for i := luma; i < len(buf); i++ {
		buf[i] = 128
	}
}

func (d *Driver) StartSnapshot(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return driver.ErrNotOpen
	}
	if d.snapshot != nil {
		return driver.ErrBusy
	}
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{cancel: cancel, done: make(chan struct{})}
	d.snapshot = s
	cb := d.cb
	w, h := d.dim.Picture.Width, d.dim.Picture.Height
	fail := d.faults.SnapshotFail

	go func() {
		defer close(s.done)
		err := d.capture(ctx, cb, n, w, h, fail)
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

func (d *Driver) capture(ctx context.Context, cb driver.Callbacks, n, w, h int, fail bool) error {
	select {
	case <-ctx.Done():
		return context.Canceled
	case <-time.After(d.interval):
	}
	if cb.OnShutter != nil {
		cb.OnShutter()
	}
	if fail {
		return errors.New("sim: snapshot: injected failure")
	}
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return context.Canceled
		}
		fd := d.slots.Take(frame.RoleMainImage)
		if fd == nil {
			return fmt.Errorf("sim: snapshot %d/%d: no main image buffer", i+1, n)
		}
		Paint(fd.Bytes(), w, h, i)
		fd.Timestamp = time.Now().UnixNano()
		if err := driver.Deliver(fd); err != nil {
			return err
		}
		d.snapshots.Add(1)
		if cb.OnSnapshot != nil {
			cb.OnSnapshot(fd)
		}
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

func (d *Driver) AutoFocus(mode int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return driver.ErrNotOpen
	}
	if d.focus != nil {
		return driver.ErrBusy
	}
	d.focusRequests.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{cancel: cancel, done: make(chan struct{})}
	d.focus = s
	cb := d.cb
	delay, fail := d.faults.FocusDelay, d.faults.FocusFail

	go func() {
		defer close(s.done)
		status := driver.FocusSuccess
		select {
		case <-ctx.Done():
			status = driver.FocusCancelled
		case <-time.After(delay):
			if fail {
				status = driver.FocusFailed
			}
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
		FocusRequests: d.focusRequests.Load(),
		Registered:    d.slots.Total(),
	}
}
