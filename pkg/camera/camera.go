// Package camera is the capture session: it sequences the driver, buffer
// pools, display bridge and worker goroutines through preview, recording and
// still capture, and validates the string-keyed parameter surface against the
// board profile.
package camera

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/video-system/go-camera-hal/pkg/board"
	"github.com/video-system/go-camera-hal/pkg/display"
	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/frame"
	"github.com/video-system/go-camera-hal/pkg/mempool"
	"github.com/video-system/go-camera-hal/pkg/params"
	"github.com/video-system/go-camera-hal/pkg/ringbuffer"
)

// DefaultFrameTimeout is how long the frame worker waits for a preview frame
// before declaring the capture engine wedged
const DefaultFrameTimeout = 5 * time.Second

// Options configure a session
type Options struct {
	Allocator    mempool.Allocator // used when the host supplies no Memory callback
	FrameTimeout time.Duration
	CopyPreview  bool              // copy frames into window buffers instead of registering them
	Parameters   map[string]string // applied over the defaults at open
}

// Session owns every piece of mutable camera state. Public methods are
// serialized by one mutex; stream workers never take it.
type Session struct {
	id    string
	opts  Options
	drv   driver.Driver
	board board.Profile
	sm    *stateMachine
	cbs   callbackSet

	mu       sync.Mutex
	released bool

	paramsMu           sync.Mutex
	params             *params.Parameters
	hfrChange          bool
	displayOrientation int

	// preview
	win              display.Window
	bridge           *display.Bridge
	previewPool      *mempool.Pool
	previewBufs      []*frame.Descriptor
	previewQueue     *frame.Queue
	frames           atomic.Pointer[chan *frame.Descriptor]
	frameWorker      *worker
	previewWorker    *worker
	previewActive    bool
	copyPreview      bool
	previewDim       params.Size
	previewStreaming bool
	timedOut         atomic.Bool
	previewFrames    atomic.Int64
	ring             *ringbuffer.Buffer
	hist             histogram
	faceDetect       atomic.Bool
	hfrDivisor       atomic.Int32

	rec   recorder
	snap  snapshotter
	focus focuser
	zoom  zoomer

	hfrWorker *worker
}

// Open creates a session on an unopened driver. The profile is fixed for the
// life of the session.
func Open(opts Options, drv driver.Driver, profile board.Profile) (*Session, error) {
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = DefaultFrameTimeout
	}
	if opts.Allocator == nil {
		opts.Allocator = mempool.HeapAllocator{}
	}
	s := &Session{
		id:            uuid.NewString(),
		opts:          opts,
		drv:           drv,
		board:         profile,
		previewQueue:  frame.NewQueue(),
		frameWorker:   newWorker("frame"),
		previewWorker: newWorker("preview"),
		hfrWorker:     newWorker("hfr"),
	}
	s.sm = newStateMachine(func(from, to State) {
		log.Printf("[camera] %s: %s -> %s", s.shortID(), from, to)
	})
	s.rec.init()
	s.snap.init()
	s.focus.init()
	s.zoom.init()
	s.params = defaultParameters(profile)

	cb := driver.Callbacks{
		OnPreviewFrame: s.onPreviewFrame,
		OnVideoFrame:   s.onVideoFrame,
		OnShutter:      s.onShutter,
		OnSnapshot:     s.onSnapshot,
		OnSnapshotDone: s.onSnapshotDone,
		OnFocus:        s.onFocus,
		OnError:        s.onDriverError,
	}
	if err := drv.Open(cb); err != nil {
		return nil, fmt.Errorf("open driver %s: %w", drv.Name(), err)
	}

	initial := s.params.Clone()
	if len(opts.Parameters) > 0 {
		initial.Merge(params.FromMap(opts.Parameters))
	}
	if err := s.SetParameters(initial); err != nil {
		log.Printf("[camera] Warning: initial parameters: %v", err)
	}
	log.Printf("[camera] session %s opened on %s (driver %s)", s.id, profile.Target, drv.Name())
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

func (s *Session) shortID() string { return s.id[:8] }

// Profile returns the board profile
func (s *Session) Profile() board.Profile { return s.board }

// State returns the current session phase
func (s *Session) State() State { return s.sm.current() }

// SetCallbacks installs the host callbacks
func (s *Session) SetCallbacks(cb Callbacks) {
	s.cbs.set(cb)
}

// EnableMsgType enables callback message types
func (s *Session) EnableMsgType(m MsgType) { s.cbs.enable(m) }

// DisableMsgType disables callback message types
func (s *Session) DisableMsgType(m MsgType) { s.cbs.disable(m) }

// MsgTypeEnabled reports whether any of the given message types is enabled
func (s *Session) MsgTypeEnabled(m MsgType) bool { return s.cbs.isEnabled(m) }

// SetPreviewWindow binds the display surface. Binding a window while a
// deferred preview is pending starts the real preview. Passing nil while
// preview runs stops it and leaves it pending.
func (s *Session) SetPreviewWindow(w display.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if w == s.win {
		return nil
	}
	if w == nil {
		if s.sm.is(StatePreviewRunning, StateRecording, StatePreviewStarting) {
			s.stopPreviewInternal(false)
			s.win = nil
			return s.sm.fire(evDeferPreview)
		}
		s.win = nil
		return nil
	}
	if s.previewActive && s.sm.is(StatePreviewRunning, StateRecording) {
		return fmt.Errorf("%w: window change while preview is running", ErrInvalidOperation)
	}
	s.win = w
	if s.sm.is(StatePreviewDeferred) {
		log.Printf("[camera] window bound, leaving dummy preview")
		return s.startPreviewInternal()
	}
	return nil
}

// StartPreview starts streaming into the bound window. Without a window it
// marks preview as enabled and defers the real start until one is bound.
func (s *Session) StartPreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	s.snap.wait()
	switch s.sm.current() {
	case StatePreviewRunning, StateRecording, StatePreviewDeferred:
		return nil
	}
	if s.win == nil {
		log.Printf("[camera] no window bound, starting dummy preview")
		return s.sm.fire(evDeferPreview)
	}
	return s.startPreviewInternal()
}

// StopPreview stops streaming and releases the preview buffers
func (s *Session) StopPreview() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.stopPreviewInternal(false)
}

// PreviewEnabled reports whether preview is running or pending a window
func (s *Session) PreviewEnabled() bool {
	return s.sm.is(StatePreviewDeferred, StatePreviewStarting, StatePreviewRunning, StateRecording)
}

// Release tears the session down. It is safe to call more than once and on a
// session that never started preview.
func (s *Session) Release() {
	s.hfrWorker.stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.snap.worker.stop()
	s.sm.mustFire(evRelease)
	s.stopPreviewInternal(false)
	if err := s.drv.Close(); err != nil {
		log.Printf("[camera] Warning: close driver: %v", err)
	}
	s.released = true
	s.sm.mustFire(evReleased)
	log.Printf("[camera] session %s released", s.id)
}

// SessionStatus is a snapshot of session counters
type SessionStatus struct {
	ID             string                   `json:"id"`
	State          State                    `json:"state"`
	Target         string                   `json:"target"`
	Driver         string                   `json:"driver"`
	PreviewEnabled bool                     `json:"preview_enabled"`
	Recording      bool                     `json:"recording"`
	PreviewFrames  int64                    `json:"preview_frames"`
	VideoFrames    int64                    `json:"video_frames"`
	VideoReleased  int64                    `json:"video_released"`
	Pictures       int64                    `json:"pictures"`
	Focusing       bool                     `json:"focusing"`
	Zoom           int                      `json:"zoom"`
	Histogram      bool                     `json:"histogram"`
	FaceDetection  bool                     `json:"face_detection"`
	ZSL            *ringbuffer.BufferStatus `json:"zsl,omitempty"`
}

// Status returns a snapshot of the session counters
func (s *Session) Status() SessionStatus {
	st := SessionStatus{
		ID:             s.id,
		State:          s.sm.current(),
		Target:         s.board.Target.String(),
		Driver:         s.drv.Name(),
		PreviewEnabled: s.PreviewEnabled(),
		Recording:      s.RecordingEnabled(),
		PreviewFrames:  s.previewFrames.Load(),
		VideoFrames:    s.rec.delivered.Load(),
		VideoReleased:  s.rec.released.Load(),
		Pictures:       s.snap.pictures.Load(),
		Focusing:       s.focus.worker.isRunning(),
		Zoom:           s.zoom.currentValue(),
		Histogram:      s.hist.isEnabled(),
		FaceDetection:  s.faceDetect.Load(),
	}
	s.mu.Lock()
	if s.ring != nil {
		rs := s.ring.GetStatus()
		st.ZSL = &rs
	}
	s.mu.Unlock()
	return st
}

// Dump writes the session state, buffers and parameters
func (s *Session) Dump(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(w, "session %s (%s, driver %s)\n", s.id, s.board.Target, s.drv.Name())
	fmt.Fprintf(w, "state: %s released=%v timed_out=%v\n", s.sm.current(), s.released, s.timedOut.Load())
	fmt.Fprintf(w, "workers: %s, %s, %s, %s, %s, %s, %s\n", s.frameWorker, s.previewWorker,
		s.rec.worker, s.snap.worker, s.focus.worker, s.zoom.worker, s.hfrWorker)
	fmt.Fprintf(w, "frames: preview=%d video=%d released=%d pictures=%d\n",
		s.previewFrames.Load(), s.rec.delivered.Load(), s.rec.released.Load(), s.snap.pictures.Load())
	if s.bridge != nil {
		for _, d := range s.bridge.Descriptors() {
			fmt.Fprintf(w, "  window %s\n", d)
		}
	}
	if s.previewPool != nil {
		for _, d := range s.previewPool.Buffers() {
			fmt.Fprintf(w, "  pool %s\n", d)
		}
	}
	if pool := s.rec.currentPool(); pool != nil {
		for _, d := range pool.Buffers() {
			fmt.Fprintf(w, "  record %s\n", d)
		}
	}
	_, err := fmt.Fprintf(w, "parameters: %s\n", s.GetParameters().Flatten())
	return err
}

// allocator returns the host memory callback or the configured allocator
func (s *Session) allocator() mempool.Allocator {
	if a := s.cbs.allocator(); a != nil {
		return a
	}
	return s.opts.Allocator
}

// releaseToDriver hands an engine-owned slot back to the driver free list
func (s *Session) releaseToDriver(d *frame.Descriptor) {
	if err := s.drv.ReleaseFrame(d); err != nil {
		log.Printf("[camera] Warning: release %s to driver: %v", d, err)
	}
}

// onDriverError reports a driver failure. A lost device leaves the session
// idle the way the watchdog does, so the watchdog stays quiet afterwards.
func (s *Session) onDriverError(err error) {
	log.Printf("[camera] driver error: %v", err)
	if !errors.Is(err, driver.ErrDeviceLost) {
		s.cbs.notify(MsgError, ErrorUnknown, 0)
		return
	}
	if s.timedOut.Swap(true) {
		return
	}
	if s.sm.can(evFault) {
		s.sm.mustFire(evFault)
	}
	s.cbs.notify(MsgError, ErrorServerDied, 0)
}
