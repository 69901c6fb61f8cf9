package camera

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/video-system/go-camera-hal/pkg/display"
	"github.com/video-system/go-camera-hal/pkg/frame"
	"github.com/video-system/go-camera-hal/pkg/mempool"
	"github.com/video-system/go-camera-hal/pkg/params"
	"github.com/video-system/go-camera-hal/pkg/ringbuffer"
)

// startPreviewInternal allocates the window buffers, starts the frame and
// preview workers and turns the stream on. s.mu must be held.
func (s *Session) startPreviewInternal() error {
	if s.previewActive {
		// left over from a watchdog fault
		s.teardownPreview(false)
	}
	if err := s.sm.fire(evStartPreview); err != nil {
		return err
	}
	if err := s.allocatePreview(); err != nil {
		s.teardownPreview(false)
		s.sm.mustFire(evPreviewFailed)
		return err
	}
	s.sm.mustFire(evPreviewStarted)
	return nil
}

// displayFormat picks the window pixel format for the preview
func (s *Session) displayFormat() display.PixelFormat {
	if s.board.NeedsYV12 {
		return display.FormatYV12
	}
	s.paramsMu.Lock()
	name := s.params.Get(params.KeyPreviewFormat)
	s.paramsMu.Unlock()
	if v, ok := params.PreviewFormats.Lookup(name); ok {
		return display.PixelFormat(v)
	}
	return display.FormatNV21
}

func (s *Session) allocatePreview() error {
	dim := s.dimension()
	if err := s.drv.SetDimension(dim); err != nil {
		return fmt.Errorf("set dimension: %w", err)
	}
	w, h := dim.Preview.Width, dim.Preview.Height
	format := s.displayFormat()
	copyMode := s.opts.CopyPreview || format == display.FormatYV12

	extra := 0
	if s.zslEnabled() {
		extra = s.board.ZSLExtraBuffers
	}
	usage := display.UsageSWRead | display.UsageSWWrite | display.UsageHWCamera
	if !copyMode {
		usage |= display.UsageHWTexture | display.UsagePrivateUnca
	}

	s.previewActive = true
	s.bridge = display.NewBridge(s.win, s.drv)
	descs, err := s.bridge.Acquire(display.Geometry{
		Width:    w,
		Height:   h,
		Format:   format,
		Usage:    usage,
		Active:   s.board.PreviewBuffers,
		Extra:    extra,
		Postview: 1,
		Register: !copyMode,
	})
	if err != nil {
		return fmt.Errorf("acquire preview buffers: %w", err)
	}

	bufs := descs
	if copyMode {
		pool, err := mempool.New(mempool.Config{
			Name:       "preview",
			Role:       frame.RolePreview,
			BufferSize: display.FrameSize(display.FormatNV21, w, h),
			NumBuffers: len(descs),
			CbCrOffset: w * h,
			Register:   true,
		}, s.allocator(), s.drv)
		if err != nil {
			return fmt.Errorf("allocate preview pool: %w", err)
		}
		s.previewPool = pool
		bufs = pool.Buffers()
	}
	s.previewBufs = bufs
	s.copyPreview = copyMode
	s.previewDim = dim.Preview

	ring, err := ringbuffer.New(ringbuffer.Config{
		Name:      "zsl",
		Capacity:  s.board.MaxBurst(),
		FrameSize: display.FrameSize(display.FormatNV21, w, h),
		Width:     w,
		Height:    h,
	}, s.allocator())
	if err != nil {
		return fmt.Errorf("allocate zsl ring: %w", err)
	}
	s.ring = ring

	s.previewFrames.Store(0)
	s.timedOut.Store(false)
	s.previewQueue.Init()
	frames := make(chan *frame.Descriptor, len(bufs))
	s.frames.Store(&frames)

	if err := s.previewWorker.start(s.previewLoop); err != nil {
		return err
	}
	if err := s.frameWorker.start(func(ctx context.Context) { s.frameLoop(ctx, frames) }); err != nil {
		return err
	}

	for _, d := range bufs {
		if err := s.drv.ReleaseFrame(d); err != nil {
			return fmt.Errorf("queue preview buffer %d: %w", d.Index, err)
		}
	}
	if err := s.drv.StartPreview(); err != nil {
		return fmt.Errorf("start preview: %w", err)
	}
	s.previewStreaming = true
	log.Printf("[preview] started %dx%d %s (%d buffers, copy=%v, zsl extra=%d)",
		w, h, format, len(bufs), copyMode, extra)
	return nil
}

// stopPreviewInternal tears down a real preview and leaves the state idle.
// A deferred preview only changes state. s.mu must be held.
func (s *Session) stopPreviewInternal(keepPostview bool) {
	if s.previewActive {
		s.teardownPreview(keepPostview)
	}
	if s.sm.can(evStopPreview) {
		s.sm.mustFire(evStopPreview)
	}
}

// teardownPreview stops every preview consumer, the stream and the workers,
// then returns the window buffers. The window buffers are cancelled before the
// copy pool goes away.
func (s *Session) teardownPreview(keepPostview bool) {
	s.stopRecordingInternal()
	s.cancelFocusInternal()
	s.zoom.stop()

	if s.previewStreaming {
		if err := s.drv.StopPreview(); err != nil && !s.timedOut.Load() {
			log.Printf("[preview] Warning: stop preview: %v", err)
		}
		s.previewStreaming = false
	}
	s.frameWorker.stop()
	s.previewWorker.stop()
	s.frames.Store(nil)
	s.releaseQueued()

	if s.ring != nil {
		s.ring.Close()
		s.ring = nil
	}
	if s.bridge != nil {
		s.bridge.Release()
		if !keepPostview {
			s.bridge.ReleasePostview()
		}
		s.bridge = nil
	}
	if s.previewPool != nil {
		if err := s.previewPool.Close(); err != nil {
			log.Printf("[preview] Warning: %v", err)
		}
		s.previewPool = nil
	}
	s.previewBufs = nil
	s.previewActive = false
	log.Printf("[preview] stopped after %d frames", s.previewFrames.Load())
}

// releaseQueued returns every frame parked in the preview queue to the driver
func (s *Session) releaseQueued() {
	for _, d := range s.previewQueue.Flush() {
		s.releaseToDriver(d)
	}
}

// onPreviewFrame runs on the driver's stream goroutine and never blocks
func (s *Session) onPreviewFrame(d *frame.Descriptor) {
	ch := s.frames.Load()
	if ch == nil {
		s.releaseToDriver(d)
		return
	}
	select {
	case *ch <- d:
	default:
		s.releaseToDriver(d)
	}
}

// frameLoop moves driver frames onto the preview queue and watches for a
// wedged capture engine
func (s *Session) frameLoop(ctx context.Context, frames chan *frame.Descriptor) {
	timer := time.NewTimer(s.opts.FrameTimeout)
	defer func() {
		timer.Stop()
		s.previewQueue.Deinit()
		s.previewWorker.stop()
		s.releaseQueued()
		for {
			select {
			case d := <-frames:
				s.releaseToDriver(d)
			default:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-frames:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.opts.FrameTimeout)
			if !s.previewQueue.Add(d) {
				s.releaseToDriver(d)
			}
		case <-timer.C:
			if s.rec.blocked() {
				timer.Reset(s.opts.FrameTimeout)
				continue
			}
			if s.timedOut.Swap(true) {
				return
			}
			log.Printf("[preview] Warning: no frame for %v, capture engine wedged", s.opts.FrameTimeout)
			if s.sm.can(evFault) {
				s.sm.mustFire(evFault)
			}
			s.cbs.notify(MsgError, ErrorUnknown, 0)
			return
		}
	}
}

// previewLoop consumes the preview queue until it is deinitialized
func (s *Session) previewLoop(ctx context.Context) {
	for {
		d := s.previewQueue.Get()
		if d == nil {
			return
		}
		s.handlePreviewFrame(ctx, d)
	}
}

func (s *Session) handlePreviewFrame(ctx context.Context, d *frame.Descriptor) {
	n := s.previewFrames.Add(1)
	if n == 1 {
		log.Printf("[preview] first frame (%s)", d)
	}
	if div := int64(s.hfrDivisor.Load()); div > 1 && n%div != 0 {
		s.releaseToDriver(d)
		return
	}

	s.zoom.frameArrived()

	data := d.Bytes()
	recording := s.rec.isActive()
	if s.ring != nil {
		if recording || s.zslEnabled() {
			s.ring.Push(data, d.Timestamp)
		} else {
			// a gap in the feed makes the buffered frames stale
			s.ring.Reset()
		}
	}
	if s.hist.isEnabled() {
		s.hist.compute(data, s.previewDim.Width*s.previewDim.Height)
		s.cbs.data(MsgStatsData, s.hist.bytes(), 0, nil)
	}
	if s.faceDetect.Load() {
		s.cbs.data(MsgPreviewMetadata, nil, d.Index, &Metadata{Faces: []Face{}})
	}
	s.cbs.data(MsgPreviewFrame, data, d.Index, nil)

	if recording && !s.board.DualVFE {
		s.rec.deliverCopy(ctx, s, d)
	}

	if err := s.bridge.ApplyCrop(d.Crop); err != nil {
		log.Printf("[preview] Warning: set crop: %v", err)
	}
	if s.copyPreview {
		if err := s.bridge.DisplayCopy(data); err != nil {
			log.Printf("[preview] Warning: display copy: %v", err)
		}
		s.releaseToDriver(d)
		return
	}
	next, err := s.bridge.Display(d)
	if err != nil {
		log.Printf("[preview] Warning: display frame: %v", err)
		if d.Owner() == frame.OwnerEngine {
			s.releaseToDriver(d)
		}
	}
	for _, r := range next {
		s.releaseToDriver(r)
	}
}
