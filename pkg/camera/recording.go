package camera

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"

	"github.com/video-system/go-camera-hal/pkg/display"
	"github.com/video-system/go-camera-hal/pkg/frame"
	"github.com/video-system/go-camera-hal/pkg/mempool"
)

// VideoBufferMetadata replaces the pixel data of video callbacks when the
// host asked for metadata in buffers
type VideoBufferMetadata struct {
	Fd        uintptr `cbor:"fd"`
	Offset    int64   `cbor:"offset"`
	Size      int     `cbor:"size"`
	Index     int     `cbor:"index"`
	Timestamp int64   `cbor:"ts"`
}

// DecodeVideoMetadata parses a metadata-mode video callback payload
func DecodeVideoMetadata(b []byte) (VideoBufferMetadata, error) {
	var m VideoBufferMetadata
	if err := cbor.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode video metadata: %w", err)
	}
	return m, nil
}

// recorder owns the video pool and the release protocol with the host. A
// slot handed to the host is client-owned until ReleaseRecordingFrame.
type recorder struct {
	worker *worker
	queue  *frame.Queue

	mu       sync.Mutex
	cond     *sync.Cond
	active   bool
	metaMode bool
	dualVFE  bool
	pool     *mempool.Pool
	retired  []*mempool.Pool // stopped pools with slots still held by the host
	next     int
	inflight sync.WaitGroup

	waiting   atomic.Bool
	delivered atomic.Int64
	released  atomic.Int64
}

func (r *recorder) init() {
	r.worker = newWorker("video")
	r.queue = frame.NewQueue()
	r.cond = sync.NewCond(&r.mu)
}

func (r *recorder) isActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// blocked reports whether the preview path is waiting on the host to release
// a recording frame
func (r *recorder) blocked() bool {
	return r.waiting.Load()
}

func (r *recorder) currentPool() *mempool.Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool
}

// StoreMetaDataInBuffers selects whether video callbacks carry pixel data or
// a CBOR buffer descriptor. It applies to the next recording.
func (s *Session) StoreMetaDataInBuffers(enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	if s.rec.active {
		return fmt.Errorf("%w: recording in progress", ErrInvalidOperation)
	}
	s.rec.metaMode = enable
	return nil
}

// StartRecording starts delivering video frames. Preview must be running.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if s.sm.is(StateRecording) {
		return nil
	}
	if !s.sm.is(StatePreviewRunning) {
		return fmt.Errorf("%w: recording needs a running preview (state %s)", ErrInvalidOperation, s.sm.current())
	}
	if err := s.startRecordingInternal(); err != nil {
		return err
	}
	return s.sm.fire(evStartRecording)
}

// StopRecording stops video delivery. Frames still held by the host may be
// released afterwards; their memory stays valid until then.
func (s *Session) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sm.is(StateRecording) {
		return
	}
	s.stopRecordingInternal()
	s.sm.mustFire(evStopRecording)
}

// RecordingEnabled reports whether video frames are being delivered
func (s *Session) RecordingEnabled() bool {
	return s.rec.isActive()
}

// ReleaseRecordingFrame hands a video slot back after the host is done with
// it. It may be called from any goroutine, including inside the callback.
// Slots of a stopped recording stay mapped until their release.
func (s *Session) ReleaseRecordingFrame(index int) {
	r := &s.rec
	r.mu.Lock()
	d, retired := r.heldLocked(index)
	if d == nil {
		r.mu.Unlock()
		log.Printf("[recording] Warning: release of unknown frame %d", index)
		return
	}
	if err := d.Transfer(frame.OwnerClient, frame.OwnerEngine); err != nil {
		r.mu.Unlock()
		log.Printf("[recording] Warning: release frame %d: %v", index, err)
		return
	}
	r.released.Add(1)
	if retired != nil {
		done := clientHeld(retired) == 0
		if done {
			r.retired = slices.DeleteFunc(r.retired, func(p *mempool.Pool) bool { return p == retired })
		}
		r.mu.Unlock()
		if done {
			log.Printf("[recording] last held frame of a stopped recording released")
			if err := retired.Close(); err != nil {
				log.Printf("[recording] Warning: %v", err)
			}
		}
		return
	}
	dual := r.dualVFE && r.active
	r.cond.Broadcast()
	r.mu.Unlock()

	if dual {
		s.releaseToDriver(d)
	}
}

// heldLocked finds the client-owned slot at index, preferring the live pool.
// retired is the stopped pool the slot belongs to, if any.
func (r *recorder) heldLocked(index int) (d *frame.Descriptor, retired *mempool.Pool) {
	if r.pool != nil && index >= 0 && index < r.pool.Len() {
		if b := r.pool.Buffer(index); b.Owner() == frame.OwnerClient {
			return b, nil
		}
	}
	for _, p := range r.retired {
		if index >= 0 && index < p.Len() {
			if b := p.Buffer(index); b.Owner() == frame.OwnerClient {
				return b, p
			}
		}
	}
	return nil, nil
}

func clientHeld(p *mempool.Pool) int {
	n := 0
	for _, d := range p.Buffers() {
		if d.Owner() == frame.OwnerClient {
			n++
		}
	}
	return n
}

// RecordingBuffer returns the pixel data of a video slot, for hosts running
// in metadata mode
func (s *Session) RecordingBuffer(index int) []byte {
	pool := s.rec.currentPool()
	if pool == nil || index < 0 || index >= pool.Len() {
		return nil
	}
	return pool.Buffer(index).Bytes()
}

// startRecordingInternal allocates the video pool. Dual-VFE targets get a
// second driver stream; single-VFE targets copy preview frames.
func (s *Session) startRecordingInternal() error {
	r := &s.rec
	size := s.previewDim
	n := s.board.PreviewBuffers
	if s.board.DualVFE {
		size = s.videoSize()
		n = s.board.RecordBuffers
	}
	pool, err := mempool.New(mempool.Config{
		Name:       "record",
		Role:       frame.RoleVideo,
		BufferSize: display.FrameSize(display.FormatNV21, size.Width, size.Height),
		NumBuffers: n,
		CbCrOffset: size.Width * size.Height,
		Register:   s.board.DualVFE,
	}, s.allocator(), s.drv)
	if err != nil {
		return fmt.Errorf("allocate record pool: %w", err)
	}

	r.mu.Lock()
	r.pool = pool
	r.dualVFE = s.board.DualVFE
	r.next = 0
	r.delivered.Store(0)
	r.released.Store(0)
	r.active = true
	r.mu.Unlock()

	if s.board.DualVFE {
		if err := s.startVideoStream(pool); err != nil {
			s.stopRecordingInternal()
			return err
		}
	}
	log.Printf("[recording] started %v, %d buffers, dual VFE %v, metadata %v",
		size, n, s.board.DualVFE, r.metaMode)
	return nil
}

func (s *Session) startVideoStream(pool *mempool.Pool) error {
	r := &s.rec
	r.queue.Init()
	if err := r.worker.start(s.videoLoop); err != nil {
		return err
	}
	for _, d := range pool.Buffers() {
		if err := s.drv.ReleaseFrame(d); err != nil {
			return fmt.Errorf("queue video buffer %d: %w", d.Index, err)
		}
	}
	if err := s.drv.StartVideo(); err != nil {
		return fmt.Errorf("start video: %w", err)
	}
	return nil
}

// stopRecordingInternal is a no-op when recording is not active
func (s *Session) stopRecordingInternal() {
	r := &s.rec
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	dual := r.dualVFE
	r.cond.Broadcast()
	r.mu.Unlock()

	if dual {
		if err := s.drv.StopVideo(); err != nil {
			log.Printf("[recording] Warning: stop video: %v", err)
		}
		r.queue.Deinit()
		r.worker.stop()
		for _, d := range r.queue.Flush() {
			s.releaseToDriver(d)
		}
	}
	r.inflight.Wait()

	r.mu.Lock()
	pool := r.pool
	r.pool = nil
	if pool != nil {
		if held := clientHeld(pool); held > 0 {
			log.Printf("[recording] host still holds %d frames, pool retired until released", held)
			r.retired = append(r.retired, pool)
			pool = nil
		}
	}
	r.mu.Unlock()
	if pool != nil {
		if err := pool.Close(); err != nil {
			log.Printf("[recording] Warning: %v", err)
		}
	}
	log.Printf("[recording] stopped: %d delivered, %d released", r.delivered.Load(), r.released.Load())
}

// onVideoFrame runs on the driver's video stream goroutine
func (s *Session) onVideoFrame(d *frame.Descriptor) {
	if !s.rec.queue.Add(d) {
		s.releaseToDriver(d)
	}
}

// videoLoop forwards dual-VFE video frames to the host. Slots the host holds
// are not on the driver's free list, so the driver itself waits for releases.
func (s *Session) videoLoop(ctx context.Context) {
	r := &s.rec
	for {
		d := r.queue.Get()
		if d == nil {
			return
		}
		r.mu.Lock()
		meta := r.metaMode
		r.mu.Unlock()
		if !s.emitVideo(d, d.Timestamp, meta) {
			s.releaseToDriver(d)
		}
	}
}

// deliverCopy copies a preview frame into the next video slot, waiting while
// the host still holds that slot
func (r *recorder) deliverCopy(ctx context.Context, s *Session, src *frame.Descriptor) {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	if !r.active || r.pool == nil {
		r.mu.Unlock()
		return
	}
	d := r.pool.Buffer(r.next)
	r.next = (r.next + 1) % r.pool.Len()
	for r.active && ctx.Err() == nil && d.Owner() != frame.OwnerEngine {
		r.waiting.Store(true)
		r.cond.Wait()
	}
	r.waiting.Store(false)
	if !r.active || ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	meta := r.metaMode
	r.inflight.Add(1)
	r.mu.Unlock()
	defer r.inflight.Done()

	copy(d.Data, src.Bytes())
	s.emitVideo(d, src.Timestamp, meta)
}

// emitVideo hands an engine-owned slot to the host. It reports false, with
// the slot still engine-owned, when nobody took it.
func (s *Session) emitVideo(d *frame.Descriptor, ts int64, meta bool) bool {
	data := d.Bytes()
	if meta {
		b, err := cbor.Marshal(VideoBufferMetadata{
			Fd:        d.Fd,
			Offset:    d.Offset,
			Size:      d.Size,
			Index:     d.Index,
			Timestamp: ts,
		})
		if err != nil {
			log.Printf("[recording] Warning: encode metadata: %v", err)
			return false
		}
		data = b
	}
	if err := d.Transfer(frame.OwnerEngine, frame.OwnerClient); err != nil {
		log.Printf("[recording] Warning: %v", err)
		return false
	}
	if !s.cbs.dataTimestamp(ts, MsgVideoFrame, data, d.Index) {
		d.Transfer(frame.OwnerClient, frame.OwnerEngine)
		return false
	}
	s.rec.delivered.Add(1)
	return true
}
