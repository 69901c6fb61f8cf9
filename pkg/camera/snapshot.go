package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/video-system/go-camera-hal/pkg/display"
	"github.com/video-system/go-camera-hal/pkg/frame"
	"github.com/video-system/go-camera-hal/pkg/mempool"
	"github.com/video-system/go-camera-hal/pkg/params"
	"github.com/video-system/go-camera-hal/pkg/ringbuffer"
)

// liveSnapshotWait bounds how long a live snapshot waits for the ring to fill
const liveSnapshotWait = time.Second

// jpegHeadroom is added to a raw frame size to size the JPEG slots
const jpegHeadroom = 64 << 10

// snapshotJob is the immutable description of one takePicture request
type snapshotJob struct {
	live         bool
	burst        int
	picture      params.Size
	preview      params.Size
	thumbnail    params.Size
	quality      int
	thumbQuality int
	raw          bool
	exif         []byte
	bridge       *display.Bridge
	ring         *ringbuffer.Buffer

	main     *mempool.Pool
	postview *mempool.Pool
	jpeg     *mempool.Pool

	shots chan *frame.Descriptor
	done  chan error
}

// Picture is the last compressed image delivered to the host
type Picture struct {
	ID        string      `json:"id"`
	Size      params.Size `json:"size"`
	Bytes     int         `json:"bytes"`
	Timestamp time.Time   `json:"timestamp"`
	Data      []byte      `json:"-"`
}

type snapshotter struct {
	worker   *worker
	job      atomic.Pointer[snapshotJob]
	pictures atomic.Int64

	mu     sync.Mutex
	latest *Picture
}

func (p *snapshotter) init() {
	p.worker = newWorker("snapshot")
}

// wait blocks until a running snapshot has finished
func (p *snapshotter) wait() {
	p.worker.wait()
}

func (p *snapshotter) store(pic *Picture) {
	p.mu.Lock()
	p.latest = pic
	p.mu.Unlock()
	p.pictures.Add(1)
}

// LatestPicture returns the last compressed picture, or nil
func (s *Session) LatestPicture() *Picture {
	s.snap.mu.Lock()
	defer s.snap.mu.Unlock()
	return s.snap.latest
}

// TakePicture captures num-snaps-per-shutter pictures. A request made while
// an earlier capture is still running waits for it. With zero shutter lag or
// while recording the picture comes from recent preview frames and preview
// keeps running; otherwise preview is stopped and must be restarted by the
// host afterwards.
func (s *Session) TakePicture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	s.snap.wait()

	job := s.newSnapshotJob()
	if s.sm.is(StateRecording) || (s.sm.is(StatePreviewRunning) && s.zslEnabled()) {
		job.live = true
		job.ring = s.ring
		log.Printf("[snapshot] live capture of %d from the preview ring", job.burst)
		return s.snap.worker.startFinal(s.runSnapshot(job, s.liveSnapshotLoop))
	}

	if s.previewActive {
		job.bridge = s.bridge
	}
	s.stopPreviewInternal(true)
	if err := s.sm.fire(evTakePicture); err != nil {
		if job.bridge != nil {
			job.bridge.ReleasePostview()
		}
		return err
	}
	if err := s.allocateSnapshot(job); err != nil {
		s.finishSnapshot(job)
		return err
	}
	s.snap.job.Store(job)
	if err := s.snap.worker.startFinal(s.runSnapshot(job, s.snapshotLoop)); err != nil {
		s.finishSnapshot(job)
		return err
	}
	return nil
}

// CancelPicture stops a running capture and waits for its cleanup
func (s *Session) CancelPicture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	s.snap.worker.stop()
	return nil
}

func (s *Session) newSnapshotJob() *snapshotJob {
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	p := s.params
	picture, _ := p.Size(params.KeyPictureSize)
	preview, _ := p.Size(params.KeyPreviewSize)
	format, _ := params.PictureFormats.Lookup(p.Get(params.KeyPictureFormat))
	job := &snapshotJob{
		burst:        s.numSnapshotsLocked(),
		picture:      picture,
		preview:      preview,
		thumbnail:    params.Size{Width: p.GetInt(params.KeyJpegThumbnailWidth), Height: p.GetInt(params.KeyJpegThumbnailHeight)},
		quality:      p.GetInt(params.KeyJpegQuality),
		thumbQuality: p.GetInt(params.KeyJpegThumbnailQuality),
		raw:          format == params.PictureFormatRaw,
	}
	exif := buildExif(p, time.Now())
	b, err := exif.encode()
	if err != nil {
		log.Printf("[snapshot] Warning: encode exif: %v", err)
	}
	job.exif = b
	job.shots = make(chan *frame.Descriptor, job.burst)
	job.done = make(chan error, 1)
	return job
}

// allocateSnapshot programs the picture geometry and queues the main image
// slots with the driver
func (s *Session) allocateSnapshot(job *snapshotJob) error {
	dim := s.dimension()
	if err := s.drv.SetDimension(dim); err != nil {
		return fmt.Errorf("set dimension: %w", err)
	}
	w, h := job.picture.Width, job.picture.Height
	frameSize := display.FrameSize(display.FormatNV21, w, h)
	alloc := s.allocator()

	var err error
	job.main, err = mempool.New(mempool.Config{
		Name:       "snapshot",
		Role:       frame.RoleMainImage,
		BufferSize: frameSize,
		NumBuffers: job.burst,
		CbCrOffset: w * h,
		Register:   true,
	}, alloc, s.drv)
	if err != nil {
		return fmt.Errorf("allocate snapshot pool: %w", err)
	}
	pw, ph := job.preview.Width, job.preview.Height
	job.postview, err = mempool.New(mempool.Config{
		Name:       "postview",
		Role:       frame.RolePostview,
		BufferSize: display.FrameSize(display.FormatNV21, pw, ph),
		NumBuffers: 1,
		CbCrOffset: pw * ph,
	}, alloc, nil)
	if err != nil {
		return fmt.Errorf("allocate postview pool: %w", err)
	}
	if !job.raw {
		job.jpeg, err = mempool.New(mempool.Config{
			Name:       "jpeg",
			Role:       frame.RoleJpeg,
			BufferSize: frameSize + jpegHeadroom,
			NumBuffers: job.burst,
		}, alloc, nil)
		if err != nil {
			return fmt.Errorf("allocate jpeg pool: %w", err)
		}
	}
	for _, d := range job.main.Buffers() {
		if err := s.drv.ReleaseFrame(d); err != nil {
			return fmt.Errorf("queue snapshot buffer %d: %w", d.Index, err)
		}
	}
	log.Printf("[snapshot] %d x %v (thumbnail %v, raw %v)", job.burst, job.picture, job.thumbnail, job.raw)
	return nil
}

// shotResult is the host delivery of one shot. data may point into a
// snapshot pool until detach copies it out.
type shotResult struct {
	msg   MsgType
	idx   int
	data  []byte
	owned []byte
	meta  *Metadata
	pic   *Picture
}

// detach makes the result independent of the snapshot pools
func (r *shotResult) detach() {
	if r.owned == nil && r.data != nil {
		r.owned = bytes.Clone(r.data)
	}
	r.data = r.owned
}

func (s *Session) deliver(r *shotResult) {
	if r.pic != nil {
		s.snap.store(r.pic)
	}
	s.cbs.data(r.msg, r.data, r.idx, r.meta)
}

// nullShot tells the host the capture produced nothing
func nullShot() *shotResult {
	return &shotResult{msg: MsgCompressedImage}
}

// runSnapshot wraps a capture loop for the snapshot worker. Each result is
// delivered once the next one exists; the last is detached and delivered
// after the resources are returned and the worker has exited, so the host
// may restart preview from that callback.
func (s *Session) runSnapshot(job *snapshotJob, capture func(ctx context.Context, job *snapshotJob, emit func(*shotResult))) func(ctx context.Context) func() {
	return func(ctx context.Context) func() {
		var last *shotResult
		capture(ctx, job, func(r *shotResult) {
			if last != nil {
				s.deliver(last)
			}
			last = r
		})
		if last != nil {
			last.detach()
		}
		s.finishSnapshot(job)
		if last == nil {
			return nil
		}
		return func() { s.deliver(last) }
	}
}

// snapshotLoop drives one driver capture to completion or cancellation
func (s *Session) snapshotLoop(ctx context.Context, job *snapshotJob, emit func(*shotResult)) {
	if ctx.Err() != nil {
		return
	}
	if err := s.drv.StartSnapshot(job.burst); err != nil {
		log.Printf("[snapshot] Warning: start snapshot: %v", err)
		emit(nullShot())
		return
	}

	got := 0
	for got < job.burst {
		select {
		case <-ctx.Done():
			log.Printf("[snapshot] cancelled after %d of %d", got, job.burst)
			return
		case d := <-job.shots:
			emit(s.processShot(job, got, d.Bytes(), job.picture))
			got++
		case err := <-job.done:
			for drained := false; !drained; {
				select {
				case d := <-job.shots:
					emit(s.processShot(job, got, d.Bytes(), job.picture))
					got++
				default:
					drained = true
				}
			}
			if err != nil {
				log.Printf("[snapshot] Warning: capture failed after %d of %d: %v", got, job.burst, err)
				if got == 0 {
					emit(nullShot())
				}
			}
			return
		}
	}
	select {
	case <-job.done:
	case <-ctx.Done():
	}
}

// liveSnapshotLoop encodes preview frames without touching the stream. It
// prefers the newest frames exposed by the shutter and tops up with frames
// that arrive after it.
func (s *Session) liveSnapshotLoop(ctx context.Context, job *snapshotJob, emit func(*shotResult)) {
	shutter := time.Now().UnixNano()
	s.cbs.notify(MsgShutter, 0, 0)

	deadline := time.Now().Add(liveSnapshotWait)
	var frames []ringbuffer.Frame
	for {
		if job.ring != nil {
			frames = shutterFrames(job.ring, shutter, job.burst)
		}
		if len(frames) >= job.burst || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(frames) == 0 {
		log.Printf("[snapshot] Warning: no preview frames buffered")
		emit(nullShot())
		return
	}
	for i, f := range frames {
		if ctx.Err() != nil {
			return
		}
		emit(s.processShot(job, i, f.Data, params.Size{Width: f.Width, Height: f.Height}))
	}
}

// shutterFrames picks up to n frames around the shutter time, oldest first
func shutterFrames(ring *ringbuffer.Buffer, shutter int64, n int) []ringbuffer.Frame {
	frames := ring.GetFramesInRange(math.MinInt64, shutter+1)
	if len(frames) > n {
		frames = frames[len(frames)-n:]
	}
	if need := n - len(frames); need > 0 {
		after := ring.GetFramesInRange(shutter+1, math.MaxInt64)
		frames = append(frames, after[:min(need, len(after))]...)
	}
	return frames
}

// processShot turns one captured frame into postview and raw callbacks and
// returns its raw or compressed delivery
func (s *Session) processShot(job *snapshotJob, idx int, data []byte, size params.Size) *shotResult {
	img, err := nv21Image(data, size.Width, size.Height)
	if err != nil {
		log.Printf("[snapshot] Warning: shot %d: %v", idx, err)
		return nullShot()
	}
	var pic image.Image = img
	if size != job.picture && job.picture.Width > 0 && job.picture.Height > 0 {
		pic = scaleImage(img, job.picture)
	}

	if idx == 0 && job.postview != nil {
		s.showPostview(job, img)
	}

	id := uuid.NewString()
	if job.raw {
		return &shotResult{msg: MsgRawImage, idx: idx, data: data, meta: &Metadata{PictureID: id}}
	}
	s.cbs.notify(MsgRawImageNotify, 0, 0)

	main, thumb, err := encodeJPEG(pic, job.quality, job.thumbnail, job.thumbQuality)
	if err != nil {
		log.Printf("[snapshot] Warning: shot %d: %v", idx, err)
		return nullShot()
	}
	out := main
	if job.jpeg != nil && idx < job.jpeg.Len() {
		slot := job.jpeg.Buffer(idx)
		if len(main) <= len(slot.Data) {
			n := copy(slot.Data, main)
			out = slot.Data[:n]
		}
	}
	return &shotResult{
		msg:   MsgCompressedImage,
		idx:   idx,
		data:  out,
		owned: main,
		meta: &Metadata{
			PictureID: id,
			Exif:      job.exif,
			Thumbnail: thumb,
		},
		pic: &Picture{
			ID:        id,
			Size:      job.picture,
			Bytes:     len(main),
			Timestamp: time.Now(),
			Data:      main,
		},
	}
}

// showPostview scales the first shot to preview size, hands it to the host and
// shows it on the held window buffer
func (s *Session) showPostview(job *snapshotJob, img image.Image) {
	if job.preview.Width <= 0 || job.preview.Height <= 0 {
		return
	}
	nv21 := toNV21(scaleImage(img, job.preview))
	slot := job.postview.Buffer(0)
	n := copy(slot.Data, nv21)
	s.cbs.data(MsgPostviewFrame, slot.Data[:n], 0, nil)
	if job.bridge == nil {
		return
	}
	if err := job.bridge.ShowPostview(slot.Data[:n]); err != nil && !errors.Is(err, display.ErrNoBuffer) {
		log.Printf("[snapshot] Warning: show postview: %v", err)
	}
}

// finishSnapshot returns every snapshot resource. It runs on the snapshot
// worker, or on the caller when allocation failed.
func (s *Session) finishSnapshot(job *snapshotJob) {
	if !job.live {
		if err := s.drv.StopSnapshot(); err != nil {
			log.Printf("[snapshot] Warning: stop snapshot: %v", err)
		}
	}
	s.snap.job.CompareAndSwap(job, nil)
	for _, p := range []*mempool.Pool{job.main, job.postview, job.jpeg} {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			log.Printf("[snapshot] Warning: %v", err)
		}
	}
	if job.bridge != nil {
		job.bridge.ReleasePostview()
	}
	if !job.live && s.sm.can(evSnapshotDone) {
		s.sm.mustFire(evSnapshotDone)
	}
}

// onShutter runs on the driver's snapshot goroutine
func (s *Session) onShutter() {
	s.cbs.notify(MsgShutter, 0, 0)
}

func (s *Session) onSnapshot(d *frame.Descriptor) {
	job := s.snap.job.Load()
	if job == nil {
		s.releaseToDriver(d)
		return
	}
	select {
	case job.shots <- d:
	default:
		s.releaseToDriver(d)
	}
}

func (s *Session) onSnapshotDone(err error) {
	job := s.snap.job.Load()
	if job == nil {
		return
	}
	select {
	case job.done <- err:
	default:
	}
}
