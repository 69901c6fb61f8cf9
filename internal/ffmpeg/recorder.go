package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
)

// DefaultRecorderQueue is the number of frames a recorder buffers ahead of
// the encoder
const DefaultRecorderQueue = 8

// Frame is one raw frame handed to a recorder. Release is called exactly
// once, after the frame was written or dropped.
type Frame struct {
	Data      []byte
	Timestamp int64
	Release   func()
}

func (f Frame) release() {
	if f.Release != nil {
		f.Release()
	}
}

// RecorderStats counts recorder activity
type RecorderStats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Bytes   int64 `json:"bytes"`
}

// Recorder writes frames into an encoder on its own goroutine so the
// producer never blocks on ffmpeg
type Recorder struct {
	w      io.WriteCloser
	path   string
	frames chan Frame
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	err    error

	written atomic.Int64
	dropped atomic.Int64
	bytes   atomic.Int64
}

// StartRecorder starts an encoder and a recorder feeding it
func (f *FFmpeg) StartRecorder(ctx context.Context, cfg EncoderConfig, queue int) (*Recorder, error) {
	proc, err := f.StartEncoder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("[ffmpeg] recording %dx%d to %s", cfg.Width, cfg.Height, cfg.OutputPath)
	return newRecorder(proc, cfg.OutputPath, queue), nil
}

func newRecorder(w io.WriteCloser, path string, queue int) *Recorder {
	if queue <= 0 {
		queue = DefaultRecorderQueue
	}
	r := &Recorder{
		w:      w,
		path:   path,
		frames: make(chan Frame, queue),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Path returns the output file
func (r *Recorder) Path() string { return r.path }

// Submit queues a frame. A full queue or a stopped recorder drops the frame,
// releasing it at once, and reports false.
func (r *Recorder) Submit(fr Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		fr.release()
		return false
	}
	select {
	case r.frames <- fr:
		return true
	default:
		r.dropped.Add(1)
		fr.release()
		return false
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	var failed bool
	for fr := range r.frames {
		if !failed {
			n, err := r.w.Write(fr.Data)
			r.bytes.Add(int64(n))
			if err != nil {
				failed = true
				r.setErr(fmt.Errorf("write frame: %w", err))
				log.Printf("[ffmpeg] Warning: %v", err)
			} else {
				r.written.Add(1)
			}
		} else {
			r.dropped.Add(1)
		}
		fr.release()
	}
}

func (r *Recorder) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Stop drains queued frames, closes the encoder input and waits for it to
// finish. It is safe to call more than once.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return r.Err()
	}
	r.closed = true
	close(r.frames)
	r.mu.Unlock()

	<-r.done
	if err := r.w.Close(); err != nil {
		r.setErr(err)
	}
	st := r.Stats()
	log.Printf("[ffmpeg] recording %s closed: %d frames, %d dropped", r.path, st.Written, st.Dropped)
	return r.Err()
}

// Err returns the first write or encoder error
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stats returns recorder counters
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Bytes:   r.bytes.Load(),
	}
}
