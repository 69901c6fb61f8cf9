package camera

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/params"
)

// zoomer walks the zoom one step per preview frame towards a target
type zoomer struct {
	worker  *worker
	current atomic.Int32
	target  atomic.Int32
	frames  chan struct{}

	mu     sync.Mutex
	moving bool // a running zoom still accepts a new target
}

func (z *zoomer) init() {
	z.worker = newWorker("zoom")
	z.frames = make(chan struct{}, 1)
}

func (z *zoomer) currentValue() int {
	return int(z.current.Load())
}

func (z *zoomer) set(v int) {
	z.current.Store(int32(v))
}

// frameArrived paces a running smooth zoom. It never blocks.
func (z *zoomer) frameArrived() {
	select {
	case z.frames <- struct{}{}:
	default:
	}
}

// retarget points a moving zoom at t. It reports false when no zoom is
// moving.
func (z *zoomer) retarget(t int) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	if !z.moving {
		return false
	}
	z.target.Store(int32(t))
	return true
}

// arrive settles the zoom when cur is the target
func (z *zoomer) arrive(cur int) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	if cur != int(z.target.Load()) {
		return false
	}
	z.moving = false
	return true
}

func (z *zoomer) halt() {
	z.mu.Lock()
	z.moving = false
	z.mu.Unlock()
}

// stop aborts a running smooth zoom and waits for it. The final step is
// reported after the worker has exited.
func (z *zoomer) stop() {
	z.worker.stop()
}

// startSmoothZoom moves the zoom to target one step per preview frame. Each
// step is reported as MsgZoom with ext1 the new value and ext2 set on the
// last step. A running zoom is retargeted. s.mu must be held.
func (s *Session) startSmoothZoom(target int) error {
	if !s.sm.is(StatePreviewRunning, StateRecording) {
		return fmt.Errorf("%w: smooth zoom needs a running preview", ErrInvalidOperation)
	}
	if target < 0 || target > s.board.MaxZoom-1 {
		return fmt.Errorf("%w: zoom %d outside 0..%d", ErrBadValue, target, s.board.MaxZoom-1)
	}
	if s.zoom.retarget(target) {
		return nil
	}
	s.zoom.stop()
	cur := s.zoom.currentValue()
	if target == cur {
		s.cbs.notify(MsgZoom, int32(cur), 1)
		return nil
	}
	s.zoom.mu.Lock()
	s.zoom.target.Store(int32(target))
	s.zoom.moving = true
	s.zoom.mu.Unlock()
	if err := s.zoom.worker.startFinal(s.smoothZoomLoop); err != nil {
		s.zoom.halt()
		return err
	}
	return nil
}

// stopSmoothZoom cancels a running smooth zoom without waiting for it
func (s *Session) stopSmoothZoom() {
	s.zoom.halt()
	s.zoom.worker.interrupt()
}

func (s *Session) smoothZoomLoop(ctx context.Context) func() {
	final := func() {
		s.cbs.notify(MsgZoom, int32(s.zoom.currentValue()), 1)
	}
	// a frame that arrived before the zoom started does not count
	select {
	case <-s.zoom.frames:
	default:
	}
	for {
		select {
		case <-ctx.Done():
			s.zoom.halt()
			return final
		case <-s.zoom.frames:
		}
		if ctx.Err() != nil {
			s.zoom.halt()
			return final
		}
		cur := s.zoom.currentValue()
		target := int(s.zoom.target.Load())
		if cur < target {
			cur++
		} else if cur > target {
			cur--
		}
		if err := s.drv.SetParm(driver.ParmZoom, int32(cur)); err != nil {
			log.Printf("[zoom] Warning: step to %d: %v", cur, err)
			s.zoom.halt()
			return final
		}
		s.zoom.set(cur)
		s.paramsMu.Lock()
		s.params.SetInt(params.KeyZoom, cur)
		s.paramsMu.Unlock()

		if s.zoom.arrive(cur) {
			return final
		}
		s.cbs.notify(MsgZoom, int32(cur), 0)
	}
}
