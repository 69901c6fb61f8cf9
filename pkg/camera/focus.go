package camera

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/params"
)

// focusCancelWait bounds how long a cancelled sweep waits for the driver
const focusCancelWait = 2 * time.Second

// focuser runs one autofocus sweep at a time. Every AutoFocus request yields
// exactly one MsgFocus notification.
type focuser struct {
	worker  *worker
	mu      sync.Mutex
	results chan driver.FocusStatus
}

func (f *focuser) init() {
	f.worker = newWorker("focus")
	f.results = make(chan driver.FocusStatus, 1)
}

// AutoFocus starts a focus sweep. The result arrives as MsgFocus with ext1 set
// to 1 on success and 0 on failure or cancellation. A request made while a
// sweep is running is absorbed by it.
func (s *Session) AutoFocus() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if s.focus.worker.isRunning() {
		return nil
	}
	mode := s.focusMode()
	return s.focus.worker.startFinal(func(ctx context.Context) func() {
		result := s.autoFocusLoop(ctx, mode)
		return func() { s.cbs.notify(MsgFocus, result, 0) }
	})
}

// CancelAutoFocus aborts a running sweep and waits for it to exit. The
// MsgFocus notification is sent after the sweep has exited, so the host may
// call back into focus from it.
func (s *Session) CancelAutoFocus() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	s.cancelFocusInternal()
	return nil
}

func (s *Session) cancelFocusInternal() {
	s.focus.worker.stop()
}

// autoFocusLoop runs one sweep and returns the MsgFocus result
func (s *Session) autoFocusLoop(ctx context.Context, mode string) int32 {
	f := &s.focus
	if !f.mu.TryLock() {
		log.Printf("[focus] Warning: sweep already in progress")
		return 0
	}
	defer f.mu.Unlock()

	if ctx.Err() != nil {
		return 0
	}
	if !s.board.HasAutoFocus || !params.FocusModeNeedsDriver(mode) {
		// fixed focus is always in focus
		return 1
	}
	value, ok := params.FocusModes.Lookup(mode)
	if !ok {
		value, _ = params.FocusModes.Lookup(params.FocusModeAuto)
	}

	select {
	case <-f.results:
	default:
	}
	if err := s.drv.AutoFocus(int32(value)); err != nil {
		log.Printf("[focus] Warning: start autofocus: %v", err)
		return 0
	}

	select {
	case st := <-f.results:
		log.Printf("[focus] %s: %s", mode, st)
		return focusResult(st)
	case <-ctx.Done():
		if err := s.drv.CancelAutoFocus(); err != nil {
			log.Printf("[focus] Warning: cancel autofocus: %v", err)
		}
		select {
		case st := <-f.results:
			log.Printf("[focus] cancelled (%s)", st)
		case <-time.After(focusCancelWait):
			log.Printf("[focus] Warning: no result %v after cancel", focusCancelWait)
		}
		return 0
	}
}

func focusResult(st driver.FocusStatus) int32 {
	if st == driver.FocusSuccess {
		return 1
	}
	return 0
}

// onFocus runs on the driver's focus goroutine
func (s *Session) onFocus(st driver.FocusStatus) {
	select {
	case s.focus.results <- st:
	default:
		log.Printf("[focus] Warning: dropped focus result %s", st)
	}
}
