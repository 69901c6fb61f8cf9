package camera

import (
	"context"
	"fmt"
	"sync"
)

// worker is a long-lived goroutine with the stop protocol every session
// worker follows: the owner cancels and waits, and the worker itself clears
// its running flag on the way out.
type worker struct {
	name string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newWorker(name string) *worker {
	return &worker{name: name}
}

// start launches fn. It fails if the previous run has not exited yet.
func (w *worker) start(fn func(ctx context.Context)) error {
	return w.startFinal(func(ctx context.Context) func() {
		fn(ctx)
		return nil
	})
}

// startFinal launches fn and runs the func it returns after the worker has
// marked itself done. A host callback made from there may stop or restart
// this worker.
func (w *worker) startFinal(fn func(ctx context.Context) func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("%s worker already running", w.name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done

	go func() {
		final := fn(ctx)
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		cancel()
		close(done)
		if final != nil {
			final()
		}
	}()
	return nil
}

// stop cancels the worker and waits for it to exit
func (w *worker) stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// interrupt cancels the worker without waiting
func (w *worker) interrupt() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// wait blocks until the current run has exited, without cancelling it
func (w *worker) wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *worker) isRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *worker) String() string {
	if w.isRunning() {
		return w.name + " (running)"
	}
	return w.name
}
