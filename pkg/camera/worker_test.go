package camera

import (
	"context"
	"testing"
	"time"
)

func TestWorkerFinalMayRestart(t *testing.T) {
	w := newWorker("test")
	restarted := make(chan error, 1)
	err := w.startFinal(func(ctx context.Context) func() {
		return func() {
			w.stop()
			w.wait()
			restarted <- w.start(func(ctx context.Context) { <-ctx.Done() })
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-restarted:
		if err != nil {
			t.Fatalf("restart from final: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("final func blocked on its own worker")
	}
	if !w.isRunning() {
		t.Fatal("restarted worker not running")
	}
	w.stop()
	if w.isRunning() {
		t.Error("worker still running after stop")
	}
}

func TestWorkerInterruptDoesNotWait(t *testing.T) {
	w := newWorker("test")
	release := make(chan struct{})
	if err := w.start(func(ctx context.Context) {
		<-ctx.Done()
		<-release
	}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		w.interrupt()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("interrupt waited for the worker")
	}
	if err := w.start(func(context.Context) {}); err == nil {
		t.Error("second start while running succeeded")
	}
	close(release)
	w.wait()
	if w.isRunning() {
		t.Error("worker running after exit")
	}
}
