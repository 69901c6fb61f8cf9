package display

import (
	"errors"
	"sync"
	"time"
)

// LockMode selects shared or exclusive genlock access
type LockMode int

const (
	LockRead LockMode = iota
	LockWrite
)

// DefaultLockTimeout bounds how long either side waits for a genlock
const DefaultLockTimeout = time.Second

var (
	ErrLockTimeout = errors.New("genlock: lock timed out")
	ErrNotLocked   = errors.New("genlock: buffer not locked")
)

// Genlock is the buffer-level lock shared by the camera engine (writer) and the
// compositor (reader). Unlike sync.RWMutex it supports timeouts and may be
// released by a different goroutine than the one that acquired it.
type Genlock struct {
	mu      sync.Mutex
	readers int
	writer  bool
	changed chan struct{}
}

// NewGenlock returns an unlocked genlock
func NewGenlock() *Genlock {
	return &Genlock{changed: make(chan struct{})}
}

// Lock acquires the lock in the given mode or fails after timeout
func (g *Genlock) Lock(mode LockMode, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		g.mu.Lock()
		if mode == LockWrite && !g.writer && g.readers == 0 {
			g.writer = true
			g.mu.Unlock()
			return nil
		}
		if mode == LockRead && !g.writer {
			g.readers++
			g.mu.Unlock()
			return nil
		}
		wait := g.changed
		g.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return ErrLockTimeout
		}
	}
}

// Unlock releases one hold, the writer first if there is one
func (g *Genlock) Unlock() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.writer:
		g.writer = false
	case g.readers > 0:
		g.readers--
	default:
		return ErrNotLocked
	}
	close(g.changed)
	g.changed = make(chan struct{})
	return nil
}

// Held reports whether any hold is outstanding
func (g *Genlock) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writer || g.readers > 0
}
