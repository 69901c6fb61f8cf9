package display

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/video-system/go-camera-hal/pkg/frame"
	"github.com/video-system/go-camera-hal/pkg/mempool"
)

// MinUndequeuedBuffers is the reserve a compositor keeps for itself
const MinUndequeuedBuffers = 2

var errBusy = errors.New("display: buffers still dequeued")

type bufState int

const (
	stateFree bufState = iota
	stateDequeued
	stateOnscreen
)

// CompositorConfig configures an in-process compositor
type CompositorConfig struct {
	MinUndequeued int
	Allocator     mempool.Allocator
	LockTimeout   time.Duration
	OnPresent     func(b *Buffer)
}

// CompositorStats is a snapshot of compositor counters
type CompositorStats struct {
	Buffers   int    `json:"buffers"`
	Dequeued  int    `json:"dequeued"`
	Presented int    `json:"presented"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Crop      [4]int `json:"crop"`
	Usage     uint32 `json:"usage"`
}

// Compositor is a synchronous software Window. Enqueued buffers are presented
// immediately under a read genlock and stay on screen until the next enqueue.
type Compositor struct {
	cfg CompositorConfig

	mu        sync.Mutex
	count     int
	width     int
	height    int
	format    PixelFormat
	usage     uint32
	dirty     bool
	pool      *mempool.Pool
	bufs      []*Buffer
	state     []bufState
	onscreen  int
	dequeued  int
	crop      [4]int
	presented int
	queued    bool // a buffer was enqueued since the last allocation
	last      []byte
}

// NewCompositor creates a compositor window
func NewCompositor(cfg CompositorConfig) *Compositor {
	if cfg.MinUndequeued <= 0 {
		cfg.MinUndequeued = MinUndequeuedBuffers
	}
	if cfg.Allocator == nil {
		cfg.Allocator = mempool.HeapAllocator{}
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	return &Compositor{cfg: cfg, onscreen: -1, format: FormatNV21}
}

func (c *Compositor) SetBufferCount(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dequeued > 0 {
		return errBusy
	}
	if n <= c.cfg.MinUndequeued {
		return fmt.Errorf("display: buffer count %d must exceed reserve %d", n, c.cfg.MinUndequeued)
	}
	c.count = n
	c.dirty = true
	return nil
}

func (c *Compositor) SetBuffersGeometry(width, height int, format PixelFormat) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dequeued > 0 {
		return errBusy
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("display: invalid geometry %dx%d", width, height)
	}
	c.width, c.height, c.format = width, height, format
	c.crop = [4]int{0, 0, width, height}
	c.dirty = true
	return nil
}

func (c *Compositor) SetUsage(usage uint32) error {
	c.mu.Lock()
	c.usage = usage
	c.mu.Unlock()
	return nil
}

func (c *Compositor) MinUndequeuedBufferCount() (int, error) {
	return c.cfg.MinUndequeued, nil
}

func (c *Compositor) DequeueBuffer() (*Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.allocLocked(); err != nil {
		return nil, err
	}
	// The reserve only applies once the first buffer has been queued, so a
	// client may dequeue everything up front and cancel the reserve back.
	if c.queued && c.count-c.dequeued <= c.cfg.MinUndequeued {
		return nil, ErrNoBuffer
	}
	for i, st := range c.state {
		if st == stateFree {
			c.state[i] = stateDequeued
			c.dequeued++
			return c.bufs[i], nil
		}
	}
	return nil, ErrNoBuffer
}

func (c *Compositor) LockBuffer(b *Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsLocked(b, stateDequeued) {
		return fmt.Errorf("display: lock of buffer %d not dequeued", b.ID)
	}
	return nil
}

func (c *Compositor) EnqueueBuffer(b *Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsLocked(b, stateDequeued) {
		return fmt.Errorf("display: enqueue of buffer %d not dequeued", b.ID)
	}

	if err := b.Lock.Lock(LockRead, c.cfg.LockTimeout); err != nil {
		return fmt.Errorf("display: read lock buffer %d: %w", b.ID, err)
	}
	c.last = append(c.last[:0], b.Data...)
	if c.cfg.OnPresent != nil {
		c.cfg.OnPresent(b)
	}
	b.Lock.Unlock()

	if c.onscreen >= 0 {
		c.state[c.onscreen] = stateFree
	}
	c.state[b.ID] = stateOnscreen
	c.onscreen = b.ID
	c.dequeued--
	c.presented++
	c.queued = true
	return nil
}

func (c *Compositor) CancelBuffer(b *Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsLocked(b, stateDequeued) {
		return fmt.Errorf("display: cancel of buffer %d not dequeued", b.ID)
	}
	c.state[b.ID] = stateFree
	c.dequeued--
	return nil
}

func (c *Compositor) SetCrop(left, top, right, bottom int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if left < 0 || top < 0 || right <= left || bottom <= top {
		return fmt.Errorf("display: invalid crop (%d,%d,%d,%d)", left, top, right, bottom)
	}
	c.crop = [4]int{left, top, right, bottom}
	return nil
}

// Crop returns the current crop rectangle
func (c *Compositor) Crop() [4]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crop
}

// LastFrame returns a copy of the buffer currently on screen
func (c *Compositor) LastFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	return append([]byte(nil), c.last...)
}

// Stats returns compositor counters
func (c *Compositor) Stats() CompositorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CompositorStats{
		Buffers:   len(c.bufs),
		Dequeued:  c.dequeued,
		Presented: c.presented,
		Format:    c.format.String(),
		Width:     c.width,
		Height:    c.height,
		Crop:      c.crop,
		Usage:     c.usage,
	}
}

// Close frees the compositor's buffers
func (c *Compositor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		return nil
	}
	err := c.pool.Close()
	c.pool, c.bufs, c.state = nil, nil, nil
	c.onscreen = -1
	return err
}

func (c *Compositor) ownsLocked(b *Buffer, want bufState) bool {
	return b != nil && b.ID >= 0 && b.ID < len(c.bufs) && c.bufs[b.ID] == b && c.state[b.ID] == want
}

func (c *Compositor) allocLocked() error {
	if !c.dirty && c.pool != nil {
		return nil
	}
	if c.count == 0 || c.width == 0 {
		return fmt.Errorf("display: buffer count or geometry not set")
	}
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
	size := FrameSize(c.format, c.width, c.height)
	pool, err := mempool.New(mempool.Config{
		Name:       "display",
		Role:       frame.RoleDisplay,
		BufferSize: size,
		NumBuffers: c.count,
	}, c.cfg.Allocator, nil)
	if err != nil {
		return fmt.Errorf("display: allocate buffers: %w", err)
	}
	c.pool = pool
	c.bufs = make([]*Buffer, c.count)
	c.state = make([]bufState, c.count)
	for i := range c.bufs {
		c.bufs[i] = &Buffer{
			ID:     i,
			Data:   pool.Buffer(i).Data[:size],
			Width:  c.width,
			Height: c.height,
			Format: c.format,
			Lock:   NewGenlock(),
		}
	}
	c.onscreen = -1
	c.queued = false
	c.dirty = false
	return nil
}
