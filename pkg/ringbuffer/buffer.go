// Package ringbuffer keeps the most recent preview frames in a fixed set of
// memory pool slots so a zero shutter lag capture can pick frames that were
// already exposed when the shutter was pressed.
package ringbuffer

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/video-system/go-camera-hal/pkg/frame"
	"github.com/video-system/go-camera-hal/pkg/mempool"
)

// ErrClosed is returned when pushing into a closed buffer
var ErrClosed = errors.New("ringbuffer: closed")

// Config holds ring buffer configuration
type Config struct {
	Name      string // pool name, used in logs
	Capacity  int    // frames kept
	FrameSize int    // bytes per frame
	Width     int
	Height    int
}

// Buffer is a ring of the newest frames
type Buffer struct {
	cfg  Config
	pool *mempool.Pool

	mu       sync.RWMutex
	frames   []*Frame // indexed by slot
	firstSeq int
	lastSeq  int
	closed   bool
}

// Frame is one buffered preview frame
type Frame struct {
	Sequence  int    `json:"sequence"`
	Timestamp int64  `json:"timestamp"` // driver time, unix nanoseconds
	Slot      int    `json:"slot"`
	SizeBytes int    `json:"size_bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Data      []byte `json:"-"`
}

// New allocates the ring from alloc. Slots are never registered with a driver.
func New(cfg Config, alloc mempool.Allocator) (*Buffer, error) {
	if cfg.Capacity <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("ring buffer %s: invalid geometry %d x %d", cfg.Name, cfg.Capacity, cfg.FrameSize)
	}
	if cfg.Name == "" {
		cfg.Name = "zsl"
	}
	pool, err := mempool.New(mempool.Config{
		Name:       cfg.Name,
		Role:       frame.RoleZSL,
		BufferSize: cfg.FrameSize,
		NumBuffers: cfg.Capacity,
	}, alloc, nil)
	if err != nil {
		return nil, fmt.Errorf("create ring buffer pool: %w", err)
	}
	return &Buffer{
		cfg:    cfg,
		pool:   pool,
		frames: make([]*Frame, cfg.Capacity),
	}, nil
}

// Push copies data into the slot after the newest frame, overwriting the
// oldest one once the ring is full
func (b *Buffer) Push(data []byte, ts int64) (*Frame, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	seq := b.lastSeq + 1
	slot := (seq - 1) % b.cfg.Capacity
	d := b.pool.Buffer(slot)
	n := copy(d.Data[:b.cfg.FrameSize], data)
	d.Timestamp = ts

	f := &Frame{
		Sequence:  seq,
		Timestamp: ts,
		Slot:      slot,
		SizeBytes: n,
		Width:     b.cfg.Width,
		Height:    b.cfg.Height,
		Data:      d.Data[:n],
	}
	b.frames[slot] = f
	b.lastSeq = seq
	if b.firstSeq == 0 {
		b.firstSeq = seq
	}
	if seq-b.firstSeq >= b.cfg.Capacity {
		b.firstSeq = seq - b.cfg.Capacity + 1
	}
	b.mu.Unlock()
	return f, nil
}

// Latest returns copies of up to n newest frames, oldest first
func (b *Buffer) Latest(n int) []Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastSeq == 0 || n <= 0 {
		return nil
	}
	start := b.lastSeq - n + 1
	if start < b.firstSeq {
		start = b.firstSeq
	}
	out := make([]Frame, 0, b.lastSeq-start+1)
	for seq := start; seq <= b.lastSeq; seq++ {
		if f, ok := b.frameLocked(seq); ok {
			out = append(out, f)
		}
	}
	return out
}

// GetFramesInRange returns copies of frames with timestamps in [start, end)
func (b *Buffer) GetFramesInRange(start, end int64) []Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var result []Frame
	for seq := b.firstSeq; seq > 0 && seq <= b.lastSeq; seq++ {
		f, ok := b.frameLocked(seq)
		if ok && f.Timestamp >= start && f.Timestamp < end {
			result = append(result, f)
		}
	}
	return result
}

func (b *Buffer) frameLocked(seq int) (Frame, bool) {
	if seq < b.firstSeq || seq > b.lastSeq || seq <= 0 {
		return Frame{}, false
	}
	f := b.frames[(seq-1)%b.cfg.Capacity]
	if f == nil || f.Sequence != seq {
		return Frame{}, false
	}
	cp := *f
	cp.Data = append([]byte(nil), f.Data...)
	return cp, true
}

// GetStatus returns the current buffer status
func (b *Buffer) GetStatus() BufferStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	if b.lastSeq > 0 {
		count = b.lastSeq - b.firstSeq + 1
	}
	var oldest, newest int64
	if f, ok := b.frameLocked(b.firstSeq); ok {
		oldest = f.Timestamp
	}
	if f, ok := b.frameLocked(b.lastSeq); ok {
		newest = f.Timestamp
	}
	return BufferStatus{
		Name:       b.cfg.Name,
		Capacity:   b.cfg.Capacity,
		FrameCount: count,
		Health:     float64(count) / float64(b.cfg.Capacity),
		FirstSeq:   b.firstSeq,
		LastSeq:    b.lastSeq,
		OldestTime: oldest,
		NewestTime: newest,
	}
}

// Reset forgets every buffered frame. Sequence numbers keep counting.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastSeq == 0 || b.firstSeq > b.lastSeq {
		return
	}
	for i := range b.frames {
		b.frames[i] = nil
	}
	b.firstSeq = b.lastSeq + 1
}

// Close releases the backing pool
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.frames = make([]*Frame, b.cfg.Capacity)
	log.Printf("[ringbuffer] %s closed after %d frames", b.cfg.Name, b.lastSeq)
	return b.pool.Close()
}

// BufferStatus represents the buffer status
type BufferStatus struct {
	Name       string  `json:"name"`
	Capacity   int     `json:"capacity"`
	FrameCount int     `json:"frame_count"`
	Health     float64 `json:"health"`
	FirstSeq   int     `json:"first_seq"`
	LastSeq    int     `json:"last_seq"`
	OldestTime int64   `json:"oldest_time"`
	NewestTime int64   `json:"newest_time"`
}
