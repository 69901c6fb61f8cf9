// Package mempool carves one contiguous allocation into page-aligned buffer
// slots and keeps their registration with the capture driver in lock-step with
// the allocation's lifetime.
package mempool

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/video-system/go-camera-hal/pkg/frame"
)

// ErrClosed is returned when using a pool after Close
var ErrClosed = errors.New("mempool: pool closed")

// Region is one contiguous allocation
type Region interface {
	Bytes() []byte
	Fd() uintptr
	Close() error
}

// Allocator hands out regions (heap, memfd, device)
type Allocator interface {
	Name() string
	Alloc(name string, size int) (Region, error)
}

// Registrar is the driver side of buffer registration
type Registrar interface {
	RegisterBuffer(d *frame.Descriptor) error
	UnregisterBuffer(d *frame.Descriptor) error
}

// Config describes the slots of a pool
type Config struct {
	Name          string
	Role          frame.Role
	BufferSize    int // bytes per slot before alignment
	NumBuffers    int // total slots
	ActiveBuffers int // slots the capture engine may fill (0 = all)
	FrameSize     int // payload bytes per slot (0 = BufferSize)
	YOffset       int // plane offsets inside a slot
	CbCrOffset    int
	CrOffset      int
	Register      bool // register slots with the driver
}

// Pool owns a region and the descriptors that point into it
type Pool struct {
	cfg    Config
	region Region
	reg    Registrar
	stride int
	bufs   []*frame.Descriptor

	mu         sync.Mutex
	registered []*frame.Descriptor
	closed     bool
}

// PageSize is the slot alignment
var PageSize = os.Getpagesize()

// Align rounds n up to the page size
func Align(n int) int {
	return (n + PageSize - 1) &^ (PageSize - 1)
}

// New allocates the region, cuts it into slots and registers them. On any
// failure everything acquired so far is released before returning.
func New(cfg Config, alloc Allocator, reg Registrar) (*Pool, error) {
	if cfg.BufferSize <= 0 || cfg.NumBuffers <= 0 {
		return nil, fmt.Errorf("pool %s: invalid geometry %d x %d", cfg.Name, cfg.NumBuffers, cfg.BufferSize)
	}
	if cfg.ActiveBuffers <= 0 || cfg.ActiveBuffers > cfg.NumBuffers {
		cfg.ActiveBuffers = cfg.NumBuffers
	}
	if cfg.FrameSize <= 0 || cfg.FrameSize > cfg.BufferSize {
		cfg.FrameSize = cfg.BufferSize
	}
	if cfg.Register && reg == nil {
		return nil, fmt.Errorf("pool %s: registration requested without a registrar", cfg.Name)
	}

	stride := Align(cfg.BufferSize)
	region, err := alloc.Alloc(cfg.Name, stride*cfg.NumBuffers)
	if err != nil {
		return nil, fmt.Errorf("pool %s: allocate %d bytes from %s: %w", cfg.Name, stride*cfg.NumBuffers, alloc.Name(), err)
	}
	mem := region.Bytes()
	if len(mem) < stride*cfg.NumBuffers {
		region.Close()
		return nil, fmt.Errorf("pool %s: region too small (%d < %d)", cfg.Name, len(mem), stride*cfg.NumBuffers)
	}

	p := &Pool{
		cfg:    cfg,
		region: region,
		reg:    reg,
		stride: stride,
		bufs:   make([]*frame.Descriptor, cfg.NumBuffers),
	}
	for i := range p.bufs {
		off := i * stride
		d := &frame.Descriptor{
			Index:      i,
			Role:       cfg.Role,
			Fd:         region.Fd(),
			Offset:     int64(off),
			Size:       cfg.FrameSize,
			YOffset:    cfg.YOffset,
			CbCrOffset: cfg.CbCrOffset,
			CrOffset:   cfg.CrOffset,
			Data:       mem[off : off+stride : off+stride],
			Active:     i < cfg.ActiveBuffers,
		}
		d.SetOwner(frame.OwnerEngine)
		p.bufs[i] = d
	}

	if cfg.Register {
		for _, d := range p.bufs {
			if err := reg.RegisterBuffer(d); err != nil {
				p.unregisterAll()
				region.Close()
				return nil, fmt.Errorf("pool %s: register slot %d: %w", cfg.Name, d.Index, err)
			}
			p.registered = append(p.registered, d)
		}
	}

	log.Printf("[mempool] %s: %d x %d bytes (stride %d, %d active) via %s",
		cfg.Name, cfg.NumBuffers, cfg.BufferSize, stride, cfg.ActiveBuffers, alloc.Name())
	return p, nil
}

// Name returns the pool name
func (p *Pool) Name() string { return p.cfg.Name }

// Stride returns the aligned per-slot stride
func (p *Pool) Stride() int { return p.stride }

// Len returns the total slot count
func (p *Pool) Len() int { return len(p.bufs) }

// ActiveCount returns how many slots the capture engine may hold
func (p *Pool) ActiveCount() int { return p.cfg.ActiveBuffers }

// FrameSize returns the payload size of each slot
func (p *Pool) FrameSize() int { return p.cfg.FrameSize }

// Buffer returns slot i
func (p *Pool) Buffer(i int) *frame.Descriptor {
	if i < 0 || i >= len(p.bufs) {
		return nil
	}
	return p.bufs[i]
}

// Buffers returns every slot
func (p *Pool) Buffers() []*frame.Descriptor {
	return p.bufs
}

// Registered returns how many slots are currently registered with the driver
func (p *Pool) Registered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.registered)
}

// Closed reports whether the pool has been torn down
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close unregisters every registered slot and then frees the region. Calling it
// more than once is a no-op.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.unregisterAll()
	if err := p.region.Close(); err != nil {
		return fmt.Errorf("pool %s: free region: %w", p.cfg.Name, err)
	}
	log.Printf("[mempool] %s: released", p.cfg.Name)
	return nil
}

func (p *Pool) unregisterAll() {
	for _, d := range p.registered {
		if err := p.reg.UnregisterBuffer(d); err != nil {
			log.Printf("[mempool] Warning: %s: unregister slot %d: %v", p.cfg.Name, d.Index, err)
		}
	}
	p.registered = nil
}
