package display

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/video-system/go-camera-hal/pkg/frame"
	"github.com/video-system/go-camera-hal/pkg/mempool"
)

// Geometry describes the buffer set requested from a window
type Geometry struct {
	Width    int
	Height   int
	Format   PixelFormat
	Usage    uint32
	Active   int  // buffers the capture engine may fill
	Extra    int  // additional buffers held for zero shutter lag
	Postview int  // buffers held back for the snapshot postview
	Register bool // window buffers are registered with the driver (zero copy)
}

type slot struct {
	buf        *Buffer
	desc       *frame.Descriptor
	registered bool
}

// Bridge owns the engine side of the window buffer ring
type Bridge struct {
	win         Window
	reg         mempool.Registrar
	lockTimeout time.Duration

	mu       sync.Mutex
	geom     Geometry
	slots    []*slot
	byBuf    map[*Buffer]*slot
	postview []*Buffer
	owed     int
	zoomed   bool
}

// NewBridge wraps a window. reg may be nil when buffers are never registered.
func NewBridge(win Window, reg mempool.Registrar) *Bridge {
	return &Bridge{win: win, reg: reg, lockTimeout: DefaultLockTimeout}
}

// Window returns the wrapped window
func (b *Bridge) Window() Window { return b.win }

// Acquire dequeues and locks the whole buffer set, registers the engine's share
// with the driver, holds the postview buffers and cancels the undequeued reserve
// back to the window. It returns the descriptors now owned by the engine.
func (b *Bridge) Acquire(g Geometry) ([]*frame.Descriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.slots) > 0 {
		return nil, fmt.Errorf("display: buffers already acquired")
	}
	if g.Register && b.reg == nil {
		return nil, fmt.Errorf("display: zero copy requested without a registrar")
	}

	minUndequeued, err := b.win.MinUndequeuedBufferCount()
	if err != nil {
		return nil, fmt.Errorf("min undequeued buffer count: %w", err)
	}
	engine := g.Active + g.Extra
	total := engine + minUndequeued

	if err := b.win.SetBufferCount(total + g.Postview); err != nil {
		return nil, fmt.Errorf("set buffer count %d: %w", total+g.Postview, err)
	}
	if err := b.win.SetBuffersGeometry(g.Width, g.Height, g.Format); err != nil {
		return nil, fmt.Errorf("set buffers geometry: %w", err)
	}
	if err := b.win.SetUsage(g.Usage); err != nil {
		return nil, fmt.Errorf("set usage: %w", err)
	}
	b.geom = g
	b.byBuf = make(map[*Buffer]*slot, total)

	size := FrameSize(g.Format, g.Width, g.Height)
	for i := 0; i < total; i++ {
		buf, err := b.win.DequeueBuffer()
		if err != nil {
			b.releaseLocked()
			return nil, fmt.Errorf("dequeue buffer %d: %w", i, err)
		}
		s := &slot{buf: buf}
		b.slots = append(b.slots, s)
		b.byBuf[buf] = s

		if err := b.lockLocked(buf); err != nil {
			b.releaseLocked()
			return nil, fmt.Errorf("lock buffer %d: %w", i, err)
		}
		d := &frame.Descriptor{
			Index:      i,
			Role:       frame.RolePreview,
			Data:       buf.Data,
			Size:       size,
			CbCrOffset: g.Width * g.Height,
			Active:     i < engine,
			BufferID:   buf.ID,
		}
		if !g.Register {
			d.Role = frame.RoleDisplay
		}
		d.SetOwner(frame.OwnerEngine)
		d.SetLockState(frame.Locked)
		s.desc = d

		if g.Register {
			if err := b.reg.RegisterBuffer(d); err != nil {
				b.releaseLocked()
				return nil, fmt.Errorf("register preview buffer %d: %w", i, err)
			}
			s.registered = true
		}
	}

	for i := 0; i < g.Postview; i++ {
		buf, err := b.win.DequeueBuffer()
		if err != nil {
			b.releaseLocked()
			return nil, fmt.Errorf("dequeue postview buffer %d: %w", i, err)
		}
		b.postview = append(b.postview, buf)
	}

	for _, s := range b.slots[engine:] {
		if err := b.cancelLocked(s); err != nil {
			b.releaseLocked()
			return nil, err
		}
	}

	out := make([]*frame.Descriptor, 0, engine)
	for _, s := range b.slots[:engine] {
		out = append(out, s.desc)
	}
	log.Printf("[display] acquired %d buffers (%d engine, %d reserve, %d postview) %dx%d %s",
		total, engine, minUndequeued, g.Postview, g.Width, g.Height, g.Format)
	return out, nil
}

// Display hands an engine-owned buffer to the window and dequeues replacements.
// The returned descriptors are engine-owned again and may go back to the driver.
func (b *Bridge) Display(d *frame.Descriptor) ([]*frame.Descriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.slotLocked(d)
	if err != nil {
		return nil, err
	}
	if err := b.presentLocked(s); err != nil {
		return nil, err
	}
	return b.dequeueOwedLocked()
}

// DisplayCopy writes a frame into an engine-held window buffer, converting
// NV21 to YV12 when the window wants planar buffers, and presents it.
func (b *Bridge) DisplayCopy(src []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.heldLocked()
	if s == nil {
		if _, err := b.dequeueOwedLocked(); err != nil {
			return err
		}
		if s = b.heldLocked(); s == nil {
			return ErrNoBuffer
		}
	}

	if b.geom.Format == FormatYV12 {
		if err := NV21ToYV12(s.buf.Data, src, b.geom.Width, b.geom.Height); err != nil {
			return err
		}
	} else {
		copy(s.buf.Data, src)
	}
	if err := b.presentLocked(s); err != nil {
		return err
	}
	_, err := b.dequeueOwedLocked()
	return err
}

// ApplyCrop translates a zoom crop into a window crop rectangle. Once zoom goes
// back to full frame the window crop is reset a single time.
func (b *Bridge) ApplyCrop(c frame.Crop) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.InWidth > 0 && c.InHeight > 0 && (c.InWidth != c.OutWidth || c.InHeight != c.OutHeight) {
		x, y := CropOrigin(c)
		b.zoomed = true
		return b.win.SetCrop(x, y, x+c.InWidth, y+c.InHeight)
	}
	if b.zoomed {
		b.zoomed = false
		return b.win.SetCrop(0, 0, b.geom.Width, b.geom.Height)
	}
	return nil
}

// CropOrigin centers the crop window inside the output, clamped at zero
func CropOrigin(c frame.Crop) (x, y int) {
	x = (c.OutWidth-c.InWidth+1)/2 - 1
	y = (c.OutHeight-c.InHeight+1)/2 - 1
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return x, y
}

// PostviewCount returns how many postview buffers are held
func (b *Bridge) PostviewCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.postview)
}

// ShowPostview copies a postview image into a held buffer and presents it
func (b *Bridge) ShowPostview(src []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.postview) == 0 {
		return ErrNoBuffer
	}
	buf := b.postview[0]
	if err := b.win.LockBuffer(buf); err != nil {
		return err
	}
	if err := buf.Lock.Lock(LockWrite, b.lockTimeout); err != nil {
		return err
	}
	if buf.Format == FormatYV12 {
		if err := NV21ToYV12(buf.Data, src, buf.Width, buf.Height); err != nil {
			buf.Lock.Unlock()
			return err
		}
	} else {
		copy(buf.Data, src)
	}
	buf.Lock.Unlock()
	if err := b.win.EnqueueBuffer(buf); err != nil {
		return err
	}
	b.postview = b.postview[1:]
	return nil
}

// ReleasePostview cancels every held postview buffer back to the window
func (b *Bridge) ReleasePostview() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, buf := range b.postview {
		if err := b.win.CancelBuffer(buf); err != nil {
			log.Printf("[display] Warning: cancel postview buffer %d: %v", buf.ID, err)
		}
	}
	b.postview = nil
}

// Release unregisters the preview buffers from the driver and then returns
// every buffer the engine still holds to the window. Postview buffers are left
// alone. Calling it with nothing acquired is a no-op.
func (b *Bridge) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked()
}

// Held returns the number of window buffers currently owned by the engine or driver
func (b *Bridge) Held() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.slots {
		if s.desc != nil && s.desc.Owner() != frame.OwnerDisplay {
			n++
		}
	}
	return n
}

// Descriptors returns every slot descriptor, for diagnostics
func (b *Bridge) Descriptors() []*frame.Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*frame.Descriptor, 0, len(b.slots))
	for _, s := range b.slots {
		if s.desc != nil {
			out = append(out, s.desc)
		}
	}
	return out
}

func (b *Bridge) releaseLocked() {
	for _, s := range b.slots {
		if s.registered {
			if err := b.reg.UnregisterBuffer(s.desc); err != nil {
				log.Printf("[display] Warning: unregister buffer %d: %v", s.desc.Index, err)
			}
			s.registered = false
		}
	}
	for _, s := range b.slots {
		if s.desc == nil {
			// dequeued but never wrapped
			b.win.CancelBuffer(s.buf)
			continue
		}
		if s.desc.Owner() == frame.OwnerDisplay {
			continue
		}
		if err := b.cancelLocked(s); err != nil {
			log.Printf("[display] Warning: %v", err)
		}
	}
	if len(b.slots) > 0 {
		log.Printf("[display] released %d buffers", len(b.slots))
	}
	b.slots = nil
	b.byBuf = nil
	b.owed = 0
	b.zoomed = false
}

func (b *Bridge) heldLocked() *slot {
	for _, s := range b.slots {
		if s.desc != nil && s.desc.Owner() == frame.OwnerEngine {
			return s
		}
	}
	return nil
}

func (b *Bridge) slotLocked(d *frame.Descriptor) (*slot, error) {
	if d == nil || d.Index < 0 || d.Index >= len(b.slots) || b.slots[d.Index].desc != d {
		return nil, fmt.Errorf("display: unknown buffer %v", d)
	}
	return b.slots[d.Index], nil
}

func (b *Bridge) lockLocked(buf *Buffer) error {
	if err := b.win.LockBuffer(buf); err != nil {
		return err
	}
	return buf.Lock.Lock(LockWrite, b.lockTimeout)
}

// presentLocked unlocks an engine buffer and enqueues it
func (b *Bridge) presentLocked(s *slot) error {
	if err := s.desc.Transfer(frame.OwnerEngine, frame.OwnerDisplay); err != nil {
		return err
	}
	s.buf.Lock.Unlock()
	s.desc.SetLockState(frame.Unlocked)
	s.desc.Active = false
	if err := b.win.EnqueueBuffer(s.buf); err != nil {
		if lerr := s.buf.Lock.Lock(LockWrite, b.lockTimeout); lerr == nil {
			s.desc.SetLockState(frame.Locked)
		}
		s.desc.SetOwner(frame.OwnerEngine)
		s.desc.Active = true
		return fmt.Errorf("enqueue buffer %d: %w", s.desc.Index, err)
	}
	b.owed++
	return nil
}

// dequeueOwedLocked pulls back as many buffers as have been enqueued, stopping
// quietly when the window has none to give
func (b *Bridge) dequeueOwedLocked() ([]*frame.Descriptor, error) {
	var out []*frame.Descriptor
	for b.owed > 0 {
		buf, err := b.win.DequeueBuffer()
		if errors.Is(err, ErrNoBuffer) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("dequeue buffer: %w", err)
		}
		s := b.byBuf[buf]
		if s == nil {
			log.Printf("[display] Warning: window returned foreign buffer %d", buf.ID)
			b.win.CancelBuffer(buf)
			break
		}
		if err := b.lockLocked(buf); err != nil {
			b.win.CancelBuffer(buf)
			return out, fmt.Errorf("lock buffer %d: %w", s.desc.Index, err)
		}
		s.desc.SetLockState(frame.Locked)
		if err := s.desc.Transfer(frame.OwnerDisplay, frame.OwnerEngine); err != nil {
			return out, err
		}
		s.desc.Active = true
		b.owed--
		out = append(out, s.desc)
	}
	return out, nil
}

func (b *Bridge) cancelLocked(s *slot) error {
	if s.desc.LockState() == frame.Locked {
		s.buf.Lock.Unlock()
		s.desc.SetLockState(frame.Unlocked)
	}
	s.desc.Active = false
	if err := b.win.CancelBuffer(s.buf); err != nil {
		return fmt.Errorf("cancel buffer %d: %w", s.desc.Index, err)
	}
	s.desc.SetOwner(frame.OwnerDisplay)
	return nil
}
