package driver

import (
	"fmt"
	"sync"

	"github.com/video-system/go-camera-hal/pkg/frame"
)

// Slots is the driver-side bookkeeping of registered buffers: which slots are
// known and which of them are waiting to be filled, per role.
type Slots struct {
	mu         sync.Mutex
	registered map[*frame.Descriptor]struct{}
	free       map[frame.Role][]*frame.Descriptor
}

// NewSlots creates empty bookkeeping
func NewSlots() *Slots {
	return &Slots{
		registered: make(map[*frame.Descriptor]struct{}),
		free:       make(map[frame.Role][]*frame.Descriptor),
	}
}

// Register records a slot. It does not join the free list until released.
func (s *Slots) Register(d *frame.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registered[d]; ok {
		return fmt.Errorf("driver: %s already registered", d)
	}
	s.registered[d] = struct{}{}
	return nil
}

// Unregister forgets a slot. A slot still on the free list is handed back to
// the engine.
func (s *Slots) Unregister(d *frame.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registered[d]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, d)
	}
	delete(s.registered, d)
	list := s.free[d.Role]
	for i, f := range list {
		if f == d {
			s.free[d.Role] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	d.Transfer(frame.OwnerDriver, frame.OwnerEngine)
	return nil
}

// Release takes custody of an engine-owned registered slot
func (s *Slots) Release(d *frame.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registered[d]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, d)
	}
	if err := d.Transfer(frame.OwnerEngine, frame.OwnerDriver); err != nil {
		return err
	}
	s.free[d.Role] = append(s.free[d.Role], d)
	return nil
}

// Take pops the oldest free slot of a role, or nil. The slot stays
// driver-owned until Deliver.
func (s *Slots) Take(role frame.Role) *frame.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.free[role]
	if len(list) == 0 {
		return nil
	}
	d := list[0]
	s.free[role] = list[1:]
	return d
}

// Requeue puts a taken slot back at the head of its free list
func (s *Slots) Requeue(d *frame.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free[d.Role] = append([]*frame.Descriptor{d}, s.free[d.Role]...)
}

// Deliver hands a filled slot to the engine
func Deliver(d *frame.Descriptor) error {
	return d.Transfer(frame.OwnerDriver, frame.OwnerEngine)
}

// Free returns the number of slots of a role waiting to be filled
func (s *Slots) Free(role frame.Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.free[role])
}

// Registered returns the number of registered slots of a role
func (s *Slots) Registered(role frame.Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for d := range s.registered {
		if d.Role == role {
			n++
		}
	}
	return n
}

// Total returns the number of registered slots
func (s *Slots) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registered)
}
