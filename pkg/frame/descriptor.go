// Package frame defines the buffer slot descriptors shared between the capture
// driver, the engine workers and the display, plus the mailbox queue that hands
// them from one to the other.
package frame

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Role identifies which pipeline a buffer slot belongs to
type Role int

const (
	RolePreview Role = iota
	RoleVideo
	RoleMainImage
	RoleThumbnail
	RolePostview
	RoleJpeg
	RoleZSL
	RoleDisplay
)

var roleNames = [...]string{"preview", "video", "main-image", "thumbnail", "postview", "jpeg", "zsl", "display"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Owner names the subsystem currently holding custody of a slot
type Owner int32

const (
	OwnerFree Owner = iota
	OwnerDriver
	OwnerEngine
	OwnerDisplay
	OwnerEncoder
	OwnerClient
)

var ownerNames = [...]string{"free", "driver", "engine", "display", "encoder", "client"}

func (o Owner) String() string {
	if int(o) < len(ownerNames) {
		return ownerNames[o]
	}
	return fmt.Sprintf("owner(%d)", int(o))
}

// LockState mirrors the display-side genlock state of a slot
type LockState int32

const (
	Unlocked LockState = iota
	Locked
)

func (l LockState) String() string {
	if l == Locked {
		return "locked"
	}
	return "unlocked"
}

// ErrNotOwner is returned when a custody transfer names the wrong current owner
var ErrNotOwner = errors.New("frame: caller does not own buffer")

// Crop describes the digital zoom window attached to a frame
type Crop struct {
	InWidth   int `json:"in_width"`
	InHeight  int `json:"in_height"`
	OutWidth  int `json:"out_width"`
	OutHeight int `json:"out_height"`
}

// Descriptor is one hardware buffer slot
type Descriptor struct {
	Index      int
	Role       Role
	Fd         uintptr // backing allocation handle
	Offset     int64   // offset of the slot inside the backing allocation
	Size       int     // usable frame bytes
	YOffset    int
	CbCrOffset int
	CrOffset   int
	Data       []byte
	Active     bool // capture engine may write into it

	// Set per delivered frame
	Timestamp int64
	Crop      Crop

	// BufferID identifies the display buffer when the slot wraps one
	BufferID int

	owner atomic.Int32
	lock  atomic.Int32
}

// Owner returns the current custodian
func (d *Descriptor) Owner() Owner {
	return Owner(d.owner.Load())
}

// SetOwner forces custody, used when a pool hands out fresh slots
func (d *Descriptor) SetOwner(o Owner) {
	d.owner.Store(int32(o))
}

// Transfer moves custody from one owner to another. It fails without changing
// anything when from is not the current owner.
func (d *Descriptor) Transfer(from, to Owner) error {
	if !d.owner.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: slot %d (%s) held by %s, not %s",
			ErrNotOwner, d.Index, d.Role, d.Owner(), from)
	}
	return nil
}

// LockState returns the genlock mirror state
func (d *Descriptor) LockState() LockState {
	return LockState(d.lock.Load())
}

// SetLockState records a genlock transition
func (d *Descriptor) SetLockState(l LockState) {
	d.lock.Store(int32(l))
}

// Bytes returns the frame payload (Size bytes of the slot)
func (d *Descriptor) Bytes() []byte {
	if d.Size > 0 && d.Size <= len(d.Data) {
		return d.Data[:d.Size]
	}
	return d.Data
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s[%d] off=%d owner=%s %s", d.Role, d.Index, d.Offset, d.Owner(), d.LockState())
}
