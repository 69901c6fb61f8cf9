package display

import "errors"

// ErrNoBuffer is returned by DequeueBuffer when taking another buffer would cut
// into the compositor's undequeued reserve
var ErrNoBuffer = errors.New("display: no buffer available")

// Usage flags passed to SetUsage
const (
	UsageSWRead      uint32 = 0x3
	UsageSWWrite     uint32 = 0x30
	UsageHWTexture   uint32 = 0x100
	UsageHWCamera    uint32 = 0x20000
	UsagePrivateSMI  uint32 = 0x80000
	UsagePrivateUnca uint32 = 0x800000
)

// Buffer is one compositor-owned graphics buffer
type Buffer struct {
	ID     int
	Data   []byte
	Width  int
	Height int
	Format PixelFormat
	Lock   *Genlock
}

// Window is the preview surface the engine renders into
type Window interface {
	SetBufferCount(n int) error
	SetBuffersGeometry(width, height int, format PixelFormat) error
	SetUsage(usage uint32) error
	MinUndequeuedBufferCount() (int, error)
	DequeueBuffer() (*Buffer, error)
	LockBuffer(b *Buffer) error
	EnqueueBuffer(b *Buffer) error
	CancelBuffer(b *Buffer) error
	SetCrop(left, top, right, bottom int) error
}
