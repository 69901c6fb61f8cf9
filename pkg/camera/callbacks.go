package camera

import (
	"sync"

	"github.com/video-system/go-camera-hal/pkg/mempool"
)

// MsgType is a bit mask of callback message types
type MsgType uint32

const (
	MsgError           MsgType = 0x0001
	MsgShutter         MsgType = 0x0002
	MsgFocus           MsgType = 0x0004
	MsgZoom            MsgType = 0x0008
	MsgPreviewFrame    MsgType = 0x0010
	MsgVideoFrame      MsgType = 0x0020
	MsgPostviewFrame   MsgType = 0x0040
	MsgRawImage        MsgType = 0x0080
	MsgCompressedImage MsgType = 0x0100
	MsgRawImageNotify  MsgType = 0x0200
	MsgPreviewMetadata MsgType = 0x0400
	MsgStatsData       MsgType = 0x1000
	MsgAll             MsgType = 0xFFFF
)

// Error codes carried in ext1 of an MsgError notification
const (
	ErrorUnknown    int32 = 1
	ErrorServerDied int32 = 100
)

// Face is a detected face in -1000..1000 preview coordinates
type Face struct {
	Left   int `cbor:"left" json:"left"`
	Top    int `cbor:"top" json:"top"`
	Right  int `cbor:"right" json:"right"`
	Bottom int `cbor:"bottom" json:"bottom"`
	Score  int `cbor:"score" json:"score"`
}

// Metadata accompanies data callbacks
type Metadata struct {
	PictureID string // compressed and raw images
	Exif      []byte // CBOR encoded Exif table, compressed images only
	Faces     []Face // preview metadata
	Thumbnail []byte // JPEG thumbnail of a compressed image
}

// NotifyFunc receives shutter, focus, zoom and error notifications
type NotifyFunc func(msg MsgType, ext1, ext2 int32)

// DataFunc receives preview frames, images and stats. data is only valid for
// the duration of the call unless documented otherwise.
type DataFunc func(msg MsgType, data []byte, index int, meta *Metadata)

// DataTimestampFunc receives video frames. The buffer stays valid until it is
// handed back with ReleaseRecordingFrame.
type DataTimestampFunc func(timestamp int64, msg MsgType, data []byte, index int)

// Callbacks is the host callback surface. Memory, when set, supplies every
// shareable buffer the session needs.
type Callbacks struct {
	Notify        NotifyFunc
	Data          DataFunc
	DataTimestamp DataTimestampFunc
	Memory        mempool.Allocator
}

// callbackSet guards the callbacks and the enabled message mask
type callbackSet struct {
	mu      sync.RWMutex
	cb      Callbacks
	enabled MsgType
}

func (c *callbackSet) set(cb Callbacks) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *callbackSet) enable(m MsgType) {
	c.mu.Lock()
	c.enabled |= m
	c.mu.Unlock()
}

func (c *callbackSet) disable(m MsgType) {
	c.mu.Lock()
	c.enabled &^= m
	c.mu.Unlock()
}

func (c *callbackSet) isEnabled(m MsgType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled&m != 0
}

func (c *callbackSet) allocator() mempool.Allocator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cb.Memory
}

func (c *callbackSet) notify(m MsgType, ext1, ext2 int32) {
	c.mu.RLock()
	fn, on := c.cb.Notify, c.enabled&m != 0
	c.mu.RUnlock()
	if fn != nil && on {
		fn(m, ext1, ext2)
	}
}

func (c *callbackSet) data(m MsgType, data []byte, index int, meta *Metadata) {
	c.mu.RLock()
	fn, on := c.cb.Data, c.enabled&m != 0
	c.mu.RUnlock()
	if fn != nil && on {
		fn(m, data, index, meta)
	}
}

// dataTimestamp reports whether the frame was handed to the host
func (c *callbackSet) dataTimestamp(ts int64, m MsgType, data []byte, index int) bool {
	c.mu.RLock()
	fn, on := c.cb.DataTimestamp, c.enabled&m != 0
	c.mu.RUnlock()
	if fn == nil || !on {
		return false
	}
	fn(ts, m, data, index)
	return true
}
