package camera

import (
	"encoding/binary"
	"sync"
)

// histogramBins is the number of luma buckets in a stats buffer
const histogramBins = 256

// histogram accumulates the luma distribution of the latest preview frame
type histogram struct {
	mu      sync.Mutex
	enabled bool
	bins    [histogramBins]uint32
	valid   bool
}

func (h *histogram) isEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

func (h *histogram) setEnabled(on bool) {
	h.mu.Lock()
	h.enabled = on
	if !on {
		h.valid = false
	}
	h.mu.Unlock()
}

// compute counts the luma plane of an NV21 frame
func (h *histogram) compute(data []byte, lumaLen int) {
	if lumaLen > len(data) {
		lumaLen = len(data)
	}
	var bins [histogramBins]uint32
	for _, y := range data[:lumaLen] {
		bins[y]++
	}
	h.mu.Lock()
	h.bins = bins
	h.valid = true
	h.mu.Unlock()
}

// bytes encodes the bins as little-endian uint32 counts
func (h *histogram) bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]byte, 4*histogramBins)
	for i, n := range h.bins {
		binary.LittleEndian.PutUint32(out[4*i:], n)
	}
	return out
}

// last returns the most recent stats buffer, or nil before the first frame
func (h *histogram) last() []byte {
	h.mu.Lock()
	valid := h.valid
	h.mu.Unlock()
	if !valid {
		return nil
	}
	return h.bytes()
}
