//go:build !linux

package mempool

import "errors"

var errUnsupported = errors.New("shared memory allocation requires linux")

// MemfdAllocator is only available on linux
type MemfdAllocator struct{}

func (MemfdAllocator) Name() string { return "memfd" }

func (MemfdAllocator) Alloc(name string, size int) (Region, error) {
	return nil, errUnsupported
}

// DeviceAllocator is only available on linux
type DeviceAllocator struct {
	Path string
}

func (a DeviceAllocator) Name() string { return a.Path }

func (a DeviceAllocator) Alloc(name string, size int) (Region, error) {
	return nil, errUnsupported
}
