//go:build linux

package mempool

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MemfdAllocator backs regions with an anonymous shared memory file, the
// userspace equivalent of an ashmem region. The fd can be passed to another
// process.
type MemfdAllocator struct{}

func (MemfdAllocator) Name() string { return "memfd" }

func (MemfdAllocator) Alloc(name string, size int) (Region, error) {
	fd, err := unix.MemfdCreate("camera-"+name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &mappedRegion{fd: fd, mem: mem}, nil
}

// DeviceAllocator maps a region from a contiguous-memory device node (pmem, ION
// heap exported as a file) or a regular file used as a stand-in.
type DeviceAllocator struct {
	Path string
}

func (a DeviceAllocator) Name() string { return a.Path }

func (a DeviceAllocator) Alloc(name string, size int) (Region, error) {
	fd, err := unix.Open(a.Path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.Path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", a.Path, err)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFREG && st.Size < int64(size) {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("size %s: %w", a.Path, err)
		}
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap %s: %w", a.Path, err)
	}
	return &mappedRegion{fd: fd, mem: mem}, nil
}

type mappedRegion struct {
	fd  int
	mem []byte
}

func (r *mappedRegion) Bytes() []byte { return r.mem }
func (r *mappedRegion) Fd() uintptr   { return uintptr(r.fd) }

// Close unmaps before closing the descriptor
func (r *mappedRegion) Close() error {
	var first error
	if r.mem != nil {
		if err := unix.Munmap(r.mem); err != nil {
			first = fmt.Errorf("munmap: %w", err)
		}
		r.mem = nil
	}
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil && first == nil {
			first = fmt.Errorf("close: %w", err)
		}
		r.fd = -1
	}
	return first
}
