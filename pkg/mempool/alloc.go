package mempool

// HeapAllocator backs regions with ordinary Go memory. Buffers from it carry no
// file descriptor and are only usable by in-process drivers.
type HeapAllocator struct{}

func (HeapAllocator) Name() string { return "heap" }

func (HeapAllocator) Alloc(name string, size int) (Region, error) {
	return &heapRegion{buf: make([]byte, size)}, nil
}

type heapRegion struct {
	buf []byte
}

func (r *heapRegion) Bytes() []byte { return r.buf }
func (r *heapRegion) Fd() uintptr   { return 0 }
func (r *heapRegion) Close() error {
	r.buf = nil
	return nil
}

// NewAllocator returns the allocator for a config name: "heap", "memfd" or a
// device path (anything starting with '/').
func NewAllocator(kind string) Allocator {
	switch {
	case kind == "memfd" || kind == "ashmem":
		return MemfdAllocator{}
	case len(kind) > 0 && kind[0] == '/':
		return DeviceAllocator{Path: kind}
	default:
		return HeapAllocator{}
	}
}
