package mempool

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/video-system/go-camera-hal/pkg/frame"
)

type recordingRegistrar struct {
	mu           sync.Mutex
	registered   []int
	unregistered []int
	failAt       int // slot index to fail on, -1 for never
}

func newRecorder() *recordingRegistrar {
	return &recordingRegistrar{failAt: -1}
}

func (r *recordingRegistrar) RegisterBuffer(d *frame.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Index == r.failAt {
		return errors.New("register ioctl failed")
	}
	r.registered = append(r.registered, d.Index)
	return nil
}

func (r *recordingRegistrar) UnregisterBuffer(d *frame.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered = append(r.unregistered, d.Index)
	return nil
}

type trackingAllocator struct {
	HeapAllocator
	closed int
}

type trackedRegion struct {
	Region
	a *trackingAllocator
}

func (r *trackedRegion) Close() error {
	r.a.closed++
	return r.Region.Close()
}

func (a *trackingAllocator) Alloc(name string, size int) (Region, error) {
	reg, err := a.HeapAllocator.Alloc(name, size)
	if err != nil {
		return nil, err
	}
	return &trackedRegion{Region: reg, a: a}, nil
}

func TestPoolSlotOffsets(t *testing.T) {
	tests := []struct {
		name       string
		bufferSize int
		num        int
	}{
		{"sub-page", 100, 4},
		{"exact page", PageSize, 3},
		{"vga nv21", 640 * 480 * 3 / 2, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(Config{Name: tt.name, BufferSize: tt.bufferSize, NumBuffers: tt.num}, HeapAllocator{}, nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer p.Close()

			if p.Stride()%PageSize != 0 || p.Stride() < tt.bufferSize {
				t.Fatalf("stride %d not page aligned or too small", p.Stride())
			}
			for i := 0; i < tt.num; i++ {
				d := p.Buffer(i)
				if d.Offset != int64(i*p.Stride()) {
					t.Errorf("slot %d offset = %d, want %d", i, d.Offset, i*p.Stride())
				}
				if len(d.Data) != p.Stride() {
					t.Errorf("slot %d data len = %d", i, len(d.Data))
				}
			}
		})
	}
}

func TestPoolActiveSlots(t *testing.T) {
	p, err := New(Config{Name: "preview", BufferSize: 4096, NumBuffers: 8, ActiveBuffers: 3}, HeapAllocator{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	active := 0
	for _, d := range p.Buffers() {
		if d.Active {
			active++
		}
	}
	if active != 3 || p.ActiveCount() != 3 {
		t.Fatalf("active = %d (count %d), want 3", active, p.ActiveCount())
	}
}

func TestPoolRegisterUnregisterSymmetry(t *testing.T) {
	reg := newRecorder()
	p, err := New(Config{Name: "preview", BufferSize: 1000, NumBuffers: 5, Register: true}, HeapAllocator{}, reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Registered() != 5 {
		t.Fatalf("registered = %d", p.Registered())
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if len(reg.registered) != len(reg.unregistered) {
		t.Fatalf("registered %v, unregistered %v", reg.registered, reg.unregistered)
	}
	for i := range reg.registered {
		if reg.registered[i] != reg.unregistered[i] {
			t.Fatalf("registered %v, unregistered %v", reg.registered, reg.unregistered)
		}
	}
}

func TestPoolUnregisteredRoleSkipsDriver(t *testing.T) {
	reg := newRecorder()
	p, err := New(Config{Name: "thumbnail", Role: frame.RoleThumbnail, BufferSize: 1000, NumBuffers: 2}, HeapAllocator{}, reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Close()
	if len(reg.registered) != 0 || len(reg.unregistered) != 0 {
		t.Fatalf("driver touched for unregistered pool: %v / %v", reg.registered, reg.unregistered)
	}
}

func TestPoolRegistrationFailureReleasesEverything(t *testing.T) {
	reg := newRecorder()
	reg.failAt = 3
	alloc := &trackingAllocator{}

	_, err := New(Config{Name: "preview", BufferSize: 1000, NumBuffers: 6, Register: true}, alloc, reg)
	if err == nil {
		t.Fatal("New succeeded despite registration failure")
	}
	if alloc.closed != 1 {
		t.Fatalf("region closed %d times, want 1", alloc.closed)
	}
	if len(reg.registered) != 3 || len(reg.unregistered) != 3 {
		t.Fatalf("registered %v, unregistered %v", reg.registered, reg.unregistered)
	}
}

func TestPoolRejectsBadGeometry(t *testing.T) {
	if _, err := New(Config{Name: "bad", BufferSize: 0, NumBuffers: 2}, HeapAllocator{}, nil); err == nil {
		t.Fatal("zero buffer size accepted")
	}
	if _, err := New(Config{Name: "bad", BufferSize: 10, NumBuffers: 2, Register: true}, HeapAllocator{}, nil); err == nil {
		t.Fatal("registration without registrar accepted")
	}
}

func TestMemfdAllocator(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("memfd requires linux")
	}
	p, err := New(Config{Name: "memfd", BufferSize: 5000, NumBuffers: 3}, MemfdAllocator{}, nil)
	if err != nil {
		t.Skipf("memfd not available: %v", err)
	}
	d := p.Buffer(2)
	d.Data[0] = 0xAB
	if d.Fd == 0 {
		t.Error("memfd slot has no fd")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDeviceAllocatorRegularFile(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("device mapping requires linux")
	}
	path := filepath.Join(t.TempDir(), "pmem_adsp")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	p, err := New(Config{Name: "snapshot", BufferSize: 8192, NumBuffers: 2}, NewAllocator(path), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Buffer(1).Data[10] = 1
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() < int64(2*p.Stride()) {
		t.Fatalf("backing file size %d", st.Size())
	}
}
