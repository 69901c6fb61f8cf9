package sim

import (
	"testing"
	"time"

	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/frame"
	"github.com/video-system/go-camera-hal/pkg/params"
)

func slots(n int, role frame.Role, size int) []*frame.Descriptor {
	out := make([]*frame.Descriptor, n)
	for i := range out {
		out[i] = &frame.Descriptor{Index: i, Role: role, Data: make([]byte, size), Size: size}
		out[i].SetOwner(frame.OwnerEngine)
	}
	return out
}

func TestPreviewFramesRoundTrip(t *testing.T) {
	d := New(driver.Options{FrameInterval: 2 * time.Millisecond})
	frames := make(chan *frame.Descriptor, 16)
	if err := d.Open(driver.Callbacks{OnPreviewFrame: func(fd *frame.Descriptor) { frames <- fd }}); err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	d.SetDimension(driver.Dimension{Preview: params.Size{Width: 8, Height: 4}})

	bufs := slots(2, frame.RolePreview, 8*4*3/2)
	for _, b := range bufs {
		if err := d.RegisterBuffer(b); err != nil {
			t.Fatal(err)
		}
		if err := d.ReleaseFrame(b); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.StartPreview(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 6; i++ {
		select {
		case fd := <-frames:
			if fd.Owner() != frame.OwnerEngine {
				t.Fatalf("delivered frame owned by %s", fd.Owner())
			}
			if fd.Timestamp == 0 {
				t.Fatal("frame without timestamp")
			}
			if err := d.ReleaseFrame(fd); err != nil {
				t.Fatal(err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d never arrived", i)
		}
	}
	if err := d.StopPreview(); err != nil {
		t.Fatal(err)
	}
	n := d.Stats().PreviewFrames
	time.Sleep(10 * time.Millisecond)
	if d.Stats().PreviewFrames != n {
		t.Fatal("frames delivered after StopPreview returned")
	}
	if err := d.StopPreview(); err != driver.ErrNotStreaming {
		t.Fatalf("second StopPreview = %v", err)
	}
}

func TestDropsWithoutFreeBuffers(t *testing.T) {
	d := New(driver.Options{FrameInterval: time.Millisecond})
	d.Open(driver.Callbacks{})
	defer d.Close()
	d.StartPreview()
	time.Sleep(20 * time.Millisecond)
	d.StopPreview()
	if d.Stats().Dropped == 0 {
		t.Fatal("expected drops with an empty free list")
	}
}

func TestInjectedRegisterFailure(t *testing.T) {
	d := New(driver.Options{})
	d.Open(driver.Callbacks{})
	defer d.Close()
	d.SetFaults(Faults{FailRegisterAt: 2})
	bufs := slots(3, frame.RolePreview, 16)
	if err := d.RegisterBuffer(bufs[0]); err != nil {
		t.Fatal(err)
	}
	if err := d.RegisterBuffer(bufs[1]); err == nil {
		t.Fatal("injected failure not reported")
	}
	if d.Stats().Registered != 1 {
		t.Fatalf("registered = %d", d.Stats().Registered)
	}
}

func TestStallAfter(t *testing.T) {
	d := New(driver.Options{FrameInterval: time.Millisecond})
	got := make(chan *frame.Descriptor, 8)
	d.Open(driver.Callbacks{OnPreviewFrame: func(fd *frame.Descriptor) { got <- fd }})
	defer d.Close()
	d.SetFaults(Faults{StallAfter: 2})
	for _, b := range slots(4, frame.RolePreview, 16) {
		d.RegisterBuffer(b)
		d.ReleaseFrame(b)
	}
	d.StartPreview()
	time.Sleep(30 * time.Millisecond)
	d.StopPreview()
	if len(got) != 2 {
		t.Fatalf("delivered %d frames, want 2", len(got))
	}
}

func TestAutoFocusExactlyOnce(t *testing.T) {
	tests := []struct {
		name   string
		faults Faults
		cancel bool
		want   driver.FocusStatus
	}{
		{"success", Faults{}, false, driver.FocusSuccess},
		{"failure", Faults{FocusFail: true}, false, driver.FocusFailed},
		{"cancel", Faults{FocusDelay: time.Hour}, true, driver.FocusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make(chan driver.FocusStatus, 4)
			d := New(driver.Options{})
			d.Open(driver.Callbacks{OnFocus: func(s driver.FocusStatus) { results <- s }})
			defer d.Close()
			d.SetFaults(tt.faults)
			if err := d.AutoFocus(1); err != nil {
				t.Fatal(err)
			}
			if tt.cancel {
				if err := d.AutoFocus(1); err != driver.ErrBusy {
					t.Fatalf("overlapping AutoFocus = %v", err)
				}
				d.CancelAutoFocus()
			}
			select {
			case s := <-results:
				if s != tt.want {
					t.Fatalf("status = %s, want %s", s, tt.want)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("no focus result")
			}
			select {
			case s := <-results:
				t.Fatalf("second focus result %s", s)
			case <-time.After(20 * time.Millisecond):
			}
		})
	}
}

func TestSnapshotBurst(t *testing.T) {
	d := New(driver.Options{FrameInterval: time.Millisecond})
	var shots []*frame.Descriptor
	shutter := 0
	done := make(chan error, 1)
	d.Open(driver.Callbacks{
		OnShutter:      func() { shutter++ },
		OnSnapshot:     func(fd *frame.Descriptor) { shots = append(shots, fd) },
		OnSnapshotDone: func(err error) { done <- err },
	})
	defer d.Close()
	d.SetDimension(driver.Dimension{Picture: params.Size{Width: 4, Height: 4}})
	for _, b := range slots(3, frame.RoleMainImage, 24) {
		d.RegisterBuffer(b)
		d.ReleaseFrame(b)
	}
	if err := d.StartSnapshot(3); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot never completed")
	}
	if shutter != 1 || len(shots) != 3 {
		t.Fatalf("shutter %d shots %d", shutter, len(shots))
	}
	if shots[0].Bytes()[16] != 128 {
		t.Fatal("chroma plane not painted")
	}
}

func TestUnsupportedParm(t *testing.T) {
	d := New(driver.Options{Unsupported: []driver.Parm{driver.ParmHFR}})
	d.Open(driver.Callbacks{})
	defer d.Close()
	if d.IsParmSupported(driver.ParmHFR) {
		t.Fatal("hfr reported supported")
	}
	if err := d.SetParm(driver.ParmHFR, 2); err != driver.ErrUnsupported {
		t.Fatalf("SetParm = %v", err)
	}
	d.SetParm(driver.ParmZoom, 4)
	if v, _ := d.Parm(driver.ParmZoom); v != 4 {
		t.Fatalf("zoom = %d", v)
	}
}

func TestCropFor(t *testing.T) {
	c := cropFor(640, 480, 0)
	if c.InWidth != 640 || c.OutWidth != 640 {
		t.Fatalf("no zoom crop = %+v", c)
	}
	c = cropFor(640, 480, 20)
	if c.InWidth != 320 || c.InHeight != 240 {
		t.Fatalf("zoom 20 crop = %+v", c)
	}
}
