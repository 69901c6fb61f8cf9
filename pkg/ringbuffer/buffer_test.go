package ringbuffer

import (
	"bytes"
	"testing"

	"github.com/video-system/go-camera-hal/pkg/mempool"
)

func newBuffer(t *testing.T, capacity int) *Buffer {
	t.Helper()
	b, err := New(Config{Name: "test", Capacity: capacity, FrameSize: 4}, mempool.HeapAllocator{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPushWrapsOldest(t *testing.T) {
	b := newBuffer(t, 3)
	for i := 1; i <= 5; i++ {
		if _, err := b.Push([]byte{byte(i), byte(i), byte(i), byte(i)}, int64(i*100)); err != nil {
			t.Fatal(err)
		}
	}
	st := b.GetStatus()
	if st.FrameCount != 3 || st.FirstSeq != 3 || st.LastSeq != 5 {
		t.Fatalf("status = %+v", st)
	}
	if st.OldestTime != 300 || st.NewestTime != 500 {
		t.Fatalf("times = %d..%d", st.OldestTime, st.NewestTime)
	}
	if got := b.GetFramesInRange(200, 201); len(got) != 0 {
		t.Fatal("overwritten frame still readable")
	}

	latest := b.Latest(2)
	if len(latest) != 2 || latest[0].Sequence != 4 || latest[1].Sequence != 5 {
		t.Fatalf("Latest(2) = %+v", latest)
	}
	if !bytes.Equal(latest[1].Data, []byte{5, 5, 5, 5}) {
		t.Fatalf("data = %v", latest[1].Data)
	}
	if got := b.Latest(10); len(got) != 3 {
		t.Fatalf("Latest(10) returned %d", len(got))
	}
}

func TestLatestReturnsCopies(t *testing.T) {
	b := newBuffer(t, 2)
	b.Push([]byte{1, 2, 3, 4}, 1)
	f := b.Latest(1)[0]
	f.Data[0] = 9
	if again := b.Latest(1)[0]; again.Data[0] != 1 {
		t.Fatal("Latest exposed ring memory")
	}
}

func TestRangeAndReset(t *testing.T) {
	b := newBuffer(t, 4)
	for i := 1; i <= 4; i++ {
		b.Push([]byte{byte(i)}, int64(i))
	}
	if got := b.GetFramesInRange(2, 4); len(got) != 2 {
		t.Fatalf("range returned %d frames", len(got))
	}
	b.Reset()
	if b.Latest(1) != nil || b.GetStatus().FrameCount != 0 {
		t.Fatal("reset kept frames")
	}
	f, _ := b.Push([]byte{7}, 9)
	if f.Sequence != 5 {
		t.Fatalf("sequence after reset = %d", f.Sequence)
	}
	if b.GetStatus().FrameCount != 1 {
		t.Fatalf("count after reset push = %d", b.GetStatus().FrameCount)
	}
}

func TestClosed(t *testing.T) {
	b := newBuffer(t, 1)
	b.Push([]byte{1}, 1)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Push([]byte{1}, 2); err != ErrClosed {
		t.Fatalf("push after close = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestInvalidGeometry(t *testing.T) {
	if _, err := New(Config{Capacity: 0, FrameSize: 4}, mempool.HeapAllocator{}); err == nil {
		t.Fatal("zero capacity accepted")
	}
}
