package frame

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueAddBeforeInit(t *testing.T) {
	q := NewQueue()
	if q.Add(&Descriptor{}) {
		t.Fatal("Add on uninitialized queue succeeded")
	}
	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0", q.Len())
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Init()
	for i := 0; i < 3; i++ {
		if !q.Add(&Descriptor{Index: i}) {
			t.Fatalf("Add %d failed", i)
		}
	}
	for i := 0; i < 3; i++ {
		d := q.Get()
		if d == nil || d.Index != i {
			t.Fatalf("Get = %v, want index %d", d, i)
		}
	}
}

func TestQueueDeinitWakesAllWaiters(t *testing.T) {
	q := NewQueue()
	q.Init()

	const waiters = 4
	var wg sync.WaitGroup
	results := make(chan *Descriptor, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- q.Get()
		}()
	}

	q.Add(&Descriptor{Index: 7})
	time.Sleep(20 * time.Millisecond)
	q.Deinit()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiters still blocked after Deinit")
	}
	close(results)

	var got, nils int
	for d := range results {
		if d == nil {
			nils++
		} else {
			got++
		}
	}
	if got != 1 || nils != waiters-1 {
		t.Fatalf("got %d frames and %d sentinels", got, nils)
	}
}

func TestQueueGetAfterDeinitReturnsNil(t *testing.T) {
	q := NewQueue()
	q.Init()
	q.Add(&Descriptor{})
	q.Deinit()
	if d := q.Get(); d != nil {
		t.Fatalf("Get after Deinit = %v, want nil", d)
	}
}

func TestQueueFlush(t *testing.T) {
	q := NewQueue()
	q.Init()
	q.Add(&Descriptor{Index: 1})
	q.Add(&Descriptor{Index: 2})
	flushed := q.Flush()
	if len(flushed) != 2 {
		t.Fatalf("Flush returned %d frames", len(flushed))
	}
	if q.Len() != 0 {
		t.Fatalf("Len after flush = %d", q.Len())
	}
	if !q.IsInitialized() {
		t.Fatal("Flush changed initialized flag")
	}
}

func TestDescriptorTransfer(t *testing.T) {
	d := &Descriptor{Index: 2, Role: RolePreview}
	d.SetOwner(OwnerDriver)

	if err := d.Transfer(OwnerDisplay, OwnerEngine); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("Transfer from wrong owner: err = %v", err)
	}
	if d.Owner() != OwnerDriver {
		t.Fatalf("owner moved to %s on failed transfer", d.Owner())
	}
	if err := d.Transfer(OwnerDriver, OwnerEngine); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if d.Owner() != OwnerEngine {
		t.Fatalf("owner = %s, want engine", d.Owner())
	}
}

func TestDescriptorBytes(t *testing.T) {
	d := &Descriptor{Data: make([]byte, 4096), Size: 100}
	if len(d.Bytes()) != 100 {
		t.Fatalf("Bytes len = %d", len(d.Bytes()))
	}
	d.Size = 0
	if len(d.Bytes()) != 4096 {
		t.Fatalf("Bytes len without size = %d", len(d.Bytes()))
	}
}
