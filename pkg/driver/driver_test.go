package driver

import (
	"errors"
	"testing"

	"github.com/video-system/go-camera-hal/pkg/frame"
)

func newSlot(i int, role frame.Role) *frame.Descriptor {
	d := &frame.Descriptor{Index: i, Role: role, Data: make([]byte, 16), Size: 16}
	d.SetOwner(frame.OwnerEngine)
	return d
}

func TestSlotsLifecycle(t *testing.T) {
	s := NewSlots()
	a, b := newSlot(0, frame.RolePreview), newSlot(1, frame.RolePreview)
	if err := s.Release(a); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("release before register: %v", err)
	}
	for _, d := range []*frame.Descriptor{a, b} {
		if err := s.Register(d); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Register(a); err == nil {
		t.Fatal("double register accepted")
	}
	if s.Free(frame.RolePreview) != 0 {
		t.Fatal("registration seeded the free list")
	}

	s.Release(a)
	s.Release(b)
	if a.Owner() != frame.OwnerDriver {
		t.Fatalf("owner after release = %s", a.Owner())
	}
	if err := s.Release(a); !errors.Is(err, frame.ErrNotOwner) {
		t.Fatalf("double release: %v", err)
	}

	got := s.Take(frame.RolePreview)
	if got != a {
		t.Fatalf("Take = %v, want oldest", got)
	}
	if err := Deliver(got); err != nil {
		t.Fatal(err)
	}
	if got.Owner() != frame.OwnerEngine {
		t.Fatalf("owner after deliver = %s", got.Owner())
	}
	if s.Take(frame.RoleVideo) != nil {
		t.Fatal("take from empty role")
	}

	if err := s.Unregister(b); err != nil {
		t.Fatal(err)
	}
	if b.Owner() != frame.OwnerEngine || s.Free(frame.RolePreview) != 0 {
		t.Fatalf("unregister left %s, free %d", b.Owner(), s.Free(frame.RolePreview))
	}
	if err := s.Unregister(b); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("double unregister: %v", err)
	}
	if s.Total() != 1 || s.Registered(frame.RolePreview) != 1 {
		t.Fatalf("total %d", s.Total())
	}
}

func TestRegistry(t *testing.T) {
	Register("test-null", func(opts Options) (Driver, error) {
		return nil, errors.New("null driver")
	})
	if _, err := New("test-null", Options{}); err == nil || err.Error() != "null driver" {
		t.Fatalf("New = %v", err)
	}
	if _, err := New("missing", Options{}); err == nil {
		t.Fatal("unknown driver accepted")
	}
	found := false
	for _, n := range Names() {
		if n == "test-null" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Names() = %v", Names())
	}
}

func TestParmNames(t *testing.T) {
	if len(AllParms()) != len(parmNames) {
		t.Fatalf("%d parms, %d names", len(AllParms()), len(parmNames))
	}
	if ParmHFR.String() != "hfr" || ParmRotation.String() != "rotation" {
		t.Fatalf("names out of step: %s %s", ParmHFR, ParmRotation)
	}
}
