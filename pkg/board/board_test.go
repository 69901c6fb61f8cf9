package board

import (
	"testing"

	"github.com/video-system/go-camera-hal/pkg/params"
)

func TestLookup(t *testing.T) {
	for _, name := range Targets() {
		p, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", name, err)
		}
		if p.Target.String() != name {
			t.Errorf("target %s round trips as %s", name, p.Target)
		}
		if p.MaxBurst() < 1 {
			t.Errorf("%s: burst %d", name, p.MaxBurst())
		}
		if !params.ContainsSize(p.PreviewSizes(), params.DefaultPreviewSize) {
			t.Errorf("%s: default preview size not supported", name)
		}
	}
	if _, err := Lookup("MSM8660"); err != nil {
		t.Fatalf("upper case lookup: %v", err)
	}
	if _, err := Lookup("msm8974"); err == nil {
		t.Fatal("unknown target accepted")
	}
}

func TestPreviewSizeMask(t *testing.T) {
	p, _ := Lookup("msm8660")
	if len(p.PreviewSizes()) != len(params.PreviewSizes) {
		t.Fatalf("8660 preview sizes = %d", len(p.PreviewSizes()))
	}
	low, _ := Lookup("msm7625")
	for _, s := range low.PreviewSizes() {
		if s.Width > 800 {
			t.Fatalf("7625 offers %v", s)
		}
	}
}

func TestPictureSizesZSL(t *testing.T) {
	p, _ := Lookup("msm8660")
	for _, s := range p.PictureSizes(true) {
		if s.Width > 1024 {
			t.Fatalf("zsl picture size %v", s)
		}
	}
	if p.PictureSizes(false)[0] != (params.Size{Width: 4000, Height: 3000}) {
		t.Fatalf("largest picture = %v", p.PictureSizes(false)[0])
	}
}

func TestZoomRatios(t *testing.T) {
	p, _ := Lookup("msm7630")
	r := p.ZoomRatios()
	if len(r) != MaxZoomRatios || r[0] != 100 || r[len(r)-1] != 400 {
		t.Fatalf("ratios = %v", r)
	}
}

func TestMaxBurst(t *testing.T) {
	p := Profile{MaxSnapshotBuffers: 5}
	if p.MaxBurst() != 3 {
		t.Fatalf("MaxBurst = %d", p.MaxBurst())
	}
	p.MaxSnapshotBuffers = 2
	if p.MaxBurst() != 1 {
		t.Fatalf("MaxBurst clamp = %d", p.MaxBurst())
	}
}
