// Package v4l2 drives a UVC webcam through video4linux. The device streams
// YUYV which is converted into the NV21 slots the engine registers; preview
// and video share the one capture stream.
package v4l2

import "fmt"

// NV21Size is the byte size of an NV21 frame
func NV21Size(w, h int) int {
	return w * h * 3 / 2
}

// YUYVToNV21 converts a packed 4:2:2 frame into NV21. Chroma of each row pair
// is averaged.
func YUYVToNV21(dst, src []byte, w, h int) error {
	if w <= 0 || h <= 0 || w%2 != 0 || h%2 != 0 {
		return fmt.Errorf("yuyv frame %dx%d: dimensions must be even", w, h)
	}
	stride := w * 2
	if len(src) < stride*h {
		return fmt.Errorf("yuyv frame %dx%d: have %d bytes", w, h, len(src))
	}
	if len(dst) < NV21Size(w, h) {
		return fmt.Errorf("nv21 frame %dx%d: buffer holds %d bytes", w, h, len(dst))
	}

	for y := 0; y < h; y++ {
		row := src[y*stride : (y+1)*stride]
		out := dst[y*w : (y+1)*w]
		for x := range out {
			out[x] = row[2*x]
		}
	}

	vu := dst[w*h:]
	for y := 0; y < h/2; y++ {
		r0 := src[2*y*stride:]
		r1 := src[(2*y+1)*stride:]
		out := vu[y*w : (y+1)*w]
		for x := 0; x < w/2; x++ {
			i := 4 * x
			u := (int(r0[i+1]) + int(r1[i+1]) + 1) / 2
			v := (int(r0[i+3]) + int(r1[i+3]) + 1) / 2
			out[2*x] = byte(v)
			out[2*x+1] = byte(u)
		}
	}
	return nil
}

// ScaleNV21 resamples an NV21 frame with nearest-neighbour sampling. Equal
// sizes copy.
func ScaleNV21(dst, src []byte, sw, sh, dw, dh int) error {
	if len(src) < NV21Size(sw, sh) {
		return fmt.Errorf("nv21 source %dx%d: have %d bytes", sw, sh, len(src))
	}
	if len(dst) < NV21Size(dw, dh) {
		return fmt.Errorf("nv21 target %dx%d: buffer holds %d bytes", dw, dh, len(dst))
	}
	if sw == dw && sh == dh {
		copy(dst, src[:NV21Size(sw, sh)])
		return nil
	}
	if dw <= 0 || dh <= 0 || sw < 2 || sh < 2 {
		return fmt.Errorf("nv21 scale %dx%d -> %dx%d: bad geometry", sw, sh, dw, dh)
	}

	for y := 0; y < dh; y++ {
		srow := src[(y*sh/dh)*sw:]
		out := dst[y*dw : (y+1)*dw]
		for x := range out {
			out[x] = srow[x*sw/dw]
		}
	}

	svu, dvu := src[sw*sh:], dst[dw*dh:]
	scw, sch, dcw, dch := sw/2, sh/2, dw/2, dh/2
	for y := 0; y < dch; y++ {
		srow := svu[(y*sch/dch)*sw:]
		out := dvu[y*dw:]
		for x := 0; x < dcw; x++ {
			sx := x * scw / dcw
			out[2*x] = srow[2*sx]
			out[2*x+1] = srow[2*sx+1]
		}
	}
	return nil
}
