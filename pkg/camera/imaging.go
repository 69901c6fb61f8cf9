package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/video-system/go-camera-hal/pkg/params"
)

// nv21Image wraps an NV21 frame as a 4:2:0 YCbCr image. The luma plane is
// shared with src; the interleaved VU plane is split into new Cb and Cr planes.
func nv21Image(src []byte, w, h int) (*image.YCbCr, error) {
	if w <= 0 || h <= 0 || len(src) < w*h*3/2 {
		return nil, fmt.Errorf("nv21 frame %dx%d: have %d bytes", w, h, len(src))
	}
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	copy(img.Y, src[:w*h])
	vu := src[w*h:]
	cw, ch := (w+1)/2, (h+1)/2
	for y := 0; y < ch && y < h/2; y++ {
		for x := 0; x < cw && x < w/2; x++ {
			i := y*w + 2*x
			img.Cr[y*img.CStride+x] = vu[i]
			img.Cb[y*img.CStride+x] = vu[i+1]
		}
	}
	return img, nil
}

// scaleImage resizes src to size with bilinear filtering
func scaleImage(src image.Image, size params.Size) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// toNV21 converts an image into an NV21 frame of the same size
func toNV21(img image.Image) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*3/2)
	vu := out[w*h:]
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			yy, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			out[y*w+x] = yy
			if y%2 == 0 && x%2 == 0 && y/2 < h/2 && x/2 < w/2 {
				i := (y/2)*w + x
				vu[i] = cr
				vu[i+1] = cb
			}
		}
	}
	return out
}

// encodeJPEG encodes img at quality, plus a thumbnail when thumb is non-zero
func encodeJPEG(img image.Image, quality int, thumb params.Size, thumbQuality int) (main, thumbnail []byte, err error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return nil, nil, fmt.Errorf("encode jpeg: %w", err)
	}
	main = buf.Bytes()
	if thumb.Width <= 0 || thumb.Height <= 0 {
		return main, nil, nil
	}
	var tb bytes.Buffer
	if err := jpeg.Encode(&tb, scaleImage(img, thumb), &jpeg.Options{Quality: clampQuality(thumbQuality)}); err != nil {
		return nil, nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return main, tb.Bytes(), nil
}

func clampQuality(q int) int {
	switch {
	case q < 1:
		return params.DefaultJpegQuality
	case q > 100:
		return 100
	}
	return q
}
