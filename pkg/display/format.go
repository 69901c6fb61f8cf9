// Package display mediates the buffer ring shared between the camera engine and
// a display compositor: dequeue, lock, enqueue and cancel, with a genlock
// guarding every handoff.
package display

import "fmt"

// PixelFormat is a display buffer format code
type PixelFormat int

const (
	FormatNV21       PixelFormat = 0x11       // YCrCb 4:2:0 semi-planar
	FormatNV21Adreno PixelFormat = 0x108      // NV21 with Adreno tiling alignment
	FormatNV12       PixelFormat = 0x109      // YCbCr 4:2:0 semi-planar
	FormatYV12       PixelFormat = 0x32315659 // planar Y, V, U with 16 byte strides
)

func (f PixelFormat) String() string {
	switch f {
	case FormatNV21:
		return "yuv420sp"
	case FormatNV21Adreno:
		return "yuv420sp-adreno"
	case FormatNV12:
		return "nv12"
	case FormatYV12:
		return "yv12"
	}
	return fmt.Sprintf("format(0x%x)", int(f))
}

func align16(n int) int {
	return (n + 15) &^ 15
}

// YV12Strides returns the luma and chroma strides of a YV12 buffer
func YV12Strides(width int) (yStride, cStride int) {
	yStride = align16(width)
	cStride = align16(yStride / 2)
	return
}

// FrameSize returns the bytes needed for one frame
func FrameSize(f PixelFormat, width, height int) int {
	switch f {
	case FormatYV12:
		ys, cs := YV12Strides(width)
		return ys*height + 2*cs*(height/2)
	case FormatNV21Adreno:
		// Adreno wants the chroma plane to start on a 4K boundary
		y := (width*height + 4095) &^ 4095
		return y + width*height/2
	default:
		return width * height * 3 / 2
	}
}

// NV21ToYV12 converts a semi-planar VU frame into planar YV12. dst must hold
// FrameSize(FormatYV12, width, height) bytes.
func NV21ToYV12(dst, src []byte, width, height int) error {
	if len(src) < width*height*3/2 {
		return fmt.Errorf("nv21 source too short: %d bytes for %dx%d", len(src), width, height)
	}
	ys, cs := YV12Strides(width)
	if len(dst) < ys*height+2*cs*(height/2) {
		return fmt.Errorf("yv12 destination too short: %d bytes for %dx%d", len(dst), width, height)
	}

	for row := 0; row < height; row++ {
		copy(dst[row*ys:row*ys+width], src[row*width:row*width+width])
	}

	vBase := ys * height
	uBase := vBase + cs*(height/2)
	vu := src[width*height:]
	for row := 0; row < height/2; row++ {
		in := vu[row*width:]
		vRow := dst[vBase+row*cs:]
		uRow := dst[uBase+row*cs:]
		for col := 0; col < width/2; col++ {
			vRow[col] = in[2*col]
			uRow[col] = in[2*col+1]
		}
	}
	return nil
}
