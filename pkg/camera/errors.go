package camera

import (
	"errors"
	"math"

	"github.com/video-system/go-camera-hal/pkg/params"
)

var (
	ErrUnknown          = errors.New("camera: unknown error")
	ErrBadValue         = errors.New("camera: bad value")
	ErrInvalidOperation = errors.New("camera: invalid operation")
	ErrNoInit           = errors.New("camera: not initialized")
	ErrNoMemory         = errors.New("camera: out of memory")
	ErrReleased         = errors.New("camera: session released")
)

// Platform status codes
const (
	StatusOK               int32 = 0
	StatusBadValue         int32 = -22
	StatusInvalidOperation int32 = -38
	StatusNoInit           int32 = -19
	StatusNoMemory         int32 = -12
	StatusUnknownError     int32 = math.MinInt32
)

// Status maps an error returned by a Session method onto the platform status
// code convention
func Status(err error) int32 {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrBadValue), errors.Is(err, params.ErrMalformed):
		return StatusBadValue
	case errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrReleased):
		return StatusInvalidOperation
	case errors.Is(err, ErrNoInit):
		return StatusNoInit
	case errors.Is(err, ErrNoMemory):
		return StatusNoMemory
	}
	return StatusUnknownError
}
