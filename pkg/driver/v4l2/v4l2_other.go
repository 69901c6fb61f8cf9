//go:build !linux

package v4l2

import (
	"errors"

	"github.com/video-system/go-camera-hal/pkg/driver"
)

var errUnsupported = errors.New("v4l2: video4linux capture requires linux")

func init() {
	driver.Register("v4l2", func(opts driver.Options) (driver.Driver, error) {
		return nil, errUnsupported
	})
}
