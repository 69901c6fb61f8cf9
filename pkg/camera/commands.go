package camera

import (
	"fmt"
	"log"

	"github.com/video-system/go-camera-hal/pkg/params"
)

// Command is a sendCommand opcode
type Command int32

const (
	CmdStartSmoothZoom    Command = 1
	CmdStopSmoothZoom     Command = 2
	CmdSetDisplayOrient   Command = 3
	CmdStartFaceDetection Command = 6
	CmdStopFaceDetection  Command = 7
	CmdHistogramOn        Command = 8
	CmdHistogramOff       Command = 9
	CmdHistogramSendData  Command = 10
)

func (c Command) String() string {
	switch c {
	case CmdStartSmoothZoom:
		return "start-smooth-zoom"
	case CmdStopSmoothZoom:
		return "stop-smooth-zoom"
	case CmdSetDisplayOrient:
		return "set-display-orientation"
	case CmdStartFaceDetection:
		return "start-face-detection"
	case CmdStopFaceDetection:
		return "stop-face-detection"
	case CmdHistogramOn:
		return "histogram-on"
	case CmdHistogramOff:
		return "histogram-off"
	case CmdHistogramSendData:
		return "histogram-send-data"
	}
	return fmt.Sprintf("command(%d)", int32(c))
}

// SendCommand runs a host command. arg1 is the zoom target for
// CmdStartSmoothZoom and the orientation in degrees for CmdSetDisplayOrient.
func (s *Session) SendCommand(cmd Command, arg1, arg2 int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	log.Printf("[camera] command %s (%d, %d)", cmd, arg1, arg2)

	switch cmd {
	case CmdStartSmoothZoom:
		return s.startSmoothZoom(int(arg1))
	case CmdStopSmoothZoom:
		s.stopSmoothZoom()
		return nil
	case CmdSetDisplayOrient:
		s.paramsMu.Lock()
		s.displayOrientation = int(arg1)
		s.paramsMu.Unlock()
		return nil
	case CmdStartFaceDetection, CmdStopFaceDetection:
		if !s.board.HasFaceDetect {
			return fmt.Errorf("%w: face detection not supported", ErrInvalidOperation)
		}
		on := cmd == CmdStartFaceDetection
		value := "off"
		if on {
			value = "on"
		}
		return s.applyCommandParam(params.KeyFaceDetection, value)
	case CmdHistogramOn, CmdHistogramOff:
		value := "disable"
		if cmd == CmdHistogramOn {
			value = "enable"
		}
		return s.applyCommandParam(params.KeyHistogram, value)
	case CmdHistogramSendData:
		if !s.hist.isEnabled() {
			return fmt.Errorf("%w: histogram disabled", ErrInvalidOperation)
		}
		if b := s.hist.last(); b != nil {
			s.cbs.data(MsgStatsData, b, 0, nil)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown command %d", ErrBadValue, int32(cmd))
}

// applyCommandParam routes a command through the matching parameter setter
// so the parameter surface reflects it
func (s *Session) applyCommandParam(key, value string) error {
	p := s.GetParameters()
	p.Set(key, value)
	return s.setParametersLocked(p)
}
