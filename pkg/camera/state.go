package camera

import (
	"errors"
	"fmt"
	"log"

	"github.com/looplab/fsm"
)

// State is the session phase
type State string

const (
	StateIdle            State = "idle"
	StatePreviewDeferred State = "preview_deferred" // preview requested before a window was bound
	StatePreviewStarting State = "preview_starting"
	StatePreviewRunning  State = "preview_running"
	StateRecording       State = "recording"
	StateSnapshotting    State = "snapshotting"
	StateReleasing       State = "releasing"
	StateReleased        State = "released"
)

const (
	evDeferPreview   = "defer_preview"
	evStartPreview   = "start_preview"
	evPreviewStarted = "preview_started"
	evPreviewFailed  = "preview_failed"
	evStopPreview    = "stop_preview"
	evStartRecording = "start_recording"
	evStopRecording  = "stop_recording"
	evTakePicture    = "take_picture"
	evSnapshotDone   = "snapshot_done"
	evFault          = "fault"
	evRelease        = "release"
	evReleased       = "released"
)

// stateMachine wraps the session fsm. Transitions assert their legal
// predecessor states; an illegal transition is an ErrInvalidOperation.
type stateMachine struct {
	f *fsm.FSM
}

func newStateMachine(onChange func(from, to State)) *stateMachine {
	s := func(states ...State) []string {
		out := make([]string, len(states))
		for i, st := range states {
			out[i] = string(st)
		}
		return out
	}
	live := []State{StatePreviewStarting, StatePreviewRunning, StateRecording}

	m := &stateMachine{}
	m.f = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: evDeferPreview, Src: s(StateIdle), Dst: string(StatePreviewDeferred)},
			{Name: evStartPreview, Src: s(StateIdle, StatePreviewDeferred), Dst: string(StatePreviewStarting)},
			{Name: evPreviewStarted, Src: s(StatePreviewStarting), Dst: string(StatePreviewRunning)},
			{Name: evPreviewFailed, Src: s(StatePreviewStarting), Dst: string(StateIdle)},
			{Name: evStopPreview, Src: s(append(live, StatePreviewDeferred)...), Dst: string(StateIdle)},
			{Name: evStartRecording, Src: s(StatePreviewRunning), Dst: string(StateRecording)},
			{Name: evStopRecording, Src: s(StateRecording), Dst: string(StatePreviewRunning)},
			{Name: evTakePicture, Src: s(StateIdle, StatePreviewRunning), Dst: string(StateSnapshotting)},
			{Name: evSnapshotDone, Src: s(StateSnapshotting), Dst: string(StateIdle)},
			{Name: evFault, Src: s(live...), Dst: string(StateIdle)},
			{Name: evRelease, Src: s(append(live, StateIdle, StatePreviewDeferred, StateSnapshotting)...), Dst: string(StateReleasing)},
			{Name: evReleased, Src: s(StateReleasing), Dst: string(StateReleased)},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				if onChange != nil {
					onChange(State(e.Src), State(e.Dst))
				}
			},
		},
	)
	return m
}

// fire runs a transition
func (m *stateMachine) fire(event string) error {
	err := m.f.Event(event)
	var invalid fsm.InvalidEventError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &invalid):
		return fmt.Errorf("%w: %s while %s", ErrInvalidOperation, event, m.current())
	}
	return fmt.Errorf("%s: %w", event, err)
}

// mustFire runs a transition that the caller already checked; a failure is a
// bookkeeping bug and is only logged
func (m *stateMachine) mustFire(event string) {
	if err := m.fire(event); err != nil {
		log.Printf("[camera] Warning: state transition: %v", err)
	}
}

func (m *stateMachine) current() State {
	return State(m.f.Current())
}

func (m *stateMachine) is(states ...State) bool {
	cur := m.current()
	for _, s := range states {
		if s == cur {
			return true
		}
	}
	return false
}

// can reports whether an event is legal from the current state
func (m *stateMachine) can(event string) bool {
	return m.f.Can(event)
}
