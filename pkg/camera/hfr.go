package camera

import (
	"context"
	"log"
)

// restartForHFR restarts a running preview so a new high frame rate mode takes
// effect. It runs on its own worker because SetParameters may be called from
// a host callback.
func (s *Session) restartForHFR(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil || s.released || !s.sm.is(StatePreviewRunning) {
		return
	}
	log.Printf("[camera] restarting preview for hfr %d", s.hfrDivisor.Load())
	s.stopPreviewInternal(false)
	if err := s.startPreviewInternal(); err != nil {
		log.Printf("[camera] Warning: restart preview: %v", err)
		s.cbs.notify(MsgError, ErrorUnknown, 0)
	}
}

// scheduleHFRRestart starts the restart worker unless one is pending
func (s *Session) scheduleHFRRestart() {
	if s.hfrWorker.isRunning() {
		return
	}
	if err := s.hfrWorker.start(s.restartForHFR); err != nil {
		log.Printf("[camera] Warning: %v", err)
	}
}
