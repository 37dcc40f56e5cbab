package room

import "time"

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionPlaying
	sessionPaused
	sessionEnded
)

// session accounts the actual elapsed playing time of a room, excluding
// paused intervals. accumulated only grows on a transition out of playing.
type session struct {
	state        sessionState
	startedAt    time.Time
	lastResumeAt time.Time
	accumulated  time.Duration
}

func (s *session) resume(now time.Time) {
	switch s.state {
	case sessionIdle:
		s.state = sessionPlaying
		s.startedAt = now
		s.lastResumeAt = now
	case sessionPaused:
		s.state = sessionPlaying
		s.lastResumeAt = now
	case sessionPlaying:
		// second play without an intervening pause must not reset the
		// interval start, otherwise play time would be undercounted
	}
}

func (s *session) pause(now time.Time) {
	if s.state != sessionPlaying {
		return
	}

	s.accumulated += now.Sub(s.lastResumeAt)
	s.state = sessionPaused
}

// end moves the session to its terminal state and reports whether this call
// performed the transition. Safe to invoke redundantly.
func (s *session) end(now time.Time) bool {
	if s.state == sessionEnded {
		return false
	}

	if s.state == sessionPlaying {
		s.accumulated += now.Sub(s.lastResumeAt)
	}
	s.state = sessionEnded

	return true
}
