package capture

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionState tracks a capture session through its lifecycle.
type SessionState uint8

const (
	// StateCreated means the service accepted the session request.
	StateCreated SessionState = iota
	// StateSourcesSelected means a screen source has been chosen.
	StateSourcesSelected
	// StateStarted means frames are flowing.
	StateStarted
	// StateFailed is terminal.
	StateFailed
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateSourcesSelected:
		return "SourcesSelected"
	case StateStarted:
		return "Started"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Session is one negotiated capture session.
type Session struct {
	// Handle identifies the session toward the capture service.
	Handle string
	// NodeID is the stream node produced by the start step.
	NodeID uint32
	// CursorMode is the cursor rendering mode the service accepted.
	CursorMode CursorMode

	mu       sync.Mutex
	state    SessionState
	restarts int
}

// newSession creates a session with a fresh UUID handle.
func newSession() *Session {
	return &Session{
		Handle: uuid.NewString(),
		state:  StateCreated,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Restarts returns how many times this session's stream was restarted.
func (s *Session) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// RecordRestart bumps the restart counter.
func (s *Session) RecordRestart() {
	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Session.setState",
		"handle":   s.Handle,
		"from":     prev.String(),
		"to":       state.String(),
	}).Debug("Capture session state changed")
}
