package capture

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/viewcast/video"
)

// StreamOpener attaches to a negotiated stream node and delivers its
// frames. Implementations wrap the platform media pipeline; tests use
// channel-backed fakes.
type StreamOpener interface {
	// Open attaches to the node. The returned channel closes when the
	// stream ends or the context is cancelled.
	Open(ctx context.Context, nodeID uint32) (<-chan *video.Frame, error)
}

// Source couples the handshake with a stream opener into one capture
// stage the supervisor can run and restart.
type Source struct {
	negotiator *Negotiator
	opener     StreamOpener
	session    *Session
}

// NewSource creates a capture source.
func NewSource(negotiator *Negotiator, opener StreamOpener) (*Source, error) {
	if negotiator == nil {
		return nil, fmt.Errorf("negotiator cannot be nil")
	}
	if opener == nil {
		return nil, fmt.Errorf("stream opener cannot be nil")
	}
	return &Source{negotiator: negotiator, opener: opener}, nil
}

// Session returns the most recent negotiated session, nil before the
// first successful handshake.
func (s *Source) Session() *Session {
	return s.session
}

// Run negotiates a session, attaches to its stream and forwards frames
// to out until the context ends. A stream that closes while the
// context is still live returns ErrStreamInterrupted so the supervisor
// can restart the stage.
func (s *Source) Run(ctx context.Context, out chan<- *video.Frame) error {
	session, err := s.negotiator.Negotiate(ctx)
	if err != nil {
		return err
	}
	if prev := s.session; prev != nil {
		// Re-negotiation after an earlier run means the stream was
		// restarted; the count carries across session handles.
		session.restarts = prev.Restarts()
		session.RecordRestart()
	}
	s.session = session

	frames, err := s.opener.Open(ctx, session.NodeID)
	if err != nil {
		session.setState(StateFailed)
		return fmt.Errorf("%w: %v", ErrStreamUnavailable, err)
	}

	forwarded := uint64(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				logrus.WithFields(logrus.Fields{
					"function":  "Source.Run",
					"handle":    session.Handle,
					"forwarded": forwarded,
				}).Warn("Capture stream closed mid-session")
				return ErrStreamInterrupted
			}
			select {
			case out <- frame:
				forwarded++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
