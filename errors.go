package viewcast

import (
	"context"
	"errors"

	"github.com/opd-ai/viewcast/capture"
	"github.com/opd-ai/viewcast/sink"
	"github.com/opd-ai/viewcast/transport"
	"github.com/opd-ai/viewcast/video"
)

// ErrSessionFailed is the terminal error after a stage exhausted its
// restart budget. The underlying cause is wrapped.
var ErrSessionFailed = errors.New("session failed")

// IsTransient reports whether a stage error is worth a restart.
// Refusals and contract violations are permanent; timeouts,
// interruptions and socket trouble are not.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, capture.ErrHandshakeDenied),
		errors.Is(err, capture.ErrHandshakeCancelled),
		errors.Is(err, video.ErrUnsupported),
		errors.Is(err, sink.ErrNegotiationFailed),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, capture.ErrHandshakeTimeout),
		errors.Is(err, capture.ErrStreamUnavailable),
		errors.Is(err, capture.ErrStreamInterrupted),
		errors.Is(err, transport.ErrSocketFailure),
		errors.Is(err, video.ErrCorruptUnit),
		errors.Is(err, video.ErrOverload):
		return true
	default:
		return false
	}
}
