package capture

import "errors"

var (
	// ErrHandshakeTimeout indicates a handshake step exceeded its
	// timeout. The capture service may just be slow; retryable.
	ErrHandshakeTimeout = errors.New("capture handshake timed out")

	// ErrHandshakeDenied indicates the user or service refused the
	// capture request. Not retryable.
	ErrHandshakeDenied = errors.New("capture handshake denied")

	// ErrHandshakeCancelled indicates the caller cancelled the
	// handshake before it completed.
	ErrHandshakeCancelled = errors.New("capture handshake cancelled")

	// ErrStreamUnavailable indicates the negotiated stream node could
	// not be attached.
	ErrStreamUnavailable = errors.New("capture stream unavailable")

	// ErrStreamInterrupted indicates an established stream stopped
	// delivering frames mid-session.
	ErrStreamInterrupted = errors.New("capture stream interrupted")
)
