package transport

import "errors"

var (
	// ErrSocketFailure indicates the underlying socket is unusable and
	// the transport stage should be restarted.
	ErrSocketFailure = errors.New("transport socket failure")

	// ErrPathMTUExceeded indicates a datagram larger than the
	// configured payload ceiling was submitted for transmission.
	ErrPathMTUExceeded = errors.New("datagram exceeds path MTU")

	// ErrNoisePeerUnknown indicates no static public key is registered
	// for the peer, so a Noise-IK handshake cannot be initiated.
	ErrNoisePeerUnknown = errors.New("no noise public key known for peer")

	// ErrNoiseHandshakePending indicates a media packet was dropped
	// because the Noise session is not yet established.
	ErrNoiseHandshakePending = errors.New("noise handshake not complete")

	// ErrNoiseSessionNotFound indicates an encrypted packet arrived
	// from a peer with no active session.
	ErrNoiseSessionNotFound = errors.New("noise session not found for peer")
)
