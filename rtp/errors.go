package rtp

import "errors"

var (
	// ErrMalformedFragment indicates a fragment payload too short to
	// carry the fragment descriptor.
	ErrMalformedFragment = errors.New("malformed media fragment")

	// ErrUnexpectedSSRC indicates a packet from a different stream
	// than the one this receiver locked onto.
	ErrUnexpectedSSRC = errors.New("unexpected SSRC")
)
