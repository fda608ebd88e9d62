package video

import "errors"

// Sentinel errors for video pipeline operations.
// These errors enable reliable error classification using errors.Is().

// Encoder errors.
var (
	// ErrUnsupported indicates the requested codec configuration cannot be used.
	ErrUnsupported = errors.New("unsupported codec configuration")

	// ErrOverload indicates the encoder produced or received more data than it can handle.
	ErrOverload = errors.New("encoder overload")
)

// Decoder errors.
var (
	// ErrCorruptUnit indicates a bitstream unit could not be decoded.
	ErrCorruptUnit = errors.New("corrupt bitstream unit")

	// ErrFormatMismatch indicates a decoded frame does not match the negotiated format.
	ErrFormatMismatch = errors.New("decoded format mismatch")
)
