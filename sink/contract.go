package sink

import (
	"fmt"

	"github.com/opd-ai/viewcast/video"
)

// Contract fixes the output geometry for one session. It is agreed
// once during negotiation and never changes afterwards.
type Contract struct {
	Width     int
	Height    int
	FrameRate int
	Format    video.PixelFormat
}

// Validate checks the contract is internally consistent.
func (c Contract) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrNegotiationFailed, c.Width, c.Height)
	}
	if c.Format == video.FormatI420 && (c.Width%2 != 0 || c.Height%2 != 0) {
		return fmt.Errorf("%w: I420 dimensions must be even, got %dx%d", ErrNegotiationFailed, c.Width, c.Height)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("%w: frame rate must be positive", ErrNegotiationFailed)
	}
	return nil
}

// Sink consumes decoded frames under a negotiated contract.
type Sink interface {
	// Negotiate fixes the session contract. Called exactly once,
	// before the first WriteFrame.
	Negotiate(contract Contract) error

	// WriteFrame delivers one frame matching the contract.
	WriteFrame(frame *video.Frame) error

	// Close releases the sink.
	Close() error
}
