package sink

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/viewcast/video"
)

// PreviewSink hands RGBA frames to an in-process callback, typically
// a local preview window.
type PreviewSink struct {
	callback func(*video.Frame)

	mu         sync.Mutex
	contract   Contract
	negotiated bool
	written    uint64
}

// NewPreviewSink creates a preview sink delivering to callback.
func NewPreviewSink(callback func(*video.Frame)) (*PreviewSink, error) {
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	return &PreviewSink{callback: callback}, nil
}

// Negotiate fixes the contract; preview only accepts RGBA.
func (p *PreviewSink) Negotiate(contract Contract) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.negotiated {
		return fmt.Errorf("%w: contract already negotiated", ErrNegotiationFailed)
	}
	if err := contract.Validate(); err != nil {
		return err
	}
	if contract.Format != video.FormatRGBA {
		return fmt.Errorf("%w: preview requires RGBA, got %v", ErrNegotiationFailed, contract.Format)
	}
	p.contract = contract
	p.negotiated = true

	logrus.WithFields(logrus.Fields{
		"function": "PreviewSink.Negotiate",
		"width":    contract.Width,
		"height":   contract.Height,
		"fps":      contract.FrameRate,
	}).Info("Preview sink negotiated")
	return nil
}

// WriteFrame delivers one frame to the callback.
func (p *PreviewSink) WriteFrame(frame *video.Frame) error {
	p.mu.Lock()
	if !p.negotiated {
		p.mu.Unlock()
		return fmt.Errorf("%w: write before negotiation", ErrNegotiationFailed)
	}
	contract := p.contract
	p.written++
	p.mu.Unlock()

	if frame.Format != contract.Format || frame.Width != contract.Width || frame.Height != contract.Height {
		return fmt.Errorf("frame %dx%d %v violates contract %dx%d %v",
			frame.Width, frame.Height, frame.Format,
			contract.Width, contract.Height, contract.Format)
	}

	p.callback(frame)
	return nil
}

// FramesWritten returns the delivered frame count.
func (p *PreviewSink) FramesWritten() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Close releases the sink.
func (p *PreviewSink) Close() error { return nil }
