package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/viewcast/video"
)

// LoopbackSink writes raw I420 frames to a virtual video device file
// handle, exposing the stream as a local camera.
type LoopbackSink struct {
	device io.WriteCloser
	name   string

	mu         sync.Mutex
	contract   Contract
	negotiated bool
	written    uint64
}

// NewLoopbackSink wraps an opened device handle. name is used in logs
// only (typically the device path).
func NewLoopbackSink(device io.WriteCloser, name string) (*LoopbackSink, error) {
	if device == nil {
		return nil, fmt.Errorf("device handle cannot be nil")
	}
	return &LoopbackSink{device: device, name: name}, nil
}

// Negotiate fixes the contract; the loopback device takes planar I420.
func (l *LoopbackSink) Negotiate(contract Contract) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.negotiated {
		return fmt.Errorf("%w: contract already negotiated", ErrNegotiationFailed)
	}
	if err := contract.Validate(); err != nil {
		return err
	}
	if contract.Format != video.FormatI420 {
		return fmt.Errorf("%w: loopback device requires I420, got %v", ErrNegotiationFailed, contract.Format)
	}
	l.contract = contract
	l.negotiated = true

	logrus.WithFields(logrus.Fields{
		"function": "LoopbackSink.Negotiate",
		"device":   l.name,
		"width":    contract.Width,
		"height":   contract.Height,
		"fps":      contract.FrameRate,
	}).Info("Loopback sink negotiated")
	return nil
}

// WriteFrame writes the three planes back to back, one full frame per
// write sequence.
func (l *LoopbackSink) WriteFrame(frame *video.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.negotiated {
		return fmt.Errorf("%w: write before negotiation", ErrNegotiationFailed)
	}
	if frame.Format != video.FormatI420 || frame.Width != l.contract.Width || frame.Height != l.contract.Height {
		return fmt.Errorf("frame %dx%d %v violates contract %dx%d I420",
			frame.Width, frame.Height, frame.Format, l.contract.Width, l.contract.Height)
	}

	for _, plane := range [][]byte{frame.Y, frame.U, frame.V} {
		if _, err := l.device.Write(plane); err != nil {
			return fmt.Errorf("device write failed: %w", err)
		}
	}
	l.written++
	return nil
}

// FramesWritten returns the delivered frame count.
func (l *LoopbackSink) FramesWritten() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Close closes the device handle.
func (l *LoopbackSink) Close() error {
	return l.device.Close()
}
