package sink

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/viewcast/video"
)

// Output is the receive-side decode stage: it turns ordered bitstream
// units into frames, converts them to the sink's contract format and
// writes them out. Corrupt units are counted and skipped; decoding
// resumes at the next key unit.
type Output struct {
	decoder  *video.Decoder
	sink     Sink
	contract Contract

	corrupted atomic.Uint64
	written   atomic.Uint64
}

// NewOutput negotiates the sink contract and builds the decode stage.
func NewOutput(s Sink, contract Contract) (*Output, error) {
	if s == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if err := s.Negotiate(contract); err != nil {
		return nil, err
	}
	return &Output{
		decoder:  video.NewDecoder(),
		sink:     s,
		contract: contract,
	}, nil
}

// Consume decodes one unit and writes the resulting frame. Corrupt
// units return nil after bumping the corruption counter; anything
// else the caller should treat as a stage failure.
func (o *Output) Consume(unit *video.Unit) error {
	frame, err := o.decoder.Decode(unit)
	if err != nil {
		if errors.Is(err, video.ErrCorruptUnit) {
			o.corrupted.Add(1)
			return nil
		}
		return err
	}

	if frame.Width != o.contract.Width || frame.Height != o.contract.Height {
		return fmt.Errorf("%w: decoded %dx%d, contract %dx%d",
			video.ErrFormatMismatch, frame.Width, frame.Height, o.contract.Width, o.contract.Height)
	}

	if o.contract.Format == video.FormatRGBA {
		frame, err = video.I420ToRGBA(frame)
		if err != nil {
			return fmt.Errorf("format conversion failed: %w", err)
		}
	}

	if err := o.sink.WriteFrame(frame); err != nil {
		return err
	}
	o.written.Add(1)
	return nil
}

// CorruptUnits returns the count of discarded units.
func (o *Output) CorruptUnits() uint64 {
	return o.corrupted.Load()
}

// FramesWritten returns the count of frames delivered to the sink.
func (o *Output) FramesWritten() uint64 {
	return o.written.Load()
}

// Close closes the underlying sink.
func (o *Output) Close() error {
	logrus.WithFields(logrus.Fields{
		"function":  "Output.Close",
		"written":   o.written.Load(),
		"corrupted": o.corrupted.Load(),
	}).Info("Output stage closing")
	return o.sink.Close()
}
