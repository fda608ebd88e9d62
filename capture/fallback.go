package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/viewcast/video"
)

// DefaultFallbackInterval is the screenshot-loop cadence: well below
// streaming frame rates, cheap enough to run indefinitely.
const DefaultFallbackInterval = 200 * time.Millisecond

// maxConsecutiveGrabFailures bounds how long the fallback tolerates a
// broken grabber before giving up.
const maxConsecutiveGrabFailures = 5

// Grabber takes one screenshot of the source. Implementations wrap a
// platform screenshot capability.
type Grabber interface {
	Grab(ctx context.Context) (*video.Frame, error)
}

// FallbackSource is the degraded capture path: a screenshot loop at a
// bounded cadence with no delivery guarantee. The supervisor switches
// to it when the negotiated stream is gone for good.
type FallbackSource struct {
	grabber  Grabber
	interval time.Duration
}

// NewFallbackSource creates a screenshot-loop source. Zero interval
// selects DefaultFallbackInterval.
func NewFallbackSource(grabber Grabber, interval time.Duration) (*FallbackSource, error) {
	if grabber == nil {
		return nil, fmt.Errorf("grabber cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultFallbackInterval
	}
	return &FallbackSource{grabber: grabber, interval: interval}, nil
}

// Run grabs screenshots at the configured cadence and forwards them to
// out, dropping frames when the consumer is behind. It returns
// ErrStreamUnavailable after too many consecutive grab failures.
func (f *FallbackSource) Run(ctx context.Context, out chan<- *video.Frame) error {
	logrus.WithFields(logrus.Fields{
		"function": "FallbackSource.Run",
		"interval": f.interval.String(),
	}).Info("Screenshot fallback capture active")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame, err := f.grabber.Grab(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures++
				logrus.WithFields(logrus.Fields{
					"function": "FallbackSource.Run",
					"failures": failures,
					"error":    err.Error(),
				}).Warn("Screenshot grab failed")
				if failures >= maxConsecutiveGrabFailures {
					return fmt.Errorf("%w: %d consecutive grab failures", ErrStreamUnavailable, failures)
				}
				continue
			}
			failures = 0

			select {
			case out <- frame:
			default:
				// Consumer behind; a stale screenshot has no value.
			}
		}
	}
}
