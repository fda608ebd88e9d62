package follow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoCursorSource indicates no cursor capability could be acquired.
var ErrNoCursorSource = errors.New("no cursor source available")

// CursorSource is one interchangeable cursor capability.
//
// Implementations wrap whatever the platform offers: a compositor
// cursor session, cursor metadata on the capture stream, or a raw
// input device. Open may fail when the capability is unavailable;
// the Selector then moves to the next source in order.
type CursorSource interface {
	// Name identifies the source in logs.
	Name() string

	// Open starts delivering samples. The channel closes when the
	// source fails or the context is cancelled.
	Open(ctx context.Context) (<-chan Sample, error)

	// Close releases the capability.
	Close() error
}

// Selector picks the first available cursor source from an ordered
// preference list, falling back down the list on failure.
type Selector struct {
	sources []CursorSource
}

// NewSelector builds a selector over the ordered source list.
func NewSelector(sources ...CursorSource) *Selector {
	return &Selector{sources: sources}
}

// Acquire opens the first source that succeeds, in order.
func (s *Selector) Acquire(ctx context.Context) (CursorSource, <-chan Sample, error) {
	for _, src := range s.sources {
		samples, err := src.Open(ctx)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Selector.Acquire",
				"source":   src.Name(),
				"error":    err.Error(),
			}).Warn("Cursor source unavailable, trying next")
			continue
		}
		logrus.WithFields(logrus.Fields{
			"function": "Selector.Acquire",
			"source":   src.Name(),
		}).Info("Cursor source acquired")
		return src, samples, nil
	}
	return nil, nil, ErrNoCursorSource
}

// Tracker drives a Controller from the selected cursor source at a
// fixed sample interval.
//
// Each tick either forwards the latest sample or records a miss; when
// the source channel closes the tracker keeps ticking misses (so the
// controller can reach Lost) while re-acquiring a source in the
// background.
type Tracker struct {
	controller *Controller
	selector   *Selector
	interval   time.Duration

	mu      sync.Mutex
	current CursorSource
}

// NewTracker creates a tracker. Interval must be positive.
func NewTracker(controller *Controller, selector *Selector, interval time.Duration) (*Tracker, error) {
	if controller == nil {
		return nil, errors.New("controller cannot be nil")
	}
	if selector == nil {
		return nil, errors.New("selector cannot be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sample interval %v must be positive", interval)
	}
	return &Tracker{controller: controller, selector: selector, interval: interval}, nil
}

// Run samples until the context is cancelled. It returns
// ErrNoCursorSource only when the initial acquisition fails; later
// source failures trigger background re-acquisition instead.
func (t *Tracker) Run(ctx context.Context) error {
	src, samples, err := t.selector.Acquire(ctx)
	if err != nil {
		return err
	}
	t.setCurrent(src)
	defer t.releaseCurrent()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	var latest *Sample
	reacquired := make(chan reacquireResult, 1)
	reacquiring := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case s, ok := <-samples:
			if !ok {
				// Source died. Keep ticking misses and re-acquire in
				// the background.
				samples = nil
				t.releaseCurrent()
				if !reacquiring {
					reacquiring = true
					go func() {
						src, ch, err := t.selector.Acquire(ctx)
						reacquired <- reacquireResult{src: src, samples: ch, err: err}
					}()
				}
				continue
			}
			latest = &s

		case r := <-reacquired:
			reacquiring = false
			if r.err == nil {
				t.setCurrent(r.src)
				samples = r.samples
			}

		case <-ticker.C:
			if latest != nil {
				t.controller.OnSample(*latest)
				latest = nil
			} else {
				t.controller.OnMissingSample()
				if samples == nil && !reacquiring {
					reacquiring = true
					go func() {
						src, ch, err := t.selector.Acquire(ctx)
						reacquired <- reacquireResult{src: src, samples: ch, err: err}
					}()
				}
			}
		}
	}
}

type reacquireResult struct {
	src     CursorSource
	samples <-chan Sample
	err     error
}

func (t *Tracker) setCurrent(src CursorSource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = src
}

func (t *Tracker) releaseCurrent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		_ = t.current.Close()
		t.current = nil
	}
}

// ChannelSource adapts an externally fed channel (for example cursor
// metadata extracted from capture frames) into a CursorSource.
type ChannelSource struct {
	name    string
	samples chan Sample
	once    sync.Once
}

// NewChannelSource creates a source fed through Feed.
func NewChannelSource(name string, buffer int) *ChannelSource {
	return &ChannelSource{
		name:    name,
		samples: make(chan Sample, buffer),
	}
}

// Name identifies the source in logs.
func (c *ChannelSource) Name() string { return c.name }

// Open returns the sample channel.
func (c *ChannelSource) Open(ctx context.Context) (<-chan Sample, error) {
	return c.samples, nil
}

// Feed delivers a sample; it drops when the buffer is full rather
// than blocking the producer.
func (c *ChannelSource) Feed(s Sample) {
	select {
	case c.samples <- s:
	default:
	}
}

// Close stops the source; Open channels close.
func (c *ChannelSource) Close() error {
	c.once.Do(func() { close(c.samples) })
	return nil
}

// DeltaSource accumulates relative movement deltas from a raw input
// device into absolute positions, the degraded path when no absolute
// cursor capability exists.
type DeltaSource struct {
	name string

	mu   sync.Mutex
	x, y float64
	maxX float64
	maxY float64

	samples chan Sample
	once    sync.Once
}

// NewDeltaSource creates a delta accumulator starting at (x, y),
// clamped to the source bounds.
func NewDeltaSource(name string, startX, startY, maxX, maxY float64) *DeltaSource {
	return &DeltaSource{
		name:    name,
		x:       startX,
		y:       startY,
		maxX:    maxX,
		maxY:    maxY,
		samples: make(chan Sample, 16),
	}
}

// Name identifies the source in logs.
func (d *DeltaSource) Name() string { return d.name }

// Open returns the accumulated-position channel.
func (d *DeltaSource) Open(ctx context.Context) (<-chan Sample, error) {
	return d.samples, nil
}

// AddDelta applies a relative movement and emits the new absolute
// position. The device reader calls this for each REL_X/REL_Y event.
func (d *DeltaSource) AddDelta(dx, dy float64) {
	d.mu.Lock()
	d.x = clampFloat(d.x+dx, 0, d.maxX)
	d.y = clampFloat(d.y+dy, 0, d.maxY)
	s := Sample{X: d.x, Y: d.y}
	d.mu.Unlock()

	select {
	case d.samples <- s:
	default:
	}
}

// Close stops the source.
func (d *DeltaSource) Close() error {
	d.once.Do(func() { close(d.samples) })
	return nil
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
