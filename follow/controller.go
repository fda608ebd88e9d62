package follow

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// State is the follow controller's lifecycle state.
type State uint8

const (
	// StateIdle streams a fixed crop with no tracking.
	StateIdle State = iota
	// StateTracking follows the smoothed cursor target.
	StateTracking
	// StateLost means the cursor source went silent; the viewport is
	// frozen at the last target until samples return.
	StateLost
	// StateStopped is terminal.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateTracking:
		return "Tracking"
	case StateLost:
		return "Lost"
	case StateStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Rect is the viewport rectangle inside the source frame.
//
// Width and height are fixed for the session; only the origin moves.
// The controller is the rectangle's only writer; every other stage
// reads snapshots.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Sample is one cursor position in source pixel coordinates.
type Sample struct {
	X float64
	Y float64
}

// Config carries the controller tuning parameters.
type Config struct {
	// SourceWidth/SourceHeight bound the viewport.
	SourceWidth  int
	SourceHeight int

	// Viewport is the initial rectangle. In follow mode its center
	// seeds the tracking target; in idle mode it never moves.
	Viewport Rect

	// Follow enables cursor tracking.
	Follow bool

	// DeadzoneRadius ignores cursor movement closer than this many
	// pixels to the current target.
	DeadzoneRadius float64

	// Smoothing divides each movement step; 1 snaps instantly.
	Smoothing float64

	// LostAfter is the number of consecutive missing samples that
	// transition Tracking to Lost.
	LostAfter int
}

// Controller computes the current viewport rectangle.
//
// All methods are safe for concurrent use, but samples must arrive
// from a single goroutine for the output sequence to be meaningful.
type Controller struct {
	mu sync.RWMutex

	cfg     Config
	state   State
	targetX float64 // Smoothed center.
	targetY float64
	rect    Rect
	missing int
}

// NewController validates the configuration and builds a controller.
//
// The initial state is Tracking when follow is enabled and Idle
// otherwise. The configured viewport must fit inside the source
// bounds; when both a static rectangle and follow mode are given, the
// rectangle seeds the initial target and follow mode takes over.
func NewController(cfg Config) (*Controller, error) {
	if cfg.SourceWidth <= 0 || cfg.SourceHeight <= 0 {
		return nil, fmt.Errorf("invalid source bounds %dx%d", cfg.SourceWidth, cfg.SourceHeight)
	}
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		return nil, fmt.Errorf("invalid viewport size %dx%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	if cfg.Viewport.Width > cfg.SourceWidth || cfg.Viewport.Height > cfg.SourceHeight {
		return nil, fmt.Errorf("viewport %dx%d larger than source %dx%d",
			cfg.Viewport.Width, cfg.Viewport.Height, cfg.SourceWidth, cfg.SourceHeight)
	}
	if cfg.Smoothing < 1 {
		return nil, fmt.Errorf("smoothing %v must be >= 1", cfg.Smoothing)
	}
	if cfg.DeadzoneRadius < 0 {
		return nil, fmt.Errorf("deadzone radius %v must be >= 0", cfg.DeadzoneRadius)
	}
	if cfg.LostAfter <= 0 {
		cfg.LostAfter = 10
	}

	state := StateIdle
	if cfg.Follow {
		state = StateTracking
	}

	c := &Controller{
		cfg:     cfg,
		state:   state,
		targetX: float64(cfg.Viewport.X) + float64(cfg.Viewport.Width)/2,
		targetY: float64(cfg.Viewport.Y) + float64(cfg.Viewport.Height)/2,
	}
	c.rect = c.clampedRect()

	logrus.WithFields(logrus.Fields{
		"function":  "NewController",
		"state":     state.String(),
		"viewport":  fmt.Sprintf("%dx%d@%d,%d", cfg.Viewport.Width, cfg.Viewport.Height, c.rect.X, c.rect.Y),
		"deadzone":  cfg.DeadzoneRadius,
		"smoothing": cfg.Smoothing,
	}).Info("Follow controller created")

	return c, nil
}

// OnSample feeds one cursor sample into the state machine.
//
// Movements inside the deadzone leave the viewport untouched. A
// sample while Lost recovers to Tracking. Samples in Idle or Stopped
// are ignored.
func (c *Controller) OnSample(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateIdle, StateStopped:
		return
	case StateLost:
		c.state = StateTracking
		c.missing = 0
		logrus.WithFields(logrus.Fields{
			"function": "Controller.OnSample",
			"state":    c.state.String(),
		}).Info("Cursor samples resumed, tracking restored")
	case StateTracking:
		c.missing = 0
	}

	dx := s.X - c.targetX
	dy := s.Y - c.targetY
	if math.Hypot(dx, dy) < c.cfg.DeadzoneRadius {
		return
	}

	c.targetX += dx / c.cfg.Smoothing
	c.targetY += dy / c.cfg.Smoothing
	c.rect = c.clampedRect()
}

// OnMissingSample records a sample interval with no cursor data.
//
// After LostAfter consecutive misses the controller freezes the last
// target and transitions to Lost; it never recenters.
func (c *Controller) OnMissingSample() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateTracking {
		return
	}
	c.missing++
	if c.missing >= c.cfg.LostAfter {
		c.state = StateLost
		logrus.WithFields(logrus.Fields{
			"function":       "Controller.OnMissingSample",
			"missed_samples": c.missing,
		}).Warn("Cursor source silent, freezing viewport")
	}
}

// Stop moves the controller to its terminal state.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateStopped
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Viewport returns a snapshot of the current rectangle.
func (c *Controller) Viewport() Rect {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rect
}

// Target returns the smoothed center point.
func (c *Controller) Target() (x, y float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.targetX, c.targetY
}

// clampedRect centers the viewport on the target and clamps the
// origin so the rectangle stays inside the source bounds. Width and
// height never change.
func (c *Controller) clampedRect() Rect {
	w := c.cfg.Viewport.Width
	h := c.cfg.Viewport.Height
	maxX := c.cfg.SourceWidth - w
	maxY := c.cfg.SourceHeight - h

	x := int(math.Round(c.targetX - float64(w)/2))
	y := int(math.Round(c.targetY - float64(h)/2))
	if x < 0 {
		x = 0
	} else if x > maxX {
		x = maxX
	}
	if y < 0 {
		y = 0
	} else if y > maxY {
		y = maxY
	}
	return Rect{X: x, Y: y, Width: w, Height: h}
}
