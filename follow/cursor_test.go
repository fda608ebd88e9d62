package follow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingSource never opens, standing in for an unavailable platform
// capability.
type failingSource struct {
	name  string
	opens int
}

func (f *failingSource) Name() string { return f.name }

func (f *failingSource) Open(ctx context.Context) (<-chan Sample, error) {
	f.opens++
	return nil, errors.New("capability unavailable")
}

func (f *failingSource) Close() error { return nil }

func TestSelector_OrderedFallback(t *testing.T) {
	first := &failingSource{name: "compositor-cursor"}
	second := &failingSource{name: "stream-metadata"}
	third := NewChannelSource("input-device", 4)

	sel := NewSelector(first, second, third)
	src, samples, err := sel.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "input-device", src.Name())
	assert.NotNil(t, samples)
	assert.Equal(t, 1, first.opens, "higher-priority sources tried first")
	assert.Equal(t, 1, second.opens)
}

func TestSelector_AllSourcesFail(t *testing.T) {
	sel := NewSelector(&failingSource{name: "a"}, &failingSource{name: "b"})
	_, _, err := sel.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNoCursorSource)
}

func TestChannelSource_FeedDropsWhenFull(t *testing.T) {
	src := NewChannelSource("test", 1)
	src.Feed(Sample{X: 1})
	src.Feed(Sample{X: 2}) // Buffer full; dropped, not blocked.

	samples, err := src.Open(context.Background())
	require.NoError(t, err)
	s := <-samples
	assert.Equal(t, float64(1), s.X)
	select {
	case <-samples:
		t.Fatal("second sample should have been dropped")
	default:
	}
}

func TestDeltaSource_AccumulatesAndClamps(t *testing.T) {
	src := NewDeltaSource("evdev", 100, 100, 1920, 1080)
	samples, err := src.Open(context.Background())
	require.NoError(t, err)

	src.AddDelta(50, -30)
	s := <-samples
	assert.Equal(t, Sample{X: 150, Y: 70}, s)

	src.AddDelta(-10000, 10000)
	s = <-samples
	assert.Equal(t, Sample{X: 0, Y: 1080}, s, "position clamps to source bounds")
}

func TestTracker_DrivesControllerToLost(t *testing.T) {
	cfg := testConfig()
	cfg.LostAfter = 3
	c, err := NewController(cfg)
	require.NoError(t, err)

	// Source opens but never produces samples.
	silent := NewChannelSource("silent", 1)
	tracker, err := NewTracker(c, NewSelector(silent), 5*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go func() { _ = tracker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return c.State() == StateLost
	}, 400*time.Millisecond, 5*time.Millisecond)
}

func TestTracker_ForwardsSamples(t *testing.T) {
	cfg := testConfig()
	cfg.Smoothing = 1
	c, err := NewController(cfg)
	require.NoError(t, err)

	src := NewChannelSource("meta", 8)
	tracker, err := NewTracker(c, NewSelector(src), 5*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go func() { _ = tracker.Run(ctx) }()

	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				src.Feed(Sample{X: 1500, Y: 900})
			}
		}
	}()

	require.Eventually(t, func() bool {
		tx, ty := c.Target()
		return tx == 1500 && ty == 900
	}, 400*time.Millisecond, 5*time.Millisecond)
}

func TestNewTracker_Validation(t *testing.T) {
	c, err := NewController(testConfig())
	require.NoError(t, err)
	sel := NewSelector()

	_, err = NewTracker(nil, sel, time.Millisecond)
	assert.Error(t, err)
	_, err = NewTracker(c, nil, time.Millisecond)
	assert.Error(t, err)
	_, err = NewTracker(c, sel, 0)
	assert.Error(t, err)
}
