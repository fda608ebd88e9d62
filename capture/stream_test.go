package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/viewcast/video"
)

// channelOpener serves frames from a prepared channel.
type channelOpener struct {
	frames  chan *video.Frame
	failure error
	gotNode uint32
}

func (o *channelOpener) Open(ctx context.Context, nodeID uint32) (<-chan *video.Frame, error) {
	o.gotNode = nodeID
	if o.failure != nil {
		return nil, o.failure
	}
	return o.frames, nil
}

func successConn() *scriptedConn {
	conn := newScriptedConn()
	conn.responses["SelectSources"] = map[string]interface{}{"cursor_mode": "embedded"}
	conn.responses["Start"] = map[string]interface{}{"node_id": 55}
	return conn
}

func TestSource_ForwardsFrames(t *testing.T) {
	n, err := NewNegotiator(successConn(), time.Second)
	require.NoError(t, err)
	opener := &channelOpener{frames: make(chan *video.Frame, 4)}
	src, err := NewSource(n, opener)
	require.NoError(t, err)

	out := make(chan *video.Frame, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	frame := video.NewRGBAFrame(8, 8)
	opener.frames <- frame

	select {
	case got := <-out:
		assert.Same(t, frame, got)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not forwarded")
	}
	assert.Equal(t, uint32(55), opener.gotNode, "opener attached to the negotiated node")
	require.NotNil(t, src.Session())
	assert.Equal(t, StateStarted, src.Session().State())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSource_StreamCloseIsInterruption(t *testing.T) {
	n, err := NewNegotiator(successConn(), time.Second)
	require.NoError(t, err)
	opener := &channelOpener{frames: make(chan *video.Frame)}
	src, err := NewSource(n, opener)
	require.NoError(t, err)

	out := make(chan *video.Frame, 1)
	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background(), out) }()

	time.Sleep(20 * time.Millisecond)
	close(opener.frames)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStreamInterrupted)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return on stream close")
	}
}

func TestSource_CountsStreamRestarts(t *testing.T) {
	n, err := NewNegotiator(successConn(), time.Second)
	require.NoError(t, err)
	opener := &channelOpener{frames: make(chan *video.Frame)}
	src, err := NewSource(n, opener)
	require.NoError(t, err)

	// Each run ends with the stream closing under a live context.
	for i := 0; i < 3; i++ {
		close(opener.frames)
		err = src.Run(context.Background(), make(chan *video.Frame, 1))
		require.ErrorIs(t, err, ErrStreamInterrupted)
		assert.Equal(t, i, src.Session().Restarts(), "run %d", i)
		opener.frames = make(chan *video.Frame)
	}
}

func TestSource_OpenFailure(t *testing.T) {
	n, err := NewNegotiator(successConn(), time.Second)
	require.NoError(t, err)
	opener := &channelOpener{failure: errors.New("node gone")}
	src, err := NewSource(n, opener)
	require.NoError(t, err)

	err = src.Run(context.Background(), make(chan *video.Frame, 1))
	assert.ErrorIs(t, err, ErrStreamUnavailable)
	assert.Equal(t, StateFailed, src.Session().State())
}

func TestNewSource_Validation(t *testing.T) {
	n, err := NewNegotiator(successConn(), time.Second)
	require.NoError(t, err)

	_, err = NewSource(nil, &channelOpener{})
	assert.Error(t, err)
	_, err = NewSource(n, nil)
	assert.Error(t, err)
}
