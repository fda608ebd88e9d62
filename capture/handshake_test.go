package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedConn replays canned responses per method.
type scriptedConn struct {
	responses map[string]map[string]interface{}
	errors    map[string]error
	calls     []string
	lastArgs  map[string]map[string]interface{}
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		responses: make(map[string]map[string]interface{}),
		errors:    make(map[string]error),
		lastArgs:  make(map[string]map[string]interface{}),
	}
}

func (c *scriptedConn) Call(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
	c.calls = append(c.calls, method)
	c.lastArgs[method] = args
	if err := c.errors[method]; err != nil {
		return nil, err
	}
	return c.responses[method], nil
}

// blockingConn never answers, forcing the step timeout.
type blockingConn struct{}

func (blockingConn) Call(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestNegotiator_Success(t *testing.T) {
	conn := newScriptedConn()
	conn.responses["SelectSources"] = map[string]interface{}{"cursor_mode": "metadata"}
	conn.responses["Start"] = map[string]interface{}{"node_id": 42}

	n, err := NewNegotiator(conn, time.Second)
	require.NoError(t, err)

	session, err := n.Negotiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateSession", "SelectSources", "Start"}, conn.calls)
	assert.Equal(t, StateStarted, session.State())
	assert.Equal(t, uint32(42), session.NodeID)
	assert.Equal(t, CursorMetadata, session.CursorMode)
	assert.NotEmpty(t, session.Handle)

	// Cursor preference travels with select-sources, best mode first.
	modes, ok := conn.lastArgs["SelectSources"]["cursor_modes"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"metadata", "embedded", "hidden"}, modes)
}

func TestNegotiator_DeniedBeforeTimeout(t *testing.T) {
	conn := newScriptedConn()
	conn.errors["SelectSources"] = errors.New("user dismissed the dialog")

	n, err := NewNegotiator(conn, time.Hour)
	require.NoError(t, err)

	start := time.Now()
	_, err = n.Negotiate(context.Background())
	assert.ErrorIs(t, err, ErrHandshakeDenied)
	assert.Less(t, time.Since(start), time.Second, "denial must not wait out the step timeout")
}

func TestNegotiator_StepTimeout(t *testing.T) {
	n, err := NewNegotiator(blockingConn{}, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = n.Negotiate(context.Background())
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
}

func TestNegotiator_Cancelled(t *testing.T) {
	n, err := NewNegotiator(blockingConn{}, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = n.Negotiate(ctx)
	assert.ErrorIs(t, err, ErrHandshakeCancelled)
}

func TestNegotiator_MissingNodeID(t *testing.T) {
	conn := newScriptedConn()
	conn.responses["Start"] = map[string]interface{}{}

	n, err := NewNegotiator(conn, time.Second)
	require.NoError(t, err)

	_, err = n.Negotiate(context.Background())
	assert.ErrorIs(t, err, ErrStreamUnavailable)
}

func TestNegotiator_CursorModeFallsBackToHidden(t *testing.T) {
	conn := newScriptedConn()
	conn.responses["Start"] = map[string]interface{}{"node_id": 7}

	n, err := NewNegotiator(conn, time.Second)
	require.NoError(t, err)

	session, err := n.Negotiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CursorHidden, session.CursorMode, "absent cursor mode means hidden")
}

func TestNewNegotiator_Validation(t *testing.T) {
	_, err := NewNegotiator(nil, time.Second)
	assert.Error(t, err)
}
