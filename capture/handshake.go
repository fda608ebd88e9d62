package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultStepTimeout bounds each individual handshake step. The
// select-sources step typically waits on a user consent dialog, so
// the bound is generous.
const DefaultStepTimeout = 15 * time.Second

// CursorMode selects how the cursor appears in captured frames.
type CursorMode uint8

const (
	// CursorHidden omits the cursor entirely.
	CursorHidden CursorMode = 1
	// CursorEmbedded paints the cursor into the frames.
	CursorEmbedded CursorMode = 2
	// CursorMetadata delivers cursor position as stream metadata,
	// leaving the frames clean.
	CursorMetadata CursorMode = 4
)

// String returns the wire name of the cursor mode.
func (m CursorMode) String() string {
	switch m {
	case CursorHidden:
		return "hidden"
	case CursorEmbedded:
		return "embedded"
	case CursorMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("CursorMode(%d)", uint8(m))
	}
}

// CallConn is the inter-process call channel to the capture service.
// Implementations wrap whatever IPC the platform provides.
type CallConn interface {
	// Call invokes one method and blocks for the response. A service
	// refusal surfaces as an error; timeouts and cancellation flow
	// through ctx.
	Call(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error)
}

// Negotiator drives the three-step capture handshake.
type Negotiator struct {
	conn        CallConn
	stepTimeout time.Duration
	// cursorPrefs is the ordered cursor mode preference sent to the
	// service; the service picks the first mode it supports.
	cursorPrefs []CursorMode
}

// NewNegotiator creates a negotiator. Zero stepTimeout selects
// DefaultStepTimeout; the default cursor preference is metadata over
// embedded over hidden.
func NewNegotiator(conn CallConn, stepTimeout time.Duration) (*Negotiator, error) {
	if conn == nil {
		return nil, errors.New("call connection cannot be nil")
	}
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &Negotiator{
		conn:        conn,
		stepTimeout: stepTimeout,
		cursorPrefs: []CursorMode{CursorMetadata, CursorEmbedded, CursorHidden},
	}, nil
}

// Negotiate runs create-session, select-sources and start, each step
// under its own timeout. The returned session is Started on success
// and carries the stream node ID.
func (n *Negotiator) Negotiate(ctx context.Context) (*Session, error) {
	session := newSession()

	logrus.WithFields(logrus.Fields{
		"function": "Negotiator.Negotiate",
		"handle":   session.Handle,
	}).Info("Starting capture handshake")

	if _, err := n.step(ctx, "CreateSession", map[string]interface{}{
		"session_handle": session.Handle,
	}); err != nil {
		session.setState(StateFailed)
		return nil, fmt.Errorf("create session: %w", err)
	}

	modes := make([]string, len(n.cursorPrefs))
	for i, m := range n.cursorPrefs {
		modes[i] = m.String()
	}
	resp, err := n.step(ctx, "SelectSources", map[string]interface{}{
		"session_handle": session.Handle,
		"types":          "monitor",
		"cursor_modes":   modes,
	})
	if err != nil {
		session.setState(StateFailed)
		return nil, fmt.Errorf("select sources: %w", err)
	}
	session.CursorMode = parseCursorMode(resp["cursor_mode"])
	session.setState(StateSourcesSelected)

	resp, err = n.step(ctx, "Start", map[string]interface{}{
		"session_handle": session.Handle,
	})
	if err != nil {
		session.setState(StateFailed)
		return nil, fmt.Errorf("start: %w", err)
	}

	nodeID, ok := parseNodeID(resp["node_id"])
	if !ok {
		session.setState(StateFailed)
		return nil, fmt.Errorf("%w: start response carried no stream node", ErrStreamUnavailable)
	}
	session.NodeID = nodeID
	session.setState(StateStarted)

	logrus.WithFields(logrus.Fields{
		"function":    "Negotiator.Negotiate",
		"handle":      session.Handle,
		"node_id":     nodeID,
		"cursor_mode": session.CursorMode.String(),
	}).Info("Capture handshake complete")

	return session, nil
}

// step runs one handshake call under the per-step timeout and maps
// transport-level failures onto the handshake error taxonomy.
func (n *Negotiator) step(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
	stepCtx, cancel := context.WithTimeout(ctx, n.stepTimeout)
	defer cancel()

	resp, err := n.conn.Call(stepCtx, method, args)
	if err == nil {
		return resp, nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Negotiator.step",
		"method":   method,
		"error":    err.Error(),
	}).Warn("Capture handshake step failed")

	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		return nil, ErrHandshakeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return nil, ErrHandshakeTimeout
	case errors.Is(err, context.Canceled):
		return nil, ErrHandshakeCancelled
	default:
		return nil, fmt.Errorf("%w: %v", ErrHandshakeDenied, err)
	}
}

func parseCursorMode(v interface{}) CursorMode {
	s, _ := v.(string)
	switch s {
	case "metadata":
		return CursorMetadata
	case "embedded":
		return CursorEmbedded
	default:
		return CursorHidden
	}
}

func parseNodeID(v interface{}) (uint32, bool) {
	switch id := v.(type) {
	case uint32:
		return id, true
	case int:
		if id < 0 {
			return 0, false
		}
		return uint32(id), true
	case uint64:
		return uint32(id), true
	case float64:
		if id < 0 {
			return 0, false
		}
		return uint32(id), true
	default:
		return 0, false
	}
}
