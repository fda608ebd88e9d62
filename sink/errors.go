package sink

import "errors"

// ErrNegotiationFailed indicates the sink rejected the session
// contract. Not recoverable within the session.
var ErrNegotiationFailed = errors.New("sink contract negotiation failed")
