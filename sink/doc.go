// Package sink delivers decoded frames to their final consumer: an
// in-process preview callback or a virtual video device file.
//
// Each sink negotiates a Contract (dimensions, frame rate, pixel
// format) exactly once per session. The output stage converts decoded
// frames to the contract format when they differ; the sink itself is
// never renegotiated mid-session.
package sink
