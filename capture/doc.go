// Package capture negotiates a desktop capture session with the
// platform capture service and exposes the resulting frame stream.
//
// Negotiation is a three-step handshake (create session, select
// sources, start) over an inter-process call channel, each step
// bounded by its own timeout. A successful handshake yields a stream
// node identifier that OpenStream attaches to. When the negotiated
// source is gone for good, FallbackSource provides a degraded
// screenshot-loop capture at a bounded cadence.
package capture
