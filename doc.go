// Package viewcast streams a moving rectangular crop of a desktop
// screen to a remote process that exposes it as a local video source.
//
// The sending pipeline negotiates a capture session, tracks the
// cursor to move the crop viewport, crops and encodes frames, and
// ships them as RTP fragments over unreliable datagrams. The
// receiving pipeline reorders and reassembles the fragments, decodes
// them, and writes frames to a preview or virtual-device sink.
//
// The Supervisor in this package owns the stage goroutines, restarts
// transiently failed stages with exponential backoff, switches the
// capture stage to a degraded screenshot fallback when the negotiated
// stream is gone for good, and aggregates per-session statistics.
package viewcast
