// Package rtp frames encoded video units as RTP packets for datagram
// transport, and reassembles them on the receiving side.
//
// Units larger than the path MTU are split into fragments. Each
// fragment carries a one-byte descriptor (start flag, key flag) and
// the unit's picture ID so the receiver can detect unit boundaries
// and drop partial units cleanly. The marker bit is set on the last
// fragment of a unit.
//
// Incoming packets pass through a jitter buffer that restores
// sequence order within a fixed latency bound; packets arriving after
// their slot has been released are counted and dropped rather than
// delivered out of order.
package rtp
