// Package transport implements the datagram layer under the viewcast
// pipeline.
//
// Datagrams are framed as a one-byte packet type followed by the
// payload and travel over an unordered, unacknowledged, and
// unretransmitted UDP socket. Incoming packets are dispatched to
// handlers registered per packet type; the read loop uses short
// deadlines so context cancellation is honored promptly.
//
// NoiseTransport optionally wraps the base transport with Noise-IK
// encryption. Media datagrams carry an explicit nonce so decryption
// survives the loss and reordering the rest of the pipeline is built
// to tolerate.
package transport
