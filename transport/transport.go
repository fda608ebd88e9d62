package transport

import "net"

// PacketHandler processes one incoming packet. Handlers run on their
// own goroutine and must not retain the packet's Data slice.
type PacketHandler func(packet *Packet, addr net.Addr) error

// Transport abstracts the datagram layer so the pipeline can run over
// plain UDP, Noise-wrapped UDP, or an in-process loopback in tests.
type Transport interface {
	// Send transmits a packet to the given address. Delivery is best
	// effort: no acknowledgement, no retransmission, no ordering.
	Send(packet *Packet, addr net.Addr) error

	// RegisterHandler sets the handler for a packet type, replacing
	// any previous handler.
	RegisterHandler(packetType PacketType, handler PacketHandler)

	// LocalAddr returns the bound local address.
	LocalAddr() net.Addr

	// Overhead reports the framing bytes this transport adds around a
	// packet payload. Senders budget it against the path MTU.
	Overhead() int

	// Close shuts the transport down and stops the read loop.
	Close() error
}
