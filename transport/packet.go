package transport

import (
	"errors"
	"fmt"
)

// PacketType identifies the type of a viewcast datagram.
type PacketType byte

const (
	// PacketVideoData carries one RTP-framed media fragment.
	PacketVideoData PacketType = iota + 1
	// PacketKeepAlive keeps NAT bindings warm between media bursts.
	PacketKeepAlive
	// PacketStatsReport carries a receiver-side statistics snapshot.
	PacketStatsReport

	// PacketNoiseHandshake carries Noise-IK handshake messages.
	PacketNoiseHandshake PacketType = 250
	// PacketNoiseMessage carries an encrypted inner packet.
	PacketNoiseMessage PacketType = 251
)

// Packet represents one framed datagram.
type Packet struct {
	PacketType PacketType
	Data       []byte
}

// Serialize converts a packet to a byte slice for transmission.
//
// Format: [packet type (1 byte)][data (variable length)].
func (p *Packet) Serialize() ([]byte, error) {
	if p.Data == nil {
		return nil, errors.New("packet data is nil")
	}
	result := make([]byte, 1+len(p.Data))
	result[0] = byte(p.PacketType)
	copy(result[1:], p.Data)
	return result, nil
}

// ParsePacket converts a received byte slice into a Packet.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("packet too short: %d bytes", len(data))
	}
	return &Packet{
		PacketType: PacketType(data[0]),
		Data:       data[1:],
	}, nil
}
