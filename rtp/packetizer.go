package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/viewcast/transport"
	"github.com/opd-ai/viewcast/video"
)

const (
	// PayloadType is the dynamic RTP payload type for viewcast video.
	PayloadType = 96

	// DefaultMTU is the conservative path MTU assumed when none is
	// configured, leaving headroom for IP and UDP headers.
	DefaultMTU = 1200

	// rtpHeaderSize is the fixed RTP header without extensions.
	rtpHeaderSize = 12

	// fragmentHeaderSize is the per-fragment descriptor:
	// [flags(1)][picture_id(2)], big-endian.
	fragmentHeaderSize = 3

	descriptorStart = 0x80
	descriptorKey   = 0x40
)

// Packetizer splits encoded video units into RTP packets under the
// path MTU and sends them over the transport.
type Packetizer struct {
	mu         sync.Mutex
	ssrc       uint32
	sequence   uint16
	mtu        int
	overhead   int
	transport  transport.Transport
	remoteAddr net.Addr
	sent       uint64
}

// NewPacketizer creates a packetizer with a random SSRC. mtu bounds
// the full datagram; zero selects DefaultMTU.
func NewPacketizer(mtu int, tr transport.Transport, remoteAddr net.Addr) (*Packetizer, error) {
	if tr == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if remoteAddr == nil {
		return nil, fmt.Errorf("remote address cannot be nil")
	}
	if mtu == 0 {
		mtu = DefaultMTU
	}
	// The transport's own framing counts against the MTU; an encrypted
	// wrapper costs more than plain UDP.
	overhead := tr.Overhead()
	if mtu <= rtpHeaderSize+fragmentHeaderSize+overhead {
		return nil, fmt.Errorf("mtu %d leaves no room for payload", mtu)
	}

	ssrcBytes := make([]byte, 4)
	if _, err := rand.Read(ssrcBytes); err != nil {
		return nil, fmt.Errorf("failed to generate SSRC: %w", err)
	}

	p := &Packetizer{
		ssrc:       binary.BigEndian.Uint32(ssrcBytes),
		mtu:        mtu,
		overhead:   overhead,
		transport:  tr,
		remoteAddr: remoteAddr,
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewPacketizer",
		"ssrc":        p.ssrc,
		"mtu":         mtu,
		"overhead":    overhead,
		"remote_addr": remoteAddr.String(),
	}).Info("Video packetizer created")

	return p, nil
}

// PacketizeAndSend fragments one encoded unit and transmits all
// fragments. The marker bit is set on the last fragment.
func (p *Packetizer) PacketizeAndSend(unit *video.Unit) error {
	if unit == nil || len(unit.Payload) == 0 {
		return fmt.Errorf("unit payload cannot be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	maxChunk := p.mtu - rtpHeaderSize - fragmentHeaderSize - p.overhead
	payload := unit.Payload

	for offset := 0; offset < len(payload); {
		end := offset + maxChunk
		if end > len(payload) {
			end = len(payload)
		}
		first := offset == 0
		last := end == len(payload)

		fragment := make([]byte, fragmentHeaderSize+end-offset)
		var flags byte
		if first {
			flags |= descriptorStart
		}
		if unit.IsKey() {
			flags |= descriptorKey
		}
		fragment[0] = flags
		binary.BigEndian.PutUint16(fragment[1:3], unit.PictureID)
		copy(fragment[fragmentHeaderSize:], payload[offset:end])

		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         last,
				PayloadType:    PayloadType,
				SequenceNumber: p.sequence,
				Timestamp:      unit.Timestamp,
				SSRC:           p.ssrc,
			},
			Payload: fragment,
		}

		rtpData, err := packet.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal RTP packet: %w", err)
		}

		err = p.transport.Send(&transport.Packet{
			PacketType: transport.PacketVideoData,
			Data:       rtpData,
		}, p.remoteAddr)
		if err != nil {
			return fmt.Errorf("failed to send video fragment: %w", err)
		}

		p.sequence++
		p.sent++
		offset = end
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Packetizer.PacketizeAndSend",
		"picture_id": unit.PictureID,
		"unit_size":  len(payload),
		"key":        unit.IsKey(),
	}).Debug("Video unit packetized")

	return nil
}

// PacketsSent returns the number of RTP packets transmitted.
func (p *Packetizer) PacketsSent() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}
