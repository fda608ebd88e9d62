package rtp

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/viewcast/video"
)

// DefaultJitterLatency is the reorder window applied to incoming
// media. Small enough to stay imperceptible, large enough to absorb
// typical LAN reordering.
const DefaultJitterLatency = 25 * time.Millisecond

// Depacketizer turns raw incoming RTP datagrams back into encoded
// video units: unmarshal, SSRC lock, jitter-buffer reorder, fragment
// reassembly.
type Depacketizer struct {
	mu           sync.Mutex
	expectedSSRC uint32
	hasSSRC      bool
	jitter       *JitterBuffer
	assembler    *Assembler
}

// NewDepacketizer creates a depacketizer. Zero latency selects
// DefaultJitterLatency; a nil clock selects the wall clock.
func NewDepacketizer(latency time.Duration, clock TimeProvider) *Depacketizer {
	if latency <= 0 {
		latency = DefaultJitterLatency
	}
	logrus.WithFields(logrus.Fields{
		"function": "NewDepacketizer",
		"latency":  latency.String(),
	}).Info("Video depacketizer created")
	return &Depacketizer{
		jitter:    NewJitterBuffer(latency, clock),
		assembler: NewAssembler(),
	}
}

// ProcessPacket ingests one raw RTP datagram. The first SSRC seen
// locks the stream; packets from other sources are rejected.
func (d *Depacketizer) ProcessPacket(rtpData []byte) error {
	packet := &rtp.Packet{}
	if err := packet.Unmarshal(rtpData); err != nil {
		return fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasSSRC {
		d.expectedSSRC = packet.SSRC
		d.hasSSRC = true
		logrus.WithFields(logrus.Fields{
			"function": "Depacketizer.ProcessPacket",
			"ssrc":     packet.SSRC,
		}).Info("Locked onto media stream")
	} else if packet.SSRC != d.expectedSSRC {
		return fmt.Errorf("%w: expected %d, got %d", ErrUnexpectedSSRC, d.expectedSSRC, packet.SSRC)
	}

	d.jitter.Add(packet)
	return nil
}

// Drain releases every unit whose fragments are deliverable now.
func (d *Depacketizer) Drain() []*video.Unit {
	d.mu.Lock()
	defer d.mu.Unlock()

	var units []*video.Unit
	for {
		packet := d.jitter.Pop()
		if packet == nil {
			return units
		}
		unit, err := d.assembler.Push(packet)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Depacketizer.Drain",
				"sequence": packet.SequenceNumber,
				"error":    err.Error(),
			}).Warn("Dropping malformed fragment")
			continue
		}
		if unit != nil {
			units = append(units, unit)
		}
	}
}

// LatePackets returns the count of packets dropped for missing their
// delivery window.
func (d *Depacketizer) LatePackets() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.jitter.Late()
}

// DiscardedUnits returns the count of partial units abandoned on
// fragment loss.
func (d *Depacketizer) DiscardedUnits() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.assembler.Discarded()
}
