package rtp

import (
	"sync"
	"time"

	"github.com/pion/rtp"
)

// JitterBuffer restores sequence order over an unordered datagram
// path within a fixed latency bound.
//
// Packets are held until they are next in sequence or until the head
// of the buffer has aged past the latency bound, at which point the
// gap is abandoned and delivery resumes from the oldest held packet.
// Packets arriving for sequence slots already released are counted as
// late and dropped; delivering them out of order would corrupt unit
// reassembly downstream.
type JitterBuffer struct {
	mu      sync.Mutex
	latency time.Duration
	clock   TimeProvider

	entries []jitterEntry
	nextSeq uint16
	started bool
	late    uint64
}

type jitterEntry struct {
	packet  *rtp.Packet
	arrived time.Time
}

// NewJitterBuffer creates a buffer with the given latency bound.
// A nil clock selects the wall clock.
func NewJitterBuffer(latency time.Duration, clock TimeProvider) *JitterBuffer {
	if clock == nil {
		clock = NewRealTimeProvider()
	}
	return &JitterBuffer{latency: latency, clock: clock}
}

// Add inserts a packet in sequence position. It returns false when the
// packet arrived too late to be delivered in order.
func (jb *JitterBuffer) Add(packet *rtp.Packet) bool {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if jb.started && seqDelta(packet.SequenceNumber, jb.nextSeq) < 0 {
		jb.late++
		return false
	}

	entry := jitterEntry{packet: packet, arrived: jb.clock.Now()}
	pos := len(jb.entries)
	for i, e := range jb.entries {
		d := seqDelta(packet.SequenceNumber, e.packet.SequenceNumber)
		if d == 0 {
			// Duplicate datagram.
			return true
		}
		if d < 0 {
			pos = i
			break
		}
	}

	jb.entries = append(jb.entries, jitterEntry{})
	copy(jb.entries[pos+1:], jb.entries[pos:])
	jb.entries[pos] = entry
	return true
}

// Pop releases the next packet, or nil when nothing is deliverable
// yet. Contiguous packets release immediately once the stream has
// started; a gap at the head releases only after the latency bound.
func (jb *JitterBuffer) Pop() *rtp.Packet {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if len(jb.entries) == 0 {
		return nil
	}
	head := jb.entries[0]
	aged := jb.clock.Now().Sub(head.arrived) >= jb.latency

	if !jb.started {
		if !aged {
			return nil
		}
		jb.started = true
		jb.nextSeq = head.packet.SequenceNumber
	}

	if head.packet.SequenceNumber != jb.nextSeq {
		if !aged {
			return nil
		}
		// Gap abandoned; resume from the oldest held packet.
		jb.nextSeq = head.packet.SequenceNumber
	}

	jb.entries = jb.entries[1:]
	jb.nextSeq = head.packet.SequenceNumber + 1
	return head.packet
}

// Len returns the number of buffered packets.
func (jb *JitterBuffer) Len() int {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return len(jb.entries)
}

// Late returns the count of packets dropped for arriving after their
// delivery slot was released.
func (jb *JitterBuffer) Late() uint64 {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.late
}

// seqDelta returns the signed distance from b to a in sequence space,
// treating wraparound correctly.
func seqDelta(a, b uint16) int {
	return int(int16(a - b))
}
