package rtp

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/viewcast/video"
)

// Assembler rebuilds encoded units from sequence-ordered fragments.
//
// A unit is complete when its fragments run contiguously from a start
// descriptor to a marker bit. Any discontinuity (sequence gap, picture
// ID change, unexpected start) discards the partial unit; the decoder
// recovers at the next key unit.
type Assembler struct {
	buf       []byte
	pictureID uint16
	key       bool
	lastSeq   uint16
	active    bool
	discarded uint64
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Push consumes one ordered fragment and returns a completed unit
// when the fragment carried the marker bit, nil otherwise.
func (a *Assembler) Push(packet *rtp.Packet) (*video.Unit, error) {
	if len(packet.Payload) < fragmentHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedFragment, len(packet.Payload))
	}

	flags := packet.Payload[0]
	pictureID := binary.BigEndian.Uint16(packet.Payload[1:3])
	chunk := packet.Payload[fragmentHeaderSize:]

	if flags&descriptorStart != 0 {
		if a.active {
			a.discard("new unit started mid-assembly")
		}
		a.buf = append(a.buf[:0], chunk...)
		a.pictureID = pictureID
		a.key = flags&descriptorKey != 0
		a.lastSeq = packet.SequenceNumber
		a.active = true
	} else {
		if !a.active {
			// Continuation without a start; the head of this unit was
			// lost. Ignore until the next start fragment.
			return nil, nil
		}
		if packet.SequenceNumber != a.lastSeq+1 || pictureID != a.pictureID {
			a.discard("fragment discontinuity")
			return nil, nil
		}
		a.buf = append(a.buf, chunk...)
		a.lastSeq = packet.SequenceNumber
	}

	if !packet.Marker {
		return nil, nil
	}

	unit := &video.Unit{
		PictureID: a.pictureID,
		Timestamp: packet.Timestamp,
		Payload:   append([]byte(nil), a.buf...),
	}
	if a.key {
		unit.Type = video.UnitKey
	} else {
		unit.Type = video.UnitDelta
	}
	if len(unit.Payload) >= 7 {
		unit.Width = int(binary.BigEndian.Uint16(unit.Payload[3:5]))
		unit.Height = int(binary.BigEndian.Uint16(unit.Payload[5:7]))
	}

	a.active = false
	a.buf = a.buf[:0]
	return unit, nil
}

// Discarded returns the count of partial units dropped on
// discontinuities.
func (a *Assembler) Discarded() uint64 {
	return a.discarded
}

func (a *Assembler) discard(reason string) {
	logrus.WithFields(logrus.Fields{
		"function":   "Assembler.Push",
		"picture_id": a.pictureID,
		"reason":     reason,
	}).Debug("Discarding partial video unit")
	a.active = false
	a.buf = a.buf[:0]
	a.discarded++
}
