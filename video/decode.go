package video

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Decoder rebuilds raw I420 frames from bitstream units.
//
// A delta unit arriving before any key unit (or after a discarded
// corrupt unit invalidated the reference) is rejected with
// ErrCorruptUnit; the caller skips ahead until the next key unit.
// Corrupt units are never fatal to the session.
type Decoder struct {
	haveRef bool
	lastPic uint16
	refY    []byte
	refU    []byte
	refV    []byte
	width   int
	height  int
}

// NewDecoder creates a decoder with no reference state. The first
// decodable unit must be a key unit.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode turns one bitstream unit into an I420 frame.
//
// Returns ErrCorruptUnit for malformed payloads and for delta units
// without a valid reference. The decoder invalidates its reference on
// corruption so that a later delta against unknown state is not
// silently produced.
func (d *Decoder) Decode(unit *Unit) (*Frame, error) {
	frame, err := d.decode(unit)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Decoder.Decode",
			"picture_id": unit.PictureID,
			"error":      err.Error(),
		}).Debug("Discarding bitstream unit")
	}
	return frame, err
}

func (d *Decoder) decode(unit *Unit) (*Frame, error) {
	if len(unit.Payload) < unitHeaderSize {
		d.haveRef = false
		return nil, fmt.Errorf("%w: payload %d bytes, header needs %d", ErrCorruptUnit, len(unit.Payload), unitHeaderSize)
	}

	unitType := UnitType(unit.Payload[0])
	if unitType != UnitKey && unitType != UnitDelta {
		d.haveRef = false
		return nil, fmt.Errorf("%w: unknown unit type %d", ErrCorruptUnit, unit.Payload[0])
	}

	pictureID := binary.BigEndian.Uint16(unit.Payload[1:3])
	width := int(binary.BigEndian.Uint16(unit.Payload[3:5]))
	height := int(binary.BigEndian.Uint16(unit.Payload[5:7]))
	if width < 16 || height < 16 || width%2 != 0 || height%2 != 0 {
		d.haveRef = false
		return nil, fmt.Errorf("%w: bad dimensions %dx%d", ErrCorruptUnit, width, height)
	}

	ySize := width * height
	cSize := (width / 2) * (height / 2)
	body := unit.Payload[unitHeaderSize:]
	if len(body) != ySize+2*cSize {
		d.haveRef = false
		return nil, fmt.Errorf("%w: body %d bytes, planes need %d", ErrCorruptUnit, len(body), ySize+2*cSize)
	}

	switch unitType {
	case UnitKey:
		d.resetReference(width, height)
		copy(d.refY, body[:ySize])
		copy(d.refU, body[ySize:ySize+cSize])
		copy(d.refV, body[ySize+cSize:])
		d.haveRef = true
	case UnitDelta:
		if !d.haveRef {
			return nil, fmt.Errorf("%w: delta unit without reference frame", ErrCorruptUnit)
		}
		if pictureID != nextPictureID(d.lastPic) {
			// A unit between the reference and this delta was lost.
			d.haveRef = false
			return nil, fmt.Errorf("%w: delta picture %d does not follow %d",
				ErrCorruptUnit, pictureID, d.lastPic)
		}
		if width != d.width || height != d.height {
			d.haveRef = false
			return nil, fmt.Errorf("%w: delta dimensions %dx%d, reference is %dx%d",
				ErrCorruptUnit, width, height, d.width, d.height)
		}
		applyDelta(d.refY, body[:ySize])
		applyDelta(d.refU, body[ySize:ySize+cSize])
		applyDelta(d.refV, body[ySize+cSize:])
	}

	d.lastPic = pictureID

	frame := NewI420Frame(width, height)
	copy(frame.Y, d.refY)
	copy(frame.U, d.refU)
	copy(frame.V, d.refV)

	return frame, nil
}

// resetReference reallocates reference planes when dimensions change.
func (d *Decoder) resetReference(width, height int) {
	if d.width != width || d.height != height || d.refY == nil {
		d.width = width
		d.height = height
		d.refY = make([]byte, width*height)
		d.refU = make([]byte, (width/2)*(height/2))
		d.refV = make([]byte, (width/2)*(height/2))
	}
}

// nextPictureID advances a picture ID, skipping the reserved zero.
func nextPictureID(id uint16) uint16 {
	id++
	if id == 0 {
		id = 1
	}
	return id
}

// applyDelta adds the byte differences onto the reference plane.
func applyDelta(ref, delta []byte) {
	for i := range ref {
		ref[i] += delta[i]
	}
}
