package video

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// unitHeaderSize is the fixed bitstream unit header:
// [type(1)][picture_id(2)][width(2)][height(2)], big-endian.
const unitHeaderSize = 7

// maxUnitSize bounds a single encoded unit. Anything larger indicates
// a misconfigured session rather than a legitimate frame.
const maxUnitSize = 2000000

// mediaClockRate is the RTP media clock for video (90 kHz).
const mediaClockRate = 90000

// Encoder compresses cropped I420 frames into bitstream units.
//
// Every keyframe interval the encoder emits a key unit carrying the
// full planes; frames in between become delta units carrying byte
// differences against the previous frame. Dimensions are fixed at
// construction and enforced per frame. The encoder keeps exactly one
// frame of state (the previous planes), so look-ahead latency is
// bounded at zero frames.
type Encoder struct {
	width       int
	height      int
	bitRate     uint32
	fps         int
	keyInterval int

	frameCount uint64
	pictureID  uint16
	prevY      []byte
	prevU      []byte
	prevV      []byte
}

// EncoderConfig carries the encoder tuning parameters.
type EncoderConfig struct {
	Width   int
	Height  int
	BitRate uint32 // Target bit rate in bits per second.
	FPS     int
	// KeyInterval is the number of frames between key units.
	// Zero selects two seconds worth of frames.
	KeyInterval int
}

// NewEncoder creates an encoder for fixed-dimension I420 input.
func NewEncoder(cfg EncoderConfig) (*Encoder, error) {
	if cfg.Width < 16 || cfg.Height < 16 {
		return nil, fmt.Errorf("%w: frame size %dx%d below minimum 16x16", ErrUnsupported, cfg.Width, cfg.Height)
	}
	if cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return nil, fmt.Errorf("%w: frame size %dx%d must be even", ErrUnsupported, cfg.Width, cfg.Height)
	}
	if cfg.Width > 16383 || cfg.Height > 16383 {
		return nil, fmt.Errorf("%w: frame size %dx%d above maximum", ErrUnsupported, cfg.Width, cfg.Height)
	}
	if cfg.BitRate == 0 {
		return nil, fmt.Errorf("%w: bit rate cannot be zero", ErrUnsupported)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("%w: fps must be positive", ErrUnsupported)
	}

	keyInterval := cfg.KeyInterval
	if keyInterval <= 0 {
		keyInterval = cfg.FPS * 2
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewEncoder",
		"width":        cfg.Width,
		"height":       cfg.Height,
		"bit_rate":     cfg.BitRate,
		"fps":          cfg.FPS,
		"key_interval": keyInterval,
	}).Info("Creating video encoder")

	return &Encoder{
		width:       cfg.Width,
		height:      cfg.Height,
		bitRate:     cfg.BitRate,
		fps:         cfg.FPS,
		keyInterval: keyInterval,
		pictureID:   1,
	}, nil
}

// Encode compresses one I420 frame into a bitstream unit.
//
// The first frame and every keyInterval-th frame become key units;
// the rest are deltas against the previous frame.
func (e *Encoder) Encode(frame *Frame) (*Unit, error) {
	if frame.Format != FormatI420 {
		return nil, fmt.Errorf("%w: encoder requires I420 input, got %v", ErrUnsupported, frame.Format)
	}
	if frame.Width != e.width || frame.Height != e.height {
		return nil, fmt.Errorf("%w: frame size %dx%d, encoder configured for %dx%d",
			ErrFormatMismatch, frame.Width, frame.Height, e.width, e.height)
	}
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	unitType := UnitDelta
	if e.frameCount%uint64(e.keyInterval) == 0 || e.prevY == nil {
		unitType = UnitKey
	}

	planeLen := len(frame.Y) + len(frame.U) + len(frame.V)
	if unitHeaderSize+planeLen > maxUnitSize {
		return nil, fmt.Errorf("%w: unit size %d exceeds %d", ErrOverload, unitHeaderSize+planeLen, maxUnitSize)
	}

	payload := make([]byte, unitHeaderSize+planeLen)
	payload[0] = byte(unitType)
	binary.BigEndian.PutUint16(payload[1:3], e.pictureID)
	binary.BigEndian.PutUint16(payload[3:5], uint16(frame.Width))
	binary.BigEndian.PutUint16(payload[5:7], uint16(frame.Height))

	body := payload[unitHeaderSize:]
	if unitType == UnitKey {
		n := copy(body, frame.Y)
		n += copy(body[n:], frame.U)
		copy(body[n:], frame.V)
	} else {
		off := diffPlane(body, frame.Y, e.prevY, 0)
		off = diffPlane(body, frame.U, e.prevU, off)
		diffPlane(body, frame.V, e.prevV, off)
	}

	e.rememberPlanes(frame)

	unit := &Unit{
		Type:      unitType,
		PictureID: e.pictureID,
		Width:     frame.Width,
		Height:    frame.Height,
		Timestamp: uint32(e.frameCount * mediaClockRate / uint64(e.fps)),
		Payload:   payload,
	}

	e.frameCount++
	e.pictureID++
	if e.pictureID == 0 {
		e.pictureID = 1
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Encoder.Encode",
		"unit_type":  unitType,
		"picture_id": unit.PictureID,
		"timestamp":  unit.Timestamp,
		"size":       len(payload),
	}).Debug("Encoded video frame")

	return unit, nil
}

// ForceKeyUnit makes the next encoded frame a key unit. The receiver
// side relies on this after loss bursts. frameCount is left alone so
// the media clock never rewinds.
func (e *Encoder) ForceKeyUnit() {
	e.prevY = nil
	e.prevU = nil
	e.prevV = nil
}

// rememberPlanes stores a copy of the frame planes for delta encoding.
func (e *Encoder) rememberPlanes(frame *Frame) {
	if e.prevY == nil {
		e.prevY = make([]byte, len(frame.Y))
		e.prevU = make([]byte, len(frame.U))
		e.prevV = make([]byte, len(frame.V))
	}
	copy(e.prevY, frame.Y)
	copy(e.prevU, frame.U)
	copy(e.prevV, frame.V)
}

// diffPlane writes cur-prev byte differences into dst starting at off
// and returns the new offset.
func diffPlane(dst, cur, prev []byte, off int) int {
	for i := range cur {
		dst[off+i] = cur[i] - prev[i]
	}
	return off + len(cur)
}
