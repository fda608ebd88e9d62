package video

import (
	"fmt"
	"time"
)

// PixelFormat identifies the memory layout of a raw frame.
type PixelFormat uint8

const (
	// FormatRGBA is 8-bit interleaved RGBA, 4 bytes per pixel.
	FormatRGBA PixelFormat = iota
	// FormatI420 is planar YUV 4:2:0 with full-resolution luma.
	FormatI420
)

// String returns a human-readable name for the pixel format.
func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA:
		return "RGBA"
	case FormatI420:
		return "I420"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint8(f))
	}
}

// Frame is one raw image buffer moving through the pipeline.
//
// A frame is owned by exactly one stage at a time; stages hand frames
// off and never retain them past the hand-off. RGBA frames store the
// interleaved pixels in Data with the given Stride. I420 frames store
// the three planes in Y, U and V.
type Frame struct {
	Width     int
	Height    int
	Format    PixelFormat
	Timestamp time.Duration // Offset from session start.

	// RGBA layout.
	Data   []byte
	Stride int // Bytes per row, >= Width*4.

	// I420 layout.
	Y []byte
	U []byte
	V []byte
}

// NewRGBAFrame allocates an RGBA frame with a tightly packed stride.
func NewRGBAFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Format: FormatRGBA,
		Data:   make([]byte, width*height*4),
		Stride: width * 4,
	}
}

// NewI420Frame allocates an I420 frame. Width and height must be even.
func NewI420Frame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Format: FormatI420,
		Y:      make([]byte, width*height),
		U:      make([]byte, (width/2)*(height/2)),
		V:      make([]byte, (width/2)*(height/2)),
	}
}

// Validate checks that the frame's buffers match its declared geometry.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	switch f.Format {
	case FormatRGBA:
		if f.Stride < f.Width*4 {
			return fmt.Errorf("RGBA stride %d smaller than row size %d", f.Stride, f.Width*4)
		}
		if len(f.Data) < f.Stride*(f.Height-1)+f.Width*4 {
			return fmt.Errorf("RGBA buffer too small: %d bytes for %dx%d stride %d",
				len(f.Data), f.Width, f.Height, f.Stride)
		}
	case FormatI420:
		if f.Width%2 != 0 || f.Height%2 != 0 {
			return fmt.Errorf("I420 dimensions must be even, got %dx%d", f.Width, f.Height)
		}
		cSize := (f.Width / 2) * (f.Height / 2)
		if len(f.Y) != f.Width*f.Height || len(f.U) != cSize || len(f.V) != cSize {
			return fmt.Errorf("I420 plane sizes %d/%d/%d do not match %dx%d",
				len(f.Y), len(f.U), len(f.V), f.Width, f.Height)
		}
	default:
		return fmt.Errorf("unknown pixel format %v", f.Format)
	}
	return nil
}

// UnitType distinguishes independently decodable units from deltas.
type UnitType uint8

const (
	// UnitKey is an independently decodable unit carrying full planes.
	UnitKey UnitType = 1
	// UnitDelta carries plane differences against the previous frame.
	UnitDelta UnitType = 2
)

// Unit is one encoded bitstream unit produced by the Encoder.
//
// PictureID increments per unit and wraps; Timestamp runs on the
// 90 kHz RTP media clock.
type Unit struct {
	Type      UnitType
	PictureID uint16
	Width     int
	Height    int
	Timestamp uint32
	Payload   []byte
}

// IsKey reports whether the unit can be decoded without prior state.
func (u *Unit) IsKey() bool {
	return u.Type == UnitKey
}
