package video

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Cropper extracts a fixed-size rectangle from incoming RGBA frames.
//
// The output dimensions are constant for the life of the session even
// as the source region moves; only the (x, y) origin of the crop
// changes between frames. Each crop is a bounded row-wise copy that
// honors the source frame's stride.
type Cropper struct {
	outWidth  int
	outHeight int
}

// NewCropper creates a cropper with fixed output dimensions.
//
// Dimensions must be positive and even so the cropped frames can be
// converted to I420 for encoding.
func NewCropper(width, height int) (*Cropper, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: crop size %dx%d", ErrUnsupported, width, height)
	}
	if width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("%w: crop size %dx%d must be even", ErrUnsupported, width, height)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewCropper",
		"width":    width,
		"height":   height,
	}).Info("Creating frame cropper")

	return &Cropper{outWidth: width, outHeight: height}, nil
}

// Size returns the fixed output dimensions.
func (c *Cropper) Size() (width, height int) {
	return c.outWidth, c.outHeight
}

// Crop copies the rectangle at (x, y) from the source frame into a new
// RGBA frame of the cropper's fixed output size.
//
// The rectangle must be fully contained in the source frame; the
// follow controller guarantees this by clamping, so a violation here
// is a caller bug and is reported as an error rather than clamped
// again.
func (c *Cropper) Crop(src *Frame, x, y int) (*Frame, error) {
	if src.Format != FormatRGBA {
		return nil, fmt.Errorf("%w: cropper requires RGBA input, got %v", ErrUnsupported, src.Format)
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source frame: %w", err)
	}
	if x < 0 || y < 0 || x+c.outWidth > src.Width || y+c.outHeight > src.Height {
		return nil, fmt.Errorf("crop rect %dx%d at (%d,%d) outside source %dx%d",
			c.outWidth, c.outHeight, x, y, src.Width, src.Height)
	}

	out := NewRGBAFrame(c.outWidth, c.outHeight)
	out.Timestamp = src.Timestamp

	rowBytes := c.outWidth * 4
	for row := 0; row < c.outHeight; row++ {
		srcOff := (y+row)*src.Stride + x*4
		dstOff := row * rowBytes
		copy(out.Data[dstOff:dstOff+rowBytes], src.Data[srcOff:srcOff+rowBytes])
	}

	return out, nil
}
