package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillGradient writes a deterministic pattern so copied regions can be
// verified byte-for-byte.
func fillGradient(f *Frame) {
	for row := 0; row < f.Height; row++ {
		for col := 0; col < f.Width; col++ {
			off := row*f.Stride + col*4
			f.Data[off] = byte(col)
			f.Data[off+1] = byte(row)
			f.Data[off+2] = byte(col + row)
			f.Data[off+3] = 0xFF
		}
	}
}

func TestNewCropper_Validation(t *testing.T) {
	tests := []struct {
		name      string
		width     int
		height    int
		expectErr bool
	}{
		{"valid VGA", 640, 480, false},
		{"valid HD", 1280, 720, false},
		{"zero width", 0, 480, true},
		{"negative height", 640, -1, true},
		{"odd width", 641, 480, true},
		{"odd height", 640, 481, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCropper(tt.width, tt.height)
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrUnsupported)
				assert.Nil(t, c)
			} else {
				require.NoError(t, err)
				w, h := c.Size()
				assert.Equal(t, tt.width, w)
				assert.Equal(t, tt.height, h)
			}
		})
	}
}

func TestCropper_CopiesExactRegion(t *testing.T) {
	src := NewRGBAFrame(64, 48)
	fillGradient(src)

	c, err := NewCropper(16, 8)
	require.NoError(t, err)

	out, err := c.Crop(src, 10, 20)
	require.NoError(t, err)
	require.Equal(t, 16, out.Width)
	require.Equal(t, 8, out.Height)

	for row := 0; row < out.Height; row++ {
		for col := 0; col < out.Width; col++ {
			off := row*out.Stride + col*4
			assert.Equal(t, byte(col+10), out.Data[off], "red at (%d,%d)", col, row)
			assert.Equal(t, byte(row+20), out.Data[off+1], "green at (%d,%d)", col, row)
		}
	}
}

func TestCropper_HonorsSourceStride(t *testing.T) {
	// Source with padding bytes at the end of each row.
	src := &Frame{
		Width:  32,
		Height: 16,
		Format: FormatRGBA,
		Stride: 32*4 + 64,
	}
	src.Data = make([]byte, src.Stride*src.Height)
	for row := 0; row < src.Height; row++ {
		for col := 0; col < src.Width; col++ {
			src.Data[row*src.Stride+col*4] = byte(row*32 + col)
		}
	}

	c, err := NewCropper(8, 8)
	require.NoError(t, err)

	out, err := c.Crop(src, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, byte(4*32+4), out.Data[0])
	row, col := 11, 11
	assert.Equal(t, byte(row*32+col), out.Data[7*out.Stride+7*4])
}

func TestCropper_RejectsOutOfBounds(t *testing.T) {
	src := NewRGBAFrame(64, 48)
	c, err := NewCropper(32, 32)
	require.NoError(t, err)

	cases := []struct{ x, y int }{
		{-1, 0},
		{0, -1},
		{33, 0},
		{0, 17},
	}
	for _, pos := range cases {
		_, err := c.Crop(src, pos.x, pos.y)
		assert.Error(t, err, "crop at (%d,%d) should fail", pos.x, pos.y)
	}
}

func TestCropper_OutputDimensionsConstant(t *testing.T) {
	src := NewRGBAFrame(128, 128)
	fillGradient(src)

	c, err := NewCropper(32, 24)
	require.NoError(t, err)

	// The viewport moves; output size never changes.
	for _, pos := range []struct{ x, y int }{{0, 0}, {50, 60}, {96, 104}} {
		out, err := c.Crop(src, pos.x, pos.y)
		require.NoError(t, err)
		assert.Equal(t, 32, out.Width)
		assert.Equal(t, 24, out.Height)
	}
}
