package video

import "fmt"

// Pixel format conversion between the capture-side RGBA frames and the
// codec-side I420 frames. Coefficients are BT.601 limited range, the
// same conversion the original pipeline's videoconvert stage applied.

// RGBAToI420 converts a packed RGBA frame to planar I420.
//
// Chroma is subsampled by averaging each 2x2 block. Width and height
// must be even.
func RGBAToI420(src *Frame) (*Frame, error) {
	if src.Format != FormatRGBA {
		return nil, fmt.Errorf("%w: expected RGBA input, got %v", ErrFormatMismatch, src.Format)
	}
	if src.Width%2 != 0 || src.Height%2 != 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d must be even", ErrFormatMismatch, src.Width, src.Height)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}

	out := NewI420Frame(src.Width, src.Height)
	out.Timestamp = src.Timestamp

	for row := 0; row < src.Height; row++ {
		base := row * src.Stride
		for col := 0; col < src.Width; col++ {
			off := base + col*4
			r := int32(src.Data[off])
			g := int32(src.Data[off+1])
			b := int32(src.Data[off+2])
			yv := (66*r + 129*g + 25*b + 128) >> 8
			out.Y[row*src.Width+col] = clampByte(yv + 16)
		}
	}

	cw := src.Width / 2
	for cy := 0; cy < src.Height/2; cy++ {
		for cx := 0; cx < cw; cx++ {
			var rSum, gSum, bSum int32
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					off := (cy*2+dy)*src.Stride + (cx*2+dx)*4
					rSum += int32(src.Data[off])
					gSum += int32(src.Data[off+1])
					bSum += int32(src.Data[off+2])
				}
			}
			r := rSum / 4
			g := gSum / 4
			b := bSum / 4
			u := ((-38*r - 74*g + 112*b + 128) >> 8) + 128
			v := ((112*r - 94*g - 18*b + 128) >> 8) + 128
			out.U[cy*cw+cx] = clampByte(u)
			out.V[cy*cw+cx] = clampByte(v)
		}
	}

	return out, nil
}

// I420ToRGBA converts a planar I420 frame to packed RGBA with full
// opacity, used by preview sinks.
func I420ToRGBA(src *Frame) (*Frame, error) {
	if src.Format != FormatI420 {
		return nil, fmt.Errorf("%w: expected I420 input, got %v", ErrFormatMismatch, src.Format)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}

	out := NewRGBAFrame(src.Width, src.Height)
	out.Timestamp = src.Timestamp

	cw := src.Width / 2
	for row := 0; row < src.Height; row++ {
		for col := 0; col < src.Width; col++ {
			yv := int32(src.Y[row*src.Width+col]) - 16
			u := int32(src.U[(row/2)*cw+col/2]) - 128
			v := int32(src.V[(row/2)*cw+col/2]) - 128

			r := (298*yv + 409*v + 128) >> 8
			g := (298*yv - 100*u - 208*v + 128) >> 8
			b := (298*yv + 516*u + 128) >> 8

			off := row*out.Stride + col*4
			out.Data[off] = clampByte(r)
			out.Data[off+1] = clampByte(g)
			out.Data[off+2] = clampByte(b)
			out.Data[off+3] = 0xFF
		}
	}

	return out, nil
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
