package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testI420Frame(width, height int, seed byte) *Frame {
	f := NewI420Frame(width, height)
	for i := range f.Y {
		f.Y[i] = byte(i) + seed
	}
	for i := range f.U {
		f.U[i] = byte(i*3) + seed
	}
	for i := range f.V {
		f.V[i] = byte(i*7) + seed
	}
	return f
}

func TestNewEncoder_ConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  EncoderConfig
	}{
		{"too small", EncoderConfig{Width: 8, Height: 8, BitRate: 100000, FPS: 30}},
		{"odd width", EncoderConfig{Width: 33, Height: 32, BitRate: 100000, FPS: 30}},
		{"zero bitrate", EncoderConfig{Width: 32, Height: 32, BitRate: 0, FPS: 30}},
		{"zero fps", EncoderConfig{Width: 32, Height: 32, BitRate: 100000, FPS: 0}},
		{"too large", EncoderConfig{Width: 16384, Height: 32, BitRate: 100000, FPS: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEncoder(tt.cfg)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestCodec_KeyUnitRoundTrip(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Width: 32, Height: 16, BitRate: 500000, FPS: 30})
	require.NoError(t, err)

	src := testI420Frame(32, 16, 0)
	unit, err := enc.Encode(src)
	require.NoError(t, err)
	assert.Equal(t, UnitKey, unit.Type, "first unit must be independently decodable")

	dec := NewDecoder()
	out, err := dec.Decode(unit)
	require.NoError(t, err)

	assert.Equal(t, src.Width, out.Width)
	assert.Equal(t, src.Height, out.Height)
	assert.Equal(t, src.Y, out.Y)
	assert.Equal(t, src.U, out.U)
	assert.Equal(t, src.V, out.V)
}

func TestCodec_DeltaUnitsReconstructExactly(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Width: 32, Height: 16, BitRate: 500000, FPS: 30})
	require.NoError(t, err)
	dec := NewDecoder()

	var lastDecoded *Frame
	for i := 0; i < 10; i++ {
		src := testI420Frame(32, 16, byte(i*11))
		unit, err := enc.Encode(src)
		require.NoError(t, err)
		if i > 0 {
			assert.Equal(t, UnitDelta, unit.Type, "frame %d should be a delta", i)
		}

		lastDecoded, err = dec.Decode(unit)
		require.NoError(t, err)
		assert.Equal(t, src.Y, lastDecoded.Y, "frame %d luma mismatch", i)
		assert.Equal(t, src.U, lastDecoded.U, "frame %d U mismatch", i)
		assert.Equal(t, src.V, lastDecoded.V, "frame %d V mismatch", i)
	}
}

func TestCodec_KeyIntervalProducesKeyUnits(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Width: 32, Height: 16, BitRate: 500000, FPS: 30, KeyInterval: 4})
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		unit, err := enc.Encode(testI420Frame(32, 16, byte(i)))
		require.NoError(t, err)
		if i%4 == 0 {
			assert.Equal(t, UnitKey, unit.Type, "frame %d", i)
		} else {
			assert.Equal(t, UnitDelta, unit.Type, "frame %d", i)
		}
	}
}

func TestDecoder_DeltaWithoutReference(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Width: 32, Height: 16, BitRate: 500000, FPS: 30})
	require.NoError(t, err)

	_, err = enc.Encode(testI420Frame(32, 16, 0))
	require.NoError(t, err)
	delta, err := enc.Encode(testI420Frame(32, 16, 1))
	require.NoError(t, err)
	require.Equal(t, UnitDelta, delta.Type)

	// Fresh decoder never saw the key unit.
	dec := NewDecoder()
	_, err = dec.Decode(delta)
	assert.ErrorIs(t, err, ErrCorruptUnit)
}

func TestDecoder_ResumesAtNextKeyUnit(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Width: 32, Height: 16, BitRate: 500000, FPS: 30, KeyInterval: 3})
	require.NoError(t, err)
	dec := NewDecoder()

	var units []*Unit
	for i := 0; i < 7; i++ {
		unit, err := enc.Encode(testI420Frame(32, 16, byte(i*5)))
		require.NoError(t, err)
		units = append(units, unit)
	}

	// Simulate loss of the delta at index 1: decode 0, skip 1, fail on 2.
	_, err = dec.Decode(units[0])
	require.NoError(t, err)
	_, err = dec.Decode(units[2])
	assert.Error(t, err, "delta after a gap must not decode against stale reference")

	// Next key unit (index 3) recovers cleanly.
	out, err := dec.Decode(units[3])
	require.NoError(t, err)
	assert.Equal(t, testI420Frame(32, 16, 15).Y, out.Y)
}

func TestDecoder_CorruptUnits(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"short header", []byte{1, 0}},
		{"unknown type", []byte{9, 0, 1, 0, 32, 0, 16}},
		{"odd dimensions", []byte{1, 0, 1, 0, 33, 0, 16}},
		{"truncated body", append([]byte{1, 0, 1, 0, 32, 0, 16}, make([]byte, 10)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder()
			_, err := dec.Decode(&Unit{Payload: tt.payload})
			assert.ErrorIs(t, err, ErrCorruptUnit)
		})
	}
}

func TestDecoder_CorruptionInvalidatesReference(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Width: 32, Height: 16, BitRate: 500000, FPS: 30})
	require.NoError(t, err)
	dec := NewDecoder()

	key, err := enc.Encode(testI420Frame(32, 16, 0))
	require.NoError(t, err)
	_, err = dec.Decode(key)
	require.NoError(t, err)

	_, err = dec.Decode(&Unit{Payload: []byte{2, 0}})
	require.ErrorIs(t, err, ErrCorruptUnit)

	// Subsequent delta must be refused: the reference is untrusted.
	delta, err := enc.Encode(testI420Frame(32, 16, 1))
	require.NoError(t, err)
	_, err = dec.Decode(delta)
	assert.ErrorIs(t, err, ErrCorruptUnit)
}

func TestEncoder_DimensionMismatch(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Width: 32, Height: 16, BitRate: 500000, FPS: 30})
	require.NoError(t, err)

	_, err = enc.Encode(testI420Frame(64, 32, 0))
	assert.ErrorIs(t, err, ErrFormatMismatch)
}

func TestEncoder_TimestampsAdvanceOnMediaClock(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Width: 32, Height: 16, BitRate: 500000, FPS: 30})
	require.NoError(t, err)

	first, err := enc.Encode(testI420Frame(32, 16, 0))
	require.NoError(t, err)
	second, err := enc.Encode(testI420Frame(32, 16, 1))
	require.NoError(t, err)

	assert.Equal(t, uint32(0), first.Timestamp)
	assert.Equal(t, uint32(3000), second.Timestamp, "90000/30 ticks per frame")
}

func TestEncoder_ForceKeyUnitKeepsTimestampsMonotonic(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Width: 32, Height: 16, BitRate: 500000, FPS: 30, KeyInterval: 100})
	require.NoError(t, err)

	var last uint32
	for i := 0; i < 5; i++ {
		unit, err := enc.Encode(testI420Frame(32, 16, byte(i)))
		require.NoError(t, err)
		last = unit.Timestamp
	}

	enc.ForceKeyUnit()
	unit, err := enc.Encode(testI420Frame(32, 16, 9))
	require.NoError(t, err)
	assert.Equal(t, UnitKey, unit.Type, "recovery frame must be independently decodable")
	assert.Greater(t, unit.Timestamp, last, "media clock must not rewind on recovery")
}

func TestConvert_RGBAToI420RoundTripGray(t *testing.T) {
	// Uniform gray survives RGB->YUV->RGB within rounding error.
	src := NewRGBAFrame(16, 16)
	for i := 0; i < len(src.Data); i += 4 {
		src.Data[i], src.Data[i+1], src.Data[i+2], src.Data[i+3] = 128, 128, 128, 255
	}

	yuv, err := RGBAToI420(src)
	require.NoError(t, err)
	back, err := I420ToRGBA(yuv)
	require.NoError(t, err)

	for i := 0; i < len(back.Data); i += 4 {
		assert.InDelta(t, 128, int(back.Data[i]), 3)
		assert.InDelta(t, 128, int(back.Data[i+1]), 3)
		assert.InDelta(t, 128, int(back.Data[i+2]), 3)
		assert.Equal(t, byte(255), back.Data[i+3])
	}
}

func TestConvert_RejectsWrongFormat(t *testing.T) {
	_, err := RGBAToI420(NewI420Frame(16, 16))
	assert.ErrorIs(t, err, ErrFormatMismatch)

	_, err = I420ToRGBA(NewRGBAFrame(16, 16))
	assert.ErrorIs(t, err, ErrFormatMismatch)
}
