// Package video implements the frame-domain stages of the viewcast
// pipeline: cropping, pixel format conversion, encoding to bitstream
// units, and decoding back to raw frames.
//
// The processing flow mirrors the wire direction:
//
//	RGBA capture frame → Crop → RGBA→I420 → Encode → bitstream units
//	raw output frame ← I420→RGBA ← Decode ← reassembled units
//
// Frames are exclusively owned by the stage currently processing them
// and are handed off, never shared. The crop→encode boundary uses a
// bounded drop-oldest FrameQueue so a slow encoder sheds load instead
// of stalling capture.
//
// The codec is a pure Go intra/delta plane codec: key units carry full
// I420 planes, delta units carry byte differences against the previous
// frame. A receiver that loses a delta unit resynchronizes at the next
// key unit. There are no CGo dependencies.
package video
