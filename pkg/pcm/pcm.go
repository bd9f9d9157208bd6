// Package pcm converts between floating-point audio samples and the
// transport representation used by the live session: 16-bit little-endian
// PCM wrapped in base64 text and tagged with a MIME descriptor.
//
// The package has no dependencies on audio hardware or the network layer;
// it is pure sample arithmetic and encoding, which keeps the codec
// invariants unit-testable in isolation.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// CaptureRate is the sample rate of upstream microphone audio in Hz.
const CaptureRate = 16000

// PlaybackRate is the sample rate of downstream synthesized audio in Hz.
const PlaybackRate = 24000

// CaptureMIMEType tags outbound audio frames.
const CaptureMIMEType = "audio/pcm;rate=16000"

// Frame is a single unit of audio prepared for transport: base64 text over
// raw little-endian 16-bit PCM plus the MIME descriptor identifying it.
type Frame struct {
	// Data is the base64-encoded PCM byte sequence.
	Data string

	// MIMEType identifies the encoding and sample rate, e.g. "audio/pcm;rate=16000".
	MIMEType string
}

// Buffer is a decoded, playback-ready audio unit.
type Buffer struct {
	// Samples holds mono or interleaved float32 samples in [-1, 1).
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count of the interleaved data.
	Channels int
}

// Duration returns the play time of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// EncodeFrame converts float32 samples in [-1, 1] to a transport Frame.
// Each sample is scaled by 32767 and clamped to the int16 range, so
// out-of-range input encodes to the boundary value rather than wrapping.
func EncodeFrame(samples []float32) Frame {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(v)))
	}
	return Frame{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MIMEType: CaptureMIMEType,
	}
}

// DecodeFrame reverses the base64 transport encoding. It does not resample
// or reinterpret the bytes; use [BytesToBuffer] for that.
func DecodeFrame(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("pcm: decode frame: %w", err)
	}
	return raw, nil
}

// BytesToBuffer reinterprets raw little-endian 16-bit PCM as a playable
// [Buffer] at the given sample rate and channel count. Every pair of bytes
// becomes one float32 sample in [-1, 1) via division by 32768; an odd
// trailing byte is ignored.
func BytesToBuffer(raw []byte, sampleRate, channels int) Buffer {
	n := len(raw) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(s) / 32768
	}
	return Buffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// BlobToBase64 reads r fully into memory and returns its base64 text form.
// Used for JPEG still frames on the video path. A failed read returns the
// wrapped I/O error and no partial output.
func BlobToBase64(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("pcm: read blob: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
