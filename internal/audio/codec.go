package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrDecode marks malformed wire audio payloads.
var ErrDecode = errors.New("malformed audio payload")

// Buffer is a decoded, playable chunk of PCM audio.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration reports the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(float64(frames) / float64(b.SampleRate) * float64(time.Second))
}

// EncodePCM16 converts float samples to the wire encoding: each sample is
// clamped to [-1, 1], quantized to int16, packed little-endian, and wrapped
// as a base64 string. Lossy by design (16-bit quantization).
func EncodePCM16(samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", errors.New("empty sample slice")
	}
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		n := int16(v * 32767)
		raw[i*2] = byte(n)
		raw[i*2+1] = byte(uint16(n) >> 8)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePCM16 reverses EncodePCM16 and tags the result with the given sample
// rate and channel count. The byte length must be a whole number of frames.
func DecodePCM16(wire string, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrDecode, sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrDecode, channels)
	}
	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(raw) == 0 || len(raw)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-channel frames", ErrDecode, len(raw), channels)
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		n := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		samples[i] = float32(n) / 32768
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// RMS computes the root-mean-square level of a chunk, used for UI metering.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
