// Package audio captures microphone input and converts it to the 16kHz mono
// float32 stream expected by speech-to-text engines.
//
// A Device delivers raw PCM in whatever format the hardware produces. A
// Session taps the device, runs every buffer through a Converter and
// accumulates the result in a FrameBuffer until the session is stopped.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SampleKind identifies the encoding of a single PCM sample.
type SampleKind int

const (
	KindUnknown SampleKind = iota
	KindInt16
	KindFloat32
	KindFloat64
)

// TargetRate is the sample rate speech engines expect.
const TargetRate = 16000

// Target is the format every converted chunk is in.
var Target = Format{SampleRate: TargetRate, Channels: 1, Kind: KindFloat32}

func (k SampleKind) String() string {
	switch k {
	case KindInt16:
		return "s16"
	case KindFloat32:
		return "f32"
	case KindFloat64:
		return "f64"
	default:
		return "unknown"
	}
}

// ParseSampleKind maps a config value ("s16", "f32", "f64") to a SampleKind.
// An empty string yields KindUnknown, meaning "device native".
func ParseSampleKind(s string) (SampleKind, error) {
	switch s {
	case "":
		return KindUnknown, nil
	case "s16":
		return KindInt16, nil
	case "f32":
		return KindFloat32, nil
	case "f64":
		return KindFloat64, nil
	default:
		return KindUnknown, fmt.Errorf("audio: unknown sample format %q", s)
	}
}

// Size returns the number of bytes one sample occupies, or 0 if unknown.
func (k SampleKind) Size() int {
	switch k {
	case KindInt16:
		return 2
	case KindFloat32:
		return 4
	case KindFloat64:
		return 8
	default:
		return 0
	}
}

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleRate uint32
	Channels   uint32
	Kind       SampleKind
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.Kind)
}

// FrameSize returns the number of bytes in one interleaved frame.
func (f Format) FrameSize() int {
	return f.Kind.Size() * int(f.Channels)
}

// RawBuffer is one batch of frames handed to a Tap. Data is only valid for
// the duration of the Tap call.
type RawBuffer struct {
	Data   []byte
	Frames uint32
}

// Tap receives every buffer a Device captures. It is called from the
// device's delivery goroutine (or a real-time audio thread) and must not
// block.
type Tap func(buf RawBuffer)

// Device is the audio subsystem a Session drives.
type Device interface {
	// Open prepares the stream and reports the format buffers will arrive
	// in. A nil want selects the device's native format; zero fields in want
	// are left to the device.
	Open(want *Format) (Format, error)
	// Start begins delivering buffers to tap.
	Start(tap Tap) error
	// Stop halts delivery and releases what Open acquired. It is valid after
	// Open without Start.
	Stop() error
	// Close releases the device for good.
	Close() error
}

// EncodeFloat32 packs samples into little-endian float32 PCM.
func EncodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// EncodeInt16 packs samples into little-endian signed 16-bit PCM.
func EncodeInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
