package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnsupportedFormat is returned for sample kinds or layouts the
	// converter cannot read or produce.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")
	// ErrEmptyInput is returned for buffers that hold no whole frame.
	ErrEmptyInput = errors.New("audio: empty input")
)

// Converter turns device PCM into mono float32 at the destination rate.
//
// Channels are down-mixed by averaging. Resampling is linear interpolation
// over the concatenated input stream: the read position and the last input
// frame are carried between calls, so splitting the input into chunks does
// not change the output. A Converter belongs to one capture session and is
// not safe for concurrent use.
type Converter struct {
	src, dst Format

	// pos is the read position in units of 1/dst.SampleRate input frames,
	// measured on the sequence prev, chunk[0], chunk[1], ...
	pos     uint64
	prev    float32
	started bool

	mono []float32
}

// NewConverter returns a Converter from src to dst. dst must be mono float32.
func NewConverter(src, dst Format) (*Converter, error) {
	switch src.Kind {
	case KindInt16, KindFloat32, KindFloat64:
	default:
		return nil, fmt.Errorf("%w: source sample kind %s", ErrUnsupportedFormat, src.Kind)
	}
	if src.Channels == 0 || src.SampleRate == 0 {
		return nil, fmt.Errorf("%w: source %s", ErrUnsupportedFormat, src)
	}
	if dst.Channels != 1 || dst.Kind != KindFloat32 || dst.SampleRate == 0 {
		return nil, fmt.Errorf("%w: destination %s", ErrUnsupportedFormat, dst)
	}
	c := &Converter{src: src, dst: dst}
	c.Reset()
	return c, nil
}

// Convert is the stateless form: it converts a single buffer with a fresh
// Converter.
func Convert(buf RawBuffer, src, dst Format) ([]float32, error) {
	c, err := NewConverter(src, dst)
	if err != nil {
		return nil, err
	}
	return c.Convert(nil, buf)
}

// Reset discards the carried stream position so the next call starts a new
// stream.
func (c *Converter) Reset() {
	c.pos = uint64(c.dst.SampleRate)
	c.prev = 0
	c.started = false
}

// Source returns the format the converter reads.
func (c *Converter) Source() Format { return c.src }

// Convert appends the converted samples of buf to out and returns it.
func (c *Converter) Convert(out []float32, buf RawBuffer) ([]float32, error) {
	frameSize := c.src.FrameSize()
	frames := int(buf.Frames)
	if avail := len(buf.Data) / frameSize; avail < frames {
		frames = avail
	}
	if frames == 0 {
		return out, ErrEmptyInput
	}

	// mono[0] is the last frame of the previous call, mono[1:] this buffer.
	if cap(c.mono) < frames+1 {
		c.mono = make([]float32, frames+1)
	}
	mono := c.mono[:frames+1]
	c.downmix(mono[1:], buf.Data)
	if c.started {
		mono[0] = c.prev
	} else {
		mono[0] = mono[1]
		c.started = true
	}

	srcRate := uint64(c.src.SampleRate)
	dstRate := uint64(c.dst.SampleRate)
	end := uint64(frames) * dstRate

	if srcRate == dstRate {
		// Position is always frame aligned at equal rates.
		first := int(c.pos / dstRate)
		out = append(out, mono[first:]...)
		c.pos = dstRate
	} else {
		for c.pos <= end {
			i := c.pos / dstRate
			r := c.pos % dstRate
			s := mono[i]
			if r != 0 {
				s += (mono[i+1] - s) * float32(float64(r)/float64(dstRate))
			}
			out = append(out, s)
			c.pos += srcRate
		}
		c.pos -= end
	}

	c.prev = mono[frames]
	return out, nil
}

// downmix decodes interleaved frames from data into dst, averaging channels.
func (c *Converter) downmix(dst []float32, data []byte) {
	ch := int(c.src.Channels)
	size := c.src.Kind.Size()
	scale := 1 / float32(ch)
	off := 0
	for i := range dst {
		var sum float32
		for j := 0; j < ch; j++ {
			sum += decodeSample(c.src.Kind, data[off:off+size])
			off += size
		}
		if ch == 1 {
			dst[i] = sum
		} else {
			dst[i] = sum * scale
		}
	}
}

func decodeSample(kind SampleKind, b []byte) float32 {
	switch kind {
	case KindInt16:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768.0
	case KindFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case KindFloat64:
		return float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	return 0
}
