package audio

import (
	"errors"
	"sync/atomic"
)

// ErrBufferOverflow is reported by Snapshot when samples had to be discarded
// because the buffer reached its maximum length.
var ErrBufferOverflow = errors.New("audio: frame buffer overflow")

// FrameBuffer accumulates converted samples for one recording.
//
// Append is called only from the capture path and never fails: once the
// buffer holds limit samples the rest is discarded and the overflow is
// reported by the next Snapshot. Snapshot and Reset must not run
// concurrently with Append.
type FrameBuffer struct {
	samples  []float32
	limit    int
	overflow atomic.Bool
}

// NewFrameBuffer returns a buffer with room for capacity samples before it
// has to grow. A limit of 0 means unbounded.
func NewFrameBuffer(capacity, limit int) *FrameBuffer {
	if limit > 0 && capacity > limit {
		capacity = limit
	}
	return &FrameBuffer{
		samples: make([]float32, 0, capacity),
		limit:   limit,
	}
}

// Reset empties the buffer but keeps its capacity.
func (b *FrameBuffer) Reset() {
	b.samples = b.samples[:0]
	b.overflow.Store(false)
}

// Append copies chunk onto the end of the buffer.
func (b *FrameBuffer) Append(chunk []float32) {
	if b.limit > 0 {
		room := b.limit - len(b.samples)
		if len(chunk) > room {
			chunk = chunk[:room]
			b.overflow.Store(true)
		}
	}
	b.samples = append(b.samples, chunk...)
}

// Len returns the number of samples held.
func (b *FrameBuffer) Len() int {
	return len(b.samples)
}

// Overflowed reports whether samples have been discarded since the last Reset.
func (b *FrameBuffer) Overflowed() bool {
	return b.overflow.Load()
}

// Snapshot returns a copy of the samples. The copy is valid even when
// ErrBufferOverflow is returned alongside it.
func (b *FrameBuffer) Snapshot() ([]float32, error) {
	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	if b.overflow.Load() {
		return out, ErrBufferOverflow
	}
	return out, nil
}
