// Package transcribe turns mono 16kHz float32 audio into timed text segments.
package transcribe

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoSamples is returned by every engine when asked to transcribe nothing.
var ErrNoSamples = errors.New("transcribe: no samples")

// Segment is one span of recognised speech.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Engine is a speech-to-text backend.
type Engine interface {
	// Transcribe converts samples recorded at sampleRate into segments.
	// It must honour ctx cancellation.
	Transcribe(ctx context.Context, samples []float32, sampleRate uint32) ([]Segment, error)
	// Close releases backend resources.
	Close() error
}

// Text joins the trimmed text of each segment with single spaces.
func Text(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// samplesDuration is the length of n samples at rate.
func samplesDuration(n int, rate uint32) time.Duration {
	if rate == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
