package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidState is returned by Start while active and by Stop or
	// Snapshot while inactive.
	ErrInvalidState = errors.New("audio: invalid capture state")
	// ErrUnsupportedDeviceFormat is returned when the device delivers a
	// format the converter cannot read.
	ErrUnsupportedDeviceFormat = errors.New("audio: unsupported device format")
	// ErrEngineStartFailed matches every *EngineStartError.
	ErrEngineStartFailed = errors.New("audio: engine start failed")
)

// EngineStartError carries the reason a device could not be opened or
// started.
type EngineStartError struct {
	Reason error
}

func (e *EngineStartError) Error() string {
	return fmt.Sprintf("audio: engine start failed: %v", e.Reason)
}

func (e *EngineStartError) Unwrap() []error {
	return []error{ErrEngineStartFailed, e.Reason}
}

// Stats describes the current or most recent capture.
type Stats struct {
	Format     Format
	Chunks     uint64 // buffers converted and appended
	Frames     uint64 // source frames in those buffers
	Dropped    uint64 // buffers that failed to convert
	Overflowed bool
}

// SessionOptions tunes buffer sizing.
type SessionOptions struct {
	// InitialDuration is the recording length preallocated at creation.
	InitialDuration time.Duration
	// MaxDuration bounds the buffer; 0 means unbounded.
	MaxDuration time.Duration
	Logger      *slog.Logger
}

// Session owns a Device for the length of one recording at a time. It
// installs a tap that converts each buffer to Target and appends it to a
// FrameBuffer.
//
// The tap never takes a lock. Two FrameBuffers alternate: Start resets the
// idle one and the tap writes to it; Stop publishes it once no tap call is
// in flight. A failed Start therefore leaves the previous recording intact.
type Session struct {
	dev Device
	log *slog.Logger

	mu     sync.Mutex // control side only
	active bool
	bufs   [2]*FrameBuffer
	cur    int // index of the published buffer
	format Format

	// Written by Start before accepting is set, read by the tap after it
	// observes accepting.
	conv    *Converter
	writing *FrameBuffer
	scratch []float32

	accepting atomic.Bool
	inflight  atomic.Int32

	chunks  atomic.Uint64
	frames  atomic.Uint64
	dropped atomic.Uint64
}

// NewSession returns an inactive session driving dev.
func NewSession(dev Device, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InitialDuration <= 0 {
		opts.InitialDuration = 30 * time.Second
	}
	initial := durationSamples(opts.InitialDuration)
	limit := durationSamples(opts.MaxDuration)
	return &Session{
		dev: dev,
		log: opts.Logger,
		bufs: [2]*FrameBuffer{
			NewFrameBuffer(initial, limit),
			NewFrameBuffer(initial, limit),
		},
	}
}

func durationSamples(d time.Duration) int {
	return int(d.Seconds() * TargetRate)
}

// Start opens the device, builds a converter for its format and begins
// capturing into a freshly reset buffer. want is passed to Device.Open.
func (s *Session) Start(want *Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return fmt.Errorf("%w: already capturing", ErrInvalidState)
	}

	format, err := s.dev.Open(want)
	if err != nil {
		return &EngineStartError{Reason: err}
	}

	conv, err := NewConverter(format, Target)
	if err != nil {
		if stopErr := s.dev.Stop(); stopErr != nil {
			s.log.Warn("releasing device after format mismatch", "err", stopErr)
		}
		return fmt.Errorf("%w: %s: %w", ErrUnsupportedDeviceFormat, format, err)
	}

	next := s.bufs[1-s.cur]
	next.Reset()
	s.conv = conv
	s.writing = next
	s.format = format
	s.chunks.Store(0)
	s.frames.Store(0)
	s.dropped.Store(0)
	s.accepting.Store(true)

	if err := s.dev.Start(s.tap); err != nil {
		s.accepting.Store(false)
		s.drain()
		if stopErr := s.dev.Stop(); stopErr != nil {
			s.log.Warn("releasing device after failed start", "err", stopErr)
		}
		return &EngineStartError{Reason: err}
	}

	s.active = true
	s.log.Debug("capture started", "format", format)
	return nil
}

// Stop halts the device and returns once no tap call can still touch the
// buffer. The recording is then available through Snapshot.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return fmt.Errorf("%w: not capturing", ErrInvalidState)
	}

	s.accepting.Store(false)
	err := s.dev.Stop()
	s.drain()

	s.active = false
	s.cur = 1 - s.cur
	s.log.Debug("capture stopped",
		"samples", s.bufs[s.cur].Len(),
		"chunks", s.chunks.Load(),
		"dropped", s.dropped.Load(),
	)
	if err != nil {
		return fmt.Errorf("audio: stopping device: %w", err)
	}
	return nil
}

// drain waits for tap calls that observed accepting before it was cleared.
func (s *Session) drain() {
	for s.inflight.Load() != 0 {
		time.Sleep(50 * time.Microsecond)
	}
}

// Active reports whether the session is capturing.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Snapshot returns a copy of the last completed recording.
func (s *Session) Snapshot() ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil, fmt.Errorf("%w: snapshot while capturing", ErrInvalidState)
	}
	return s.bufs[s.cur].Snapshot()
}

// Stats reports counters for the current or last recording.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.bufs[s.cur]
	if s.active {
		buf = s.writing
	}
	return Stats{
		Format:     s.format,
		Chunks:     s.chunks.Load(),
		Frames:     s.frames.Load(),
		Dropped:    s.dropped.Load(),
		Overflowed: buf.Overflowed(),
	}
}

// Close stops any capture in progress and closes the device.
func (s *Session) Close() error {
	if s.Active() {
		if err := s.Stop(); err != nil {
			s.log.Warn("stopping capture on close", "err", err)
		}
	}
	if err := s.dev.Close(); err != nil {
		return fmt.Errorf("audio: closing device: %w", err)
	}
	return nil
}

// tap runs on the device's delivery thread.
func (s *Session) tap(buf RawBuffer) {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	if !s.accepting.Load() {
		return
	}

	// Convert clamps Frames to the bytes present, so a malformed buffer
	// is an error here and never an out-of-range read.
	out, err := s.conv.Convert(s.scratch[:0], buf)
	if err != nil {
		s.dropped.Add(1)
		return
	}
	s.scratch = out
	s.writing.Append(out)
	s.chunks.Add(1)
	s.frames.Add(uint64(buf.Frames))
}
