// Package recording drives one dictation cycle at a time: capture audio,
// hand the recording to a transcription engine and publish the result.
//
// A Controller moves between three states:
//
//	Idle --Start--> Recording --Stop--> Processing --done/Cancel--> Idle
//
// Calls made out of turn fail with ErrInvalidTransition. A call made while
// another transition is still running fails with ErrBusy. Neither changes
// the state.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/semaphore"

	"github.com/chaz8081/micscribe/internal/audio"
	"github.com/chaz8081/micscribe/internal/transcribe"
)

var (
	ErrInvalidTransition = errors.New("recording: invalid transition")
	ErrBusy              = errors.New("recording: transition in progress")
	ErrModelUnavailable  = errors.New("recording: model unavailable")
	ErrRecordingTooShort = errors.New("recording: recording too short")
	ErrClosed            = errors.New("recording: controller closed")
)

// State is the controller's position in the recording cycle.
type State int32

const (
	Idle State = iota
	Recording
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Capture is the audio side of the controller. *audio.Session satisfies it.
type Capture interface {
	Start(want *audio.Format) error
	Stop() error
	Snapshot() ([]float32, error)
	Stats() audio.Stats
}

// ModelGate reports whether the transcription model can be used right now.
type ModelGate interface {
	Ready() error
}

// Result is the outcome of one Processing phase.
type Result struct {
	Epoch     uint64
	SessionID string
	Segments  []transcribe.Segment
	Audio     time.Duration // length of the transcribed recording
	Elapsed   time.Duration // time spent in the engine
	Truncated bool          // the recording hit the buffer limit
	Err       error
}

// Text joins the result's segments.
func (r Result) Text() string {
	return transcribe.Text(r.Segments)
}

// Options configures a Controller.
type Options struct {
	// Format is the source format requested from the device; nil means
	// device native.
	Format *audio.Format
	// MinDuration rejects recordings shorter than this.
	MinDuration time.Duration
	// Gate is consulted before every transcription; nil means always ready.
	Gate ModelGate
	// ResultBuffer is the capacity of the Results channel. Defaults to 1.
	ResultBuffer int
	Logger       *slog.Logger
}

// Controller owns the recording state machine.
type Controller struct {
	capture Capture
	engine  transcribe.Engine
	opts    Options
	log     *slog.Logger

	sem *semaphore.Weighted

	mu      sync.Mutex
	state   State
	epoch   uint64
	session string
	cancel  context.CancelFunc
	closed  bool

	results chan Result
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewController returns an Idle controller.
func NewController(capture Capture, engine transcribe.Engine, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ResultBuffer <= 0 {
		opts.ResultBuffer = 1
	}
	return &Controller{
		capture: capture,
		engine:  engine,
		opts:    opts,
		log:     opts.Logger,
		sem:     semaphore.NewWeighted(1),
		results: make(chan Result, opts.ResultBuffer),
		done:    make(chan struct{}),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Epoch returns the number of recordings started so far.
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Results delivers one Result per completed Processing phase. Cancelled
// and superseded transcriptions deliver nothing. The channel is closed by
// Close.
func (c *Controller) Results() <-chan Result {
	return c.results
}

// Stats reports capture counters for the current or last recording.
func (c *Controller) Stats() audio.Stats {
	return c.capture.Stats()
}

// begin serializes transitions and checks the source state.
func (c *Controller) begin(from State, event string) error {
	if !c.sem.TryAcquire(1) {
		return fmt.Errorf("%w: %s", ErrBusy, event)
	}
	c.mu.Lock()
	state, closed := c.state, c.closed
	c.mu.Unlock()
	if closed {
		c.sem.Release(1)
		return ErrClosed
	}
	if state != from {
		c.sem.Release(1)
		return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, event, state)
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start begins a new recording. On failure the controller stays Idle and
// the capture error is returned.
func (c *Controller) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.begin(Idle, "start"); err != nil {
		return err
	}
	defer c.sem.Release(1)

	if err := c.capture.Start(c.opts.Format); err != nil {
		c.log.Warn("capture failed to start", "err", err)
		return err
	}

	c.mu.Lock()
	c.epoch++
	c.session = xid.New().String()
	c.state = Recording
	epoch, session := c.epoch, c.session
	c.mu.Unlock()

	c.log.Info("recording started", "session", session, "epoch", epoch)
	return nil
}

// Stop ends the recording and hands it to the engine. Empty, too short or
// untranscribable recordings return the controller to Idle with an error;
// otherwise it enters Processing and the outcome arrives on Results.
//
// Cancelling ctx after Stop returns does not cancel the transcription; use
// Cancel for that.
func (c *Controller) Stop(ctx context.Context) error {
	if err := c.begin(Recording, "stop"); err != nil {
		return err
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	epoch, session := c.epoch, c.session
	c.mu.Unlock()
	log := c.log.With("session", session, "epoch", epoch)

	if err := c.capture.Stop(); err != nil {
		log.Warn("stopping capture", "err", err)
	}

	samples, err := c.capture.Snapshot()
	truncated := false
	switch {
	case errors.Is(err, audio.ErrBufferOverflow):
		truncated = true
		log.Warn("recording truncated at buffer limit", "samples", len(samples))
	case err != nil:
		c.setState(Idle)
		return fmt.Errorf("recording: snapshot: %w", err)
	}

	stats := c.capture.Stats()
	if stats.Dropped > 0 {
		log.Warn("dropped audio buffers", "dropped", stats.Dropped, "chunks", stats.Chunks)
	}

	if len(samples) == 0 {
		c.setState(Idle)
		return fmt.Errorf("recording: %w", transcribe.ErrNoSamples)
	}
	length := time.Duration(len(samples)) * time.Second / audio.TargetRate
	if length < c.opts.MinDuration {
		c.setState(Idle)
		return fmt.Errorf("%w: %s < %s", ErrRecordingTooShort, length, c.opts.MinDuration)
	}
	if c.opts.Gate != nil {
		if err := c.opts.Gate.Ready(); err != nil {
			c.setState(Idle)
			return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
	}

	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.state = Processing
	c.cancel = cancel
	c.mu.Unlock()

	log.Info("recording stopped", "audio", length, "truncated", truncated)

	c.wg.Add(1)
	go c.transcribe(tctx, Result{
		Epoch:     epoch,
		SessionID: session,
		Audio:     length,
		Truncated: truncated,
	}, samples)
	return nil
}

// Cancel abandons the transcription in progress and returns to Idle. Its
// result, if the engine still produces one, is discarded.
func (c *Controller) Cancel() error {
	if err := c.begin(Processing, "cancel"); err != nil {
		return err
	}
	defer c.sem.Release(1)
	return c.abandon()
}

// abandon cancels the running transcription. The transcription may have
// finished and published its result since begin checked the state.
func (c *Controller) abandon() error {
	c.mu.Lock()
	if c.state != Processing {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: cancel while %s", ErrInvalidTransition, state)
	}
	cancel := c.cancel
	c.cancel = nil
	c.state = Idle
	session := c.session
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.log.Info("transcription cancelled", "session", session)
	return nil
}

func (c *Controller) transcribe(ctx context.Context, res Result, samples []float32) {
	defer c.wg.Done()

	start := time.Now()
	res.Segments, res.Err = c.engine.Transcribe(ctx, samples, audio.TargetRate)
	res.Elapsed = time.Since(start)

	c.mu.Lock()
	if c.state != Processing || c.epoch != res.Epoch {
		c.mu.Unlock()
		c.log.Debug("dropping stale transcription", "session", res.SessionID, "epoch", res.Epoch)
		return
	}
	cancel := c.cancel
	c.cancel = nil
	c.state = Idle
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if res.Err != nil {
		c.log.Error("transcription failed", "session", res.SessionID, "err", res.Err)
	} else {
		c.log.Info("transcription finished", "session", res.SessionID, "segments", len(res.Segments), "took", res.Elapsed)
	}

	select {
	case c.results <- res:
	case <-c.done:
	}
}

// Close stops any recording, cancels any transcription, waits for the
// transcription goroutine and closes Results.
func (c *Controller) Close() error {
	if err := c.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	state, cancel := c.state, c.cancel
	c.cancel = nil
	c.state = Idle
	c.mu.Unlock()

	var err error
	switch state {
	case Recording:
		err = c.capture.Stop()
	case Processing:
		if cancel != nil {
			cancel()
		}
	}

	close(c.done)
	c.wg.Wait()
	close(c.results)
	return err
}
