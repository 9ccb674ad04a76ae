// Package hotkey provides a global hotkey listener using gohook.
// It supports "hold" mode (press to start, release to stop) and
// "toggle" mode (press to start, press again to stop).
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType indicates whether recording should start or stop.
type EventType int

const (
	// EventStart signals that the hotkey was activated (start recording).
	EventStart EventType = iota
	// EventStop signals that the hotkey was deactivated (stop recording).
	EventStop
)

func (t EventType) String() string {
	if t == EventStop {
		return "stop"
	}
	return "start"
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener manages a global hotkey and emits start/stop events.
type Listener struct {
	keys []string
	mode string // "hold" or "toggle"

	// recording reports whether a recording is in progress. Toggle mode
	// asks it on every press, so a start that failed downstream does not
	// leave the listener out of step.
	recording func() bool

	mu   sync.Mutex
	held bool // hold mode: combo is down
	on   bool // toggle mode fallback when recording is nil

	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewListener creates a Listener for the given key combo and mode.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "r"]).
// mode must be "hold" or "toggle". recording may be nil, in which case
// toggle mode alternates on its own.
func NewListener(keys []string, mode string, recording func() bool) *Listener {
	return &Listener{
		keys:      keys,
		mode:      mode,
		recording: recording,
		ch:        make(chan Event, 16),
		done:      make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events.
// The channel is closed when Start returns.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.press() })
	if l.mode != "toggle" {
		hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.release() })
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// press handles the combo going down. Key repeat in hold mode is ignored.
func (l *Listener) press() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mode == "toggle" {
		active := l.on
		if l.recording != nil {
			active = l.recording()
		}
		if active {
			l.emit(EventStop)
		} else {
			l.emit(EventStart)
		}
		l.on = !active
		return
	}

	if l.held {
		return
	}
	l.held = true
	l.emit(EventStart)
}

// release handles the combo going up in hold mode.
func (l *Listener) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	l.held = false
	l.emit(EventStop)
}

func (l *Listener) emit(t EventType) {
	select {
	case l.ch <- Event{Type: t}:
	default: // don't block the hook thread if nobody is reading
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
