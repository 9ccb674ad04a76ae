package audio

import (
	"errors"
	"sync"
)

// FakeDevice is a scripted Device for tests. Buffers are delivered
// synchronously with Push, or from a background goroutine with Run.
type FakeDevice struct {
	Native   Format
	OpenErr  error
	StartErr error
	StopErr  error

	mu      sync.Mutex
	tap     Tap
	opened  int
	started int
	stopped int
	closed  bool

	stopCh chan struct{}
	feeder sync.WaitGroup
}

// NewFakeDevice returns a fake that reports format f from Open.
func NewFakeDevice(f Format) *FakeDevice {
	return &FakeDevice{Native: f}
}

func (d *FakeDevice) Open(want *Format) (Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return Format{}, d.OpenErr
	}
	d.opened++
	f := d.Native
	if want != nil {
		if want.SampleRate != 0 {
			f.SampleRate = want.SampleRate
		}
		if want.Channels != 0 {
			f.Channels = want.Channels
		}
		if want.Kind != KindUnknown {
			f.Kind = want.Kind
		}
	}
	return f, nil
}

func (d *FakeDevice) Start(tap Tap) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StartErr != nil {
		return d.StartErr
	}
	d.tap = tap
	d.started++
	d.stopCh = make(chan struct{})
	return nil
}

// Stop stops delivery. Goroutines started with Run are not waited for, so
// tests can exercise a tap that races with Stop.
func (d *FakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	d.tap = nil
	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}
	return d.StopErr
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("fake device: already closed")
	}
	d.closed = true
	return nil
}

// Push delivers buf to the installed tap and reports whether one was
// installed.
func (d *FakeDevice) Push(buf RawBuffer) bool {
	d.mu.Lock()
	tap := d.tap
	d.mu.Unlock()
	if tap == nil {
		return false
	}
	tap(buf)
	return true
}

// Run delivers next() repeatedly from a goroutine until the device is
// stopped. The tap captured at Run time keeps being called after Stop until
// the goroutine notices, the way a late hardware callback would.
func (d *FakeDevice) Run(next func() RawBuffer) {
	d.mu.Lock()
	tap, stop := d.tap, d.stopCh
	d.mu.Unlock()
	if tap == nil {
		return
	}
	d.feeder.Add(1)
	go func() {
		defer d.feeder.Done()
		for {
			tap(next())
			select {
			case <-stop:
				return
			default:
			}
		}
	}()
}

// Wait blocks until goroutines started by Run have exited.
func (d *FakeDevice) Wait() {
	d.feeder.Wait()
}

// Counts returns how often Open, Start and Stop were called.
func (d *FakeDevice) Counts() (opened, started, stopped int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened, d.started, d.stopped
}
