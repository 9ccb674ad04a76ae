//go:build linux

package audio

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

// PulseDevice records from a PulseAudio (or PipeWire-pulse) source as
// 16-bit integers at the source's native rate.
type PulseDevice struct {
	client *pulse.Client
	name   string

	mu      sync.Mutex
	stream  *pulse.RecordStream
	source  *pulse.Source
	format  Format
	scratch []byte

	tap atomic.Pointer[Tap]
}

// NewPulseDevice connects to the PulseAudio server. name selects a source
// by substring; empty selects the default source.
func NewPulseDevice(name string) (*PulseDevice, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &PulseDevice{client: c, name: name}, nil
}

// Devices lists the recording sources.
func (d *PulseDevice) Devices() ([]DeviceInfo, error) {
	sources, err := d.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	def, _ := d.client.DefaultSource()
	infos := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		infos = append(infos, DeviceInfo{
			Name:      s.Name(),
			IsDefault: def != nil && def.ID() == s.ID(),
		})
	}
	return infos, nil
}

func (d *PulseDevice) findSource() (*pulse.Source, error) {
	if d.name == "" {
		return d.client.DefaultSource()
	}
	sources, err := d.client.ListSources()
	if err != nil {
		return nil, err
	}
	for _, s := range sources {
		if strings.Contains(strings.ToLower(s.Name()), strings.ToLower(d.name)) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no pulse source matching %q", d.name)
}

// Open creates the record stream. PulseAudio converts to whatever rate is
// asked for; with no preference the source's own rate is used. More than
// two channels are requested as stereo.
func (d *PulseDevice) Open(want *Format) (Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closeStream()

	source, err := d.findSource()
	if err != nil {
		return Format{}, fmt.Errorf("pulse source: %w", err)
	}

	rate := uint32(source.SampleRate())
	channels := uint32(len(source.Channels()))
	if want != nil {
		if want.Kind != KindUnknown && want.Kind != KindInt16 {
			return Format{}, fmt.Errorf("pulse: capture format %s not supported", want.Kind)
		}
		if want.SampleRate != 0 {
			rate = want.SampleRate
		}
		if want.Channels != 0 {
			channels = want.Channels
		}
	}

	opts := []pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordSampleRate(int(rate)),
		pulse.RecordLatency(0.05),
	}
	if channels >= 2 {
		opts = append(opts, pulse.RecordStereo)
		channels = 2
	} else {
		opts = append(opts, pulse.RecordMono)
		channels = 1
	}

	stream, err := d.client.NewRecord(pulse.Int16Writer(d.onData), opts...)
	if err != nil {
		return Format{}, fmt.Errorf("pulse record: %w", err)
	}

	d.stream = stream
	d.source = source
	d.format = Format{SampleRate: rate, Channels: channels, Kind: KindInt16}
	return d.format, nil
}

func (d *PulseDevice) Start(tap Tap) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return fmt.Errorf("pulse: stream not opened")
	}
	d.tap.Store(&tap)
	d.stream.Start()
	return nil
}

func (d *PulseDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeStream()
	return nil
}

// closeStream stops and closes the stream; the caller holds mu.
func (d *PulseDevice) closeStream() {
	if d.stream == nil {
		return
	}
	d.tap.Store(nil)
	d.stream.Stop()
	d.stream.Close()
	d.stream = nil
}

func (d *PulseDevice) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	d.client.Close()
	return nil
}

// onData runs on the pulse client's goroutine. The scratch slice is only
// touched here.
func (d *PulseDevice) onData(buf []int16) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	tap := d.tap.Load()
	if tap == nil {
		return len(buf), nil
	}
	if cap(d.scratch) < len(buf)*2 {
		d.scratch = make([]byte, len(buf)*2)
	}
	data := d.scratch[:len(buf)*2]
	for i, s := range buf {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	frames := uint32(len(buf)) / d.format.Channels
	(*tap)(RawBuffer{Data: data, Frames: frames})
	return len(buf), nil
}
