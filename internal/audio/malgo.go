package audio

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// DeviceInfo names a capture device.
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// MalgoDevice captures from a microphone through miniaudio.
type MalgoDevice struct {
	ctx  *malgo.AllocatedContext
	name string // substring of the device name; empty selects the default

	mu     sync.Mutex
	device *malgo.Device

	tap atomic.Pointer[Tap]
}

// NewMalgoDevice initialises a miniaudio context. Call Close when done.
func NewMalgoDevice(name string) (*MalgoDevice, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &MalgoDevice{ctx: ctx, name: name}, nil
}

// Devices lists the capture devices miniaudio can see.
func (d *MalgoDevice) Devices() ([]DeviceInfo, error) {
	devices, err := d.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("listing capture devices: %w", err)
	}
	infos := make([]DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		infos = append(infos, DeviceInfo{Name: dev.Name(), IsDefault: dev.IsDefault != 0})
	}
	return infos, nil
}

// Open initialises the capture device. An unset rate or channel count is
// left to miniaudio, which then uses the device's native value. Samples are
// float32 unless want asks for int16; miniaudio converts from whatever the
// hardware delivers.
func (d *MalgoDevice) Open(want *Format) (Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}

	format, err := malgoFormat(want)
	if err != nil {
		return Format{}, err
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = format
	cfg.Capture.Channels = 0
	cfg.SampleRate = 0
	cfg.PeriodSizeInFrames = DefaultFramesPerBuffer
	if want != nil {
		cfg.SampleRate = want.SampleRate
		cfg.Capture.Channels = want.Channels
	}

	if d.name != "" {
		id, err := d.lookup(d.name)
		if err != nil {
			return Format{}, err
		}
		cfg.Capture.DeviceID = id.Pointer()
	}

	device, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{Data: d.onData})
	if err != nil {
		return Format{}, fmt.Errorf("initializing capture device: %w", err)
	}
	d.device = device

	return Format{
		SampleRate: device.SampleRate(),
		Channels:   device.CaptureChannels(),
		Kind:       kindFromMalgo(device.CaptureFormat()),
	}, nil
}

func (d *MalgoDevice) lookup(name string) (malgo.DeviceID, error) {
	devices, err := d.ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("listing capture devices: %w", err)
	}
	for _, dev := range devices {
		if strings.Contains(strings.ToLower(dev.Name()), strings.ToLower(name)) {
			return dev.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("no capture device matching %q", name)
}

// malgoFormat picks the sample format to request from miniaudio.
func malgoFormat(want *Format) (malgo.FormatType, error) {
	if want == nil {
		return malgo.FormatF32, nil
	}
	switch want.Kind {
	case KindUnknown, KindFloat32:
		return malgo.FormatF32, nil
	case KindInt16:
		return malgo.FormatS16, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("capture format %s not available from miniaudio", want.Kind)
	}
}

func kindFromMalgo(f malgo.FormatType) SampleKind {
	switch f {
	case malgo.FormatS16:
		return KindInt16
	case malgo.FormatF32:
		return KindFloat32
	default:
		return KindUnknown
	}
}

// Start begins capturing into tap.
func (d *MalgoDevice) Start(tap Tap) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("capture device not opened")
	}
	d.tap.Store(&tap)
	if err := d.device.Start(); err != nil {
		d.tap.Store(nil)
		return fmt.Errorf("starting capture device: %w", err)
	}
	return nil
}

// Stop stops and uninitialises the device. miniaudio does not return from
// Uninit while the data callback is running.
func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return nil
	}
	var err error
	if d.device.IsStarted() {
		err = d.device.Stop()
	}
	d.device.Uninit()
	d.device = nil
	d.tap.Store(nil)
	if err != nil {
		return fmt.Errorf("stopping capture device: %w", err)
	}
	return nil
}

// Close releases the device and the miniaudio context.
func (d *MalgoDevice) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	if d.ctx != nil {
		if err := d.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}

// onData is the miniaudio data callback. pInput holds frameCount captured
// frames in the device format.
func (d *MalgoDevice) onData(_, pInput []byte, frameCount uint32) {
	tap := d.tap.Load()
	if tap == nil {
		return
	}
	(*tap)(RawBuffer{Data: pInput, Frames: frameCount})
}
