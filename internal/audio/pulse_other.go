//go:build !linux

package audio

import "errors"

// PulseDevice is only available on Linux.
type PulseDevice struct {
	Device
}

// NewPulseDevice always fails outside Linux.
func NewPulseDevice(string) (*PulseDevice, error) {
	return nil, errors.New("pulse: only supported on linux")
}

func (d *PulseDevice) Devices() ([]DeviceInfo, error) {
	return nil, errors.New("pulse: only supported on linux")
}
