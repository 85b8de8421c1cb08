package audio

import "github.com/gordonklaus/portaudio"

// Device describes one selectable audio input.
type Device struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	SampleRate int    `json:"sample_rate"`
	Default    bool   `json:"default"`
}

// InputDevices enumerates capture-capable devices. Enumeration is what
// triggers the platform permission prompt, so callers should treat an
// error as "no devices" rather than a failure.
func InputDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	var defaultName string
	if dev, err := portaudio.DefaultInputDevice(); err == nil && dev != nil {
		defaultName = dev.Name
	}

	var inputs []Device
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		inputs = append(inputs, Device{
			ID:         dev.Name,
			Label:      dev.Name,
			SampleRate: int(dev.DefaultSampleRate),
			Default:    dev.Name == defaultName,
		})
	}
	return inputs, nil
}
