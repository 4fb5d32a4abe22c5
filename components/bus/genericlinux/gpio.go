package genericlinux

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// GPIOLine is a GPIO pin used as an open-drain bus wire. It never drives the pin high:
// releasing switches it to an input with the pull-up enabled, so an external pull-up or the
// internal one sets the level and a slave can still hold the line low.
type GPIOLine struct {
	pin gpio.PinIO
}

// NewGPIOLine looks up the named pin, e.g. "GPIO3", and releases it.
func NewGPIOLine(name string) (*GPIOLine, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no global pin found for %q", name)
	}
	return newGPIOLine(pin)
}

func newGPIOLine(pin gpio.PinIO) (*GPIOLine, error) {
	line := &GPIOLine{pin: pin}
	if err := line.Set(true); err != nil {
		return nil, err
	}
	return line, nil
}

// Set releases the line when high is true and pulls it low otherwise.
func (l *GPIOLine) Set(high bool) error {
	if high {
		return l.pin.In(gpio.PullUp, gpio.NoEdge)
	}
	return l.pin.Out(gpio.Low)
}

// Get samples the pin.
func (l *GPIOLine) Get() (bool, error) {
	return l.pin.Read() == gpio.High, nil
}

// Close leaves the line released.
func (l *GPIOLine) Close() error {
	return l.Set(true)
}

func (l *GPIOLine) String() string {
	return l.pin.Name()
}
