package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/tinywire/twi"
)

// Supported bus backends.
const (
	// BackendUSI bit-bangs the bus over two GPIO pins.
	BackendUSI = "usi"
	// BackendLinux uses a kernel I2C adapter.
	BackendLinux = "linux"
	// BackendFake bit-bangs a simulated bus with the configured devices.
	BackendFake = "fake"
)

// BusConfig describes one bus and the master that drives it.
type BusConfig struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`

	// BackendLinux
	Bus      string `json:"bus,omitempty"`
	SpeedKHz int    `json:"speed_khz,omitempty"`

	// BackendUSI
	SCLPin string `json:"scl_pin,omitempty"`
	SDAPin string `json:"sda_pin,omitempty"`

	// BackendUSI and BackendFake
	HalfPeriod     time.Duration `json:"half_period,omitempty"`
	StretchTimeout time.Duration `json:"stretch_timeout,omitempty"`

	// BackendFake
	Devices []FakeDeviceConfig `json:"devices,omitempty"`

	BufferSize      int           `json:"buffer_size,omitempty"`
	OverflowPolicy  string        `json:"overflow_policy,omitempty"`
	TransferTimeout time.Duration `json:"transfer_timeout,omitempty"`
}

// FakeDeviceConfig is a register device attached to a fake bus. Register keys are register
// addresses in any base strconv understands, e.g. "0xd0".
type FakeDeviceConfig struct {
	Address   int               `json:"address"`
	Registers map[string][]byte `json:"registers,omitempty"`
	NackAfter int               `json:"nack_after,omitempty"`
	Stretch   int               `json:"stretch,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *BusConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	switch config.Backend {
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "backend")
	case BackendUSI:
		if config.SCLPin == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "scl_pin")
		}
		if config.SDAPin == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "sda_pin")
		}
	case BackendLinux:
		if config.Bus == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "bus")
		}
		if config.SpeedKHz < 0 {
			return utils.NewConfigValidationError(path, errors.New("speed_khz cannot be negative"))
		}
	case BackendFake:
		for idx := range config.Devices {
			if err := config.Devices[idx].Validate(fmt.Sprintf("%s.devices.%d", path, idx)); err != nil {
				return err
			}
		}
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unsupported backend %q", config.Backend))
	}

	if config.BufferSize != 0 && config.BufferSize < 2 {
		return utils.NewConfigValidationError(path, errors.New("buffer_size must leave room for a header and a byte"))
	}
	if _, err := config.Policy(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if config.HalfPeriod < 0 || config.StretchTimeout < 0 || config.TransferTimeout < 0 {
		return utils.NewConfigValidationError(path, errors.New("durations cannot be negative"))
	}
	return nil
}

// Policy parses OverflowPolicy; empty means drop.
func (config *BusConfig) Policy() (twi.OverflowPolicy, error) {
	switch config.OverflowPolicy {
	case "", "drop":
		return twi.OverflowDrop, nil
	case "error":
		return twi.OverflowError, nil
	}
	return twi.OverflowDrop, errors.Errorf("unknown overflow_policy %q", config.OverflowPolicy)
}

// MasterOptions returns the twi.Master options the config asks for.
func (config *BusConfig) MasterOptions() []twi.Option {
	var opts []twi.Option
	if config.BufferSize != 0 {
		opts = append(opts, twi.WithBufferSize(config.BufferSize))
	}
	if policy, err := config.Policy(); err == nil {
		opts = append(opts, twi.WithOverflowPolicy(policy))
	}
	if config.TransferTimeout != 0 {
		opts = append(opts, twi.WithTransferTimeout(config.TransferTimeout))
	}
	return opts
}

// Validate ensures all parts of the config are valid.
func (config *FakeDeviceConfig) Validate(path string) error {
	if config.Address < 0 || config.Address > twi.MaxAddress {
		return utils.NewConfigValidationError(path, errors.Errorf("address 0x%x is not a 7-bit address", config.Address))
	}
	if _, err := config.RegisterMap(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// RegisterMap converts Registers to numeric register addresses.
func (config *FakeDeviceConfig) RegisterMap() (map[byte][]byte, error) {
	out := make(map[byte][]byte, len(config.Registers))
	for key, data := range config.Registers {
		reg, err := strconv.ParseUint(key, 0, 8)
		if err != nil {
			return nil, errors.Wrapf(err, "register %q", key)
		}
		out[byte(reg)] = data
	}
	return out, nil
}
