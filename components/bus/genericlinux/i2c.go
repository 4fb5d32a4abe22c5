package genericlinux

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"

	"go.viam.com/tinywire/logging"
	"go.viam.com/tinywire/twi"
)

// I2CTransport hands whole transactions to a kernel I2C adapter. The adapter generates the
// start, stop and acknowledge cycles itself, so failures carry no bus status.
type I2CTransport struct {
	bus      i2c.BusCloser
	name     string
	speedKHz int
	logger   logging.Logger
}

// NewI2CTransport opens the named bus, e.g. "1" or "/dev/i2c-1". A positive speedKHz sets the
// bus clock during Initialize.
func NewI2CTransport(name string, speedKHz int, logger logging.Logger) (*I2CTransport, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening i2c bus %q", name)
	}
	return newI2CTransport(bus, name, speedKHz, logger), nil
}

func newI2CTransport(bus i2c.BusCloser, name string, speedKHz int, logger logging.Logger) *I2CTransport {
	return &I2CTransport{bus: bus, name: name, speedKHz: speedKHz, logger: logger}
}

// Initialize sets the bus speed when one was asked for.
func (t *I2CTransport) Initialize(ctx context.Context) error {
	if t.speedKHz <= 0 {
		return nil
	}
	if err := t.bus.SetSpeed(physic.KiloHertz * physic.Frequency(t.speedKHz)); err != nil {
		return errors.Wrapf(err, "setting speed of i2c bus %q", t.name)
	}
	return nil
}

// Transfer runs msg as one transaction. The adapter skips transfers with nothing to move, so a
// header-only message in either direction is sent as a single byte read instead, which is how
// i2cdetect probes.
func (t *I2CTransport) Transfer(ctx context.Context, msg []byte) error {
	if len(msg) == 0 {
		return errors.New("empty message")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, dir := twi.HeaderAddress(msg[0])

	var err error
	switch {
	case len(msg) == 1:
		var scratch [1]byte
		err = t.bus.Tx(uint16(addr), nil, scratch[:])
	case dir == twi.Read:
		err = t.bus.Tx(uint16(addr), nil, msg[1:])
	default:
		err = t.bus.Tx(uint16(addr), msg[1:], nil)
	}
	if err != nil {
		t.logger.Debugw("i2c transfer failed", "bus", t.name, "addr", addr, "dir", dir.String(), "error", err)
		return errors.Wrapf(err, "i2c bus %q", t.name)
	}
	return nil
}

// Close releases the adapter.
func (t *I2CTransport) Close() error {
	return t.bus.Close()
}

func (t *I2CTransport) String() string {
	return fmt.Sprintf("i2c bus %s (%s)", t.name, t.bus)
}
