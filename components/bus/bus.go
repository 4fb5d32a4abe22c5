// Package bus assembles a twi.Master and the transport behind it from a bus configuration.
package bus

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/tinywire/components/bus/fake"
	"go.viam.com/tinywire/components/bus/genericlinux"
	"go.viam.com/tinywire/config"
	"go.viam.com/tinywire/logging"
	"go.viam.com/tinywire/twi"
	"go.viam.com/tinywire/usi"
)

// NewMaster builds the transport cfg describes, wraps it in a Master and begins it. The
// returned closer releases the underlying pins or adapter.
func NewMaster(ctx context.Context, cfg *config.BusConfig, logger logging.Logger) (*twi.Master, io.Closer, error) {
	if err := cfg.Validate(cfg.Name); err != nil {
		return nil, nil, err
	}
	logger = logger.Sublogger(cfg.Name)

	transport, closer, err := newTransport(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	master := twi.NewMaster(transport, logger, cfg.MasterOptions()...)
	if err := master.Begin(ctx); err != nil {
		return nil, nil, multierr.Combine(err, closer.Close())
	}
	logger.Debugw("bus ready", "backend", cfg.Backend, "capacity", master.Capacity())
	return master, closer, nil
}

func newTransport(cfg *config.BusConfig, logger logging.Logger) (twi.Transport, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendUSI:
		scl, err := genericlinux.NewGPIOLine(cfg.SCLPin)
		if err != nil {
			return nil, nil, errors.Wrap(err, "scl_pin")
		}
		sda, err := genericlinux.NewGPIOLine(cfg.SDAPin)
		if err != nil {
			return nil, nil, multierr.Combine(errors.Wrap(err, "sda_pin"), scl.Close())
		}
		opts := []usi.Option{}
		if cfg.HalfPeriod != 0 {
			opts = append(opts, usi.WithHalfPeriod(cfg.HalfPeriod))
		}
		if cfg.StretchTimeout != 0 {
			opts = append(opts, usi.WithStretchTimeout(cfg.StretchTimeout))
		}
		return usi.New(scl, sda, logger.Sublogger("usi"), opts...), closers{scl, sda}, nil

	case config.BackendLinux:
		transport, err := genericlinux.NewI2CTransport(cfg.Bus, cfg.SpeedKHz, logger.Sublogger("i2c"))
		if err != nil {
			return nil, nil, err
		}
		return transport, transport, nil

	case config.BackendFake:
		sim, err := newFakeBus(cfg, logger.Sublogger("fake"))
		if err != nil {
			return nil, nil, err
		}
		// The simulator has no electrical timing, so only a configured half period is applied.
		opts := []usi.Option{usi.WithHalfPeriod(cfg.HalfPeriod)}
		if cfg.StretchTimeout != 0 {
			opts = append(opts, usi.WithStretchTimeout(cfg.StretchTimeout))
		}
		return usi.New(sim.SCL(), sim.SDA(), logger.Sublogger("usi"), opts...), closers{}, nil
	}
	return nil, nil, errors.Errorf("unsupported backend %q", cfg.Backend)
}

// newFakeBus attaches a register device for every configured one. The simulator stretches
// per bus rather than per device, so the largest configured stretch applies to all.
func newFakeBus(cfg *config.BusConfig, logger logging.Logger) (*fake.Bus, error) {
	sim := fake.NewBus(logger)
	stretch := 0
	for _, devCfg := range cfg.Devices {
		regs, err := devCfg.RegisterMap()
		if err != nil {
			return nil, err
		}
		dev := fake.NewRegisterDevice(regs)
		dev.NackAfter = devCfg.NackAfter
		sim.AddDevice(byte(devCfg.Address), dev)
		if devCfg.Stretch > stretch {
			stretch = devCfg.Stretch
		}
	}
	sim.SetStretch(stretch)
	return sim, nil
}

type closers []io.Closer

func (cs closers) Close() error {
	var err error
	for _, c := range cs {
		err = multierr.Append(err, c.Close())
	}
	return err
}
