package twi_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"go.viam.com/test"

	"go.viam.com/tinywire/components/bus/fake"
	"go.viam.com/tinywire/logging"
	"go.viam.com/tinywire/twi"
	"go.viam.com/tinywire/usi"
)

func newSimulatedMaster(t *testing.T) (*twi.Master, *fake.Bus, *fake.RegisterDevice) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	bus := fake.NewBus(logger)
	dev := fake.NewRegisterDevice(map[byte][]byte{0x00: {0x60}})
	bus.AddDevice(0x76, dev)

	engine := usi.New(bus.SCL(), bus.SDA(), logger, usi.WithHalfPeriod(0))
	m := twi.NewMaster(engine, logger)
	test.That(t, m.Begin(context.Background()), test.ShouldBeNil)
	return m, bus, dev
}

func TestSimulatedWriteThenRead(t *testing.T) {
	m, bus, dev := newSimulatedMaster(t)
	ctx := context.Background()

	test.That(t, m.BeginTransmission(0x76), test.ShouldBeNil)
	test.That(t, m.Send(0x20), test.ShouldBeNil)
	test.That(t, m.Send(0xDE), test.ShouldBeNil)
	test.That(t, m.Send(0xAD), test.ShouldBeNil)
	test.That(t, m.EndTransmission(ctx), test.ShouldBeNil)
	test.That(t, dev.Register(0x20, 2), test.ShouldResemble, []byte{0xDE, 0xAD})

	// Point the device back at 0x20 and read both bytes through the buffer.
	test.That(t, m.BeginTransmission(0x76), test.ShouldBeNil)
	test.That(t, m.Send(0x20), test.ShouldBeNil)
	test.That(t, m.EndTransmission(ctx), test.ShouldBeNil)
	test.That(t, m.RequestFrom(ctx, 0x76, 2), test.ShouldBeNil)
	test.That(t, m.Available(), test.ShouldEqual, 2)
	first, err := m.Receive()
	test.That(t, err, test.ShouldBeNil)
	second, err := m.Receive()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, []byte{first, second}, test.ShouldResemble, []byte{0xDE, 0xAD})

	want := []fake.Transaction{
		{Addr: 0x76, Acked: true, Data: []byte{0x20, 0xDE, 0xAD}},
		{Addr: 0x76, Acked: true, Data: []byte{0x20}},
		{Addr: 0x76, Read: true, Acked: true, Data: []byte{0xDE, 0xAD}},
	}
	test.That(t, cmp.Diff(want, bus.Transactions()), test.ShouldBeEmpty)
}

func TestSimulatedMissingDevice(t *testing.T) {
	m, _, _ := newSimulatedMaster(t)

	err := m.Probe(context.Background(), 0x77)
	test.That(t, twi.Code(err), test.ShouldEqual, byte(usi.StatusNoAckOnAddress))
	test.That(t, m.Probe(context.Background(), 0x76), test.ShouldBeNil)
}

func TestRegisters(t *testing.T) {
	m, _, dev := newSimulatedMaster(t)
	ctx := context.Background()

	id, err := m.ReadRegister(ctx, 0x76, 0x00, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, id, test.ShouldResemble, []byte{0x60})

	test.That(t, m.WriteRegister(ctx, 0x76, 0xF4, []byte{0x27, 0xA0}), test.ShouldBeNil)
	test.That(t, dev.Register(0xF4, 2), test.ShouldResemble, []byte{0x27, 0xA0})

	got, err := m.ReadRegister(ctx, 0x76, 0xF4, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []byte{0x27, 0xA0})
}

func TestTxLimits(t *testing.T) {
	m, bus, dev := newSimulatedMaster(t)
	ctx := context.Background()

	err := m.Tx(ctx, 0x76, make([]byte, m.Capacity()), nil)
	test.That(t, errors.Is(err, twi.ErrBufferFull), test.ShouldBeTrue)
	err = m.Tx(ctx, 0x100, nil, nil)
	test.That(t, errors.Is(err, twi.ErrInvalidAddress), test.ShouldBeTrue)
	_, err = m.ReadRegister(ctx, 0x76, 0x00, m.Capacity())
	test.That(t, errors.Is(err, twi.ErrRequestTooLarge), test.ShouldBeTrue)

	// The write phase of an oversized read is never sent.
	err = m.Tx(ctx, 0x76, []byte{0x10, 0xEE}, make([]byte, 64))
	test.That(t, errors.Is(err, twi.ErrRequestTooLarge), test.ShouldBeTrue)
	test.That(t, bus.Transactions(), test.ShouldBeEmpty)
	test.That(t, dev.Register(0x10, 1), test.ShouldResemble, []byte{0x00})
}

func TestFailureLogLevels(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	bus := fake.NewBus(logger)
	bus.AddDevice(0x76, fake.NewRegisterDevice(nil))
	m := twi.NewMaster(usi.New(bus.SCL(), bus.SDA(), logger, usi.WithHalfPeriod(0)), logger)
	ctx := context.Background()
	test.That(t, m.Begin(ctx), test.ShouldBeNil)

	test.That(t, m.Probe(ctx, 0x77), test.ShouldNotBeNil)
	failed := logs.FilterMessage("transfer failed")
	test.That(t, failed.Len(), test.ShouldEqual, 1)
	test.That(t, failed.All()[0].Level, test.ShouldEqual, zapcore.DebugLevel)

	test.That(t, m.BeginTransmission(0x77), test.ShouldBeNil)
	test.That(t, m.EndTransmission(ctx), test.ShouldNotBeNil)
	test.That(t, m.RequestFrom(ctx, 0x77, 1), test.ShouldNotBeNil)
	failed = logs.FilterMessage("transfer failed")
	test.That(t, failed.Len(), test.ShouldEqual, 3)
	for _, entry := range failed.All()[1:] {
		test.That(t, entry.Level, test.ShouldEqual, zapcore.WarnLevel)
	}
}
