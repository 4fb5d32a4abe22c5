// Package usi is a bit-banged I2C master. It drives two open-drain lines the way an AVR USI
// peripheral does in software: start and stop conditions, MSB-first shifting, ACK/NACK
// sampling and clock stretching. A Master implements twi.Transport.
package usi

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/tinywire/logging"
)

// Line is one open-drain bus wire. Set(true) releases the line to its pull-up and Set(false)
// drives it low. Get samples the actual bus level.
type Line interface {
	Set(high bool) error
	Get() (bool, error)
}

// Master bit-bangs transfers over an SCL and an SDA line.
type Master struct {
	scl    Line
	sda    Line
	logger logging.Logger

	clk            clock.Clock
	halfPeriod     time.Duration
	stretchTimeout time.Duration
	maxMessage     int

	state Status
}

// New returns a Master on the given lines. Call Initialize before the first transfer.
func New(scl, sda Line, logger logging.Logger, opts ...Option) *Master {
	m := &Master{
		scl:            scl,
		sda:            sda,
		logger:         logger,
		clk:            clock.New(),
		halfPeriod:     DefaultHalfPeriod,
		stretchTimeout: DefaultStretchTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize releases both lines so the bus idles high.
func (m *Master) Initialize(ctx context.Context) error {
	if err := m.sda.Set(true); err != nil {
		return errors.Wrap(err, "releasing SDA")
	}
	if err := m.scl.Set(true); err != nil {
		return errors.Wrap(err, "releasing SCL")
	}
	m.state = StatusNoData
	return nil
}

// State returns the status of the most recent transfer. A successful transfer leaves
// StatusNoData.
func (m *Master) State() Status {
	return m.state
}

// Transfer runs one complete transaction. msg[0] is the address header; its low bit selects
// the direction. For writes msg[1:] is sent. For reads len(msg)-1 bytes are received into
// msg[1:], every byte but the last acknowledged.
func (m *Master) Transfer(ctx context.Context, msg []byte) error {
	err := m.run(ctx, msg)
	if err == nil {
		m.state = StatusNoData
		return nil
	}

	m.state = StatusAborted
	var coded interface{ StatusCode() byte }
	if errors.As(err, &coded) {
		m.state = Status(coded.StatusCode())
	}
	m.logger.Debugw("usi transfer failed", "header", headerOf(msg), "len", len(msg), "state", m.state.String())
	return err
}

func headerOf(msg []byte) int {
	if len(msg) == 0 {
		return -1
	}
	return int(msg[0])
}

func (m *Master) run(ctx context.Context, msg []byte) error {
	if len(msg) == 0 {
		return StatusNoData
	}
	if m.maxMessage > 0 && len(msg) > m.maxMessage {
		return StatusDataOutOfBound
	}

	// Nothing was put on the bus if start fails, so there is nothing to stop.
	if err := m.start(ctx); err != nil {
		return err
	}
	err := m.exchange(ctx, msg)
	stopErr := m.stop(ctx)
	if err != nil {
		return err
	}
	return stopErr
}

func (m *Master) exchange(ctx context.Context, msg []byte) error {
	acked, err := m.writeByte(ctx, msg[0])
	if err != nil {
		return err
	}
	if !acked {
		return StatusNoAckOnAddress
	}

	if msg[0]&1 == 0 {
		for _, b := range msg[1:] {
			acked, err := m.writeByte(ctx, b)
			if err != nil {
				return err
			}
			if !acked {
				return StatusNoAckOnData
			}
		}
		return nil
	}

	for i := 1; i < len(msg); i++ {
		b, err := m.readByte(ctx, i < len(msg)-1)
		if err != nil {
			return err
		}
		msg[i] = b
	}
	return nil
}

// start generates a (repeated) start: SDA falls while SCL is high.
func (m *Master) start(ctx context.Context) error {
	if err := m.set(m.sda, true); err != nil {
		return err
	}
	if err := m.releaseSCL(ctx); err != nil {
		return err
	}
	m.delay()

	free, err := m.get(m.sda)
	if err != nil {
		return err
	}
	if !free {
		return StatusMissingStartCon
	}

	if err := m.set(m.sda, false); err != nil {
		return err
	}
	m.delay()
	if err := m.set(m.scl, false); err != nil {
		return err
	}
	return m.set(m.sda, true)
}

// stop generates a stop: SDA rises while SCL is high.
func (m *Master) stop(ctx context.Context) error {
	// SCL may still be high when a bit failed midway.
	if err := m.set(m.scl, false); err != nil {
		return err
	}
	if err := m.set(m.sda, false); err != nil {
		return err
	}
	m.delay()
	// A stop is still attempted after the context is done, it is what frees the bus. Without
	// the context the wait needs its own bound.
	timeout := m.stretchTimeout
	if timeout <= 0 {
		timeout = DefaultStretchTimeout
	}
	if err := m.waitSCL(context.WithoutCancel(ctx), timeout); err != nil {
		return err
	}
	m.delay()
	if err := m.set(m.sda, true); err != nil {
		return err
	}
	m.delay()

	released, err := m.get(m.sda)
	if err != nil {
		return err
	}
	if !released {
		return StatusMissingStopCon
	}
	return nil
}

// writeByte shifts b out MSB first and reports whether the receiver acknowledged it.
func (m *Master) writeByte(ctx context.Context, b byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &statusError{StatusAborted, err}
	}
	for bit := 7; bit >= 0; bit-- {
		if err := m.writeBit(ctx, b&(1<<bit) != 0); err != nil {
			return false, err
		}
	}
	nack, err := m.readBit(ctx)
	if err != nil {
		return false, err
	}
	return !nack, nil
}

// readByte shifts a byte in and answers with ACK when more bytes are wanted, NACK otherwise.
func (m *Master) readByte(ctx context.Context, ack bool) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, &statusError{StatusAborted, err}
	}
	var b byte
	for i := 0; i < 8; i++ {
		high, err := m.readBit(ctx)
		if err != nil {
			return 0, err
		}
		b <<= 1
		if high {
			b |= 1
		}
	}
	if err := m.writeBit(ctx, !ack); err != nil {
		return 0, err
	}
	return b, nil
}

func (m *Master) writeBit(ctx context.Context, high bool) error {
	if err := m.set(m.sda, high); err != nil {
		return err
	}
	m.delay()
	if err := m.releaseSCL(ctx); err != nil {
		return err
	}
	if high {
		level, err := m.get(m.sda)
		if err != nil {
			return err
		}
		if !level {
			return StatusUEDataCol
		}
	}
	m.delay()
	return m.set(m.scl, false)
}

func (m *Master) readBit(ctx context.Context) (bool, error) {
	if err := m.set(m.sda, true); err != nil {
		return false, err
	}
	m.delay()
	if err := m.releaseSCL(ctx); err != nil {
		return false, err
	}
	level, err := m.get(m.sda)
	if err != nil {
		return false, err
	}
	m.delay()
	if err := m.set(m.scl, false); err != nil {
		return false, err
	}
	return level, nil
}

// releaseSCL lets SCL go high and waits out any clock stretching by the slave.
func (m *Master) releaseSCL(ctx context.Context) error {
	return m.waitSCL(ctx, m.stretchTimeout)
}

// waitSCL releases SCL and waits for it to read high. A timeout of zero waits until ctx is
// done.
func (m *Master) waitSCL(ctx context.Context, timeout time.Duration) error {
	if err := m.set(m.scl, true); err != nil {
		return err
	}
	deadline := m.clk.Now().Add(timeout)
	for {
		high, err := m.get(m.scl)
		if err != nil {
			return err
		}
		if high {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return &statusError{StatusAborted, err}
		}
		if timeout > 0 && m.clk.Now().After(deadline) {
			return StatusStretchTimeout
		}
		m.delay()
	}
}

func (m *Master) delay() {
	if m.halfPeriod > 0 {
		m.clk.Sleep(m.halfPeriod)
	}
}

func (m *Master) set(line Line, high bool) error {
	if err := line.Set(high); err != nil {
		return &statusError{StatusAborted, errors.Wrap(err, "setting line")}
	}
	return nil
}

func (m *Master) get(line Line) (bool, error) {
	level, err := line.Get()
	if err != nil {
		return false, &statusError{StatusAborted, errors.Wrap(err, "reading line")}
	}
	return level, nil
}
