// Package twi stages bytes for master-mode I2C (TWI) transactions and hands each assembled
// transaction to a Transport, typically the bit-banged USI engine.
//
// A Master is used the way Wire-style libraries are: BeginTransmission, Send, EndTransmission
// for writes and RequestFrom, Receive, Available for reads. It is not safe for concurrent use;
// a transaction spans several calls and callers must serialize access to a Master.
package twi

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"

	"go.viam.com/tinywire/logging"
)

// Master owns one transfer buffer and its cursors.
type Master struct {
	transport Transport
	logger    logging.Logger

	policy  OverflowPolicy
	timeout time.Duration

	// buf[0] holds the header. idx is the position of the last staged byte, so idx+1 bytes go
	// out on EndTransmission.
	buf []byte
	idx int

	// avail is the byte count of the last read; lastRead counts how many were consumed.
	avail    int
	lastRead int

	transfers atomic.Uint64
	failures  atomic.Uint64
	dropped   atomic.Uint64
}

// Stats are running totals for a Master.
type Stats struct {
	Transfers uint64
	Failures  uint64
	Dropped   uint64
}

// NewMaster returns a Master that transfers through transport.
func NewMaster(transport Transport, logger logging.Logger, opts ...Option) *Master {
	m := &Master{
		transport: transport,
		logger:    logger,
		buf:       make([]byte, DefaultBufferSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin initializes the transport. It is meant to be called once before any transaction.
func (m *Master) Begin(ctx context.Context) error {
	if err := m.transport.Initialize(ctx); err != nil {
		return errors.Wrap(err, "initializing transport")
	}
	return nil
}

// Capacity returns the buffer size, header included.
func (m *Master) Capacity() int {
	return len(m.buf)
}

// BeginTransmission starts staging a write to addr.
func (m *Master) BeginTransmission(addr byte) error {
	if addr > MaxAddress {
		return errors.Wrapf(ErrInvalidAddress, "0x%02x", addr)
	}
	m.idx = 0
	m.buf[0] = Header(addr, Write)
	return nil
}

// Send stages one byte after the header and any bytes already staged. A full buffer drops the
// byte; under OverflowError the drop is also reported as ErrBufferFull.
func (m *Master) Send(data byte) error {
	if m.idx+1 >= len(m.buf) {
		m.dropped.Inc()
		if m.policy == OverflowError {
			return ErrBufferFull
		}
		return nil
	}
	m.idx++
	m.buf[m.idx] = data
	return nil
}

// WriteByte implements io.ByteWriter.
func (m *Master) WriteByte(c byte) error {
	return m.Send(c)
}

// Write implements io.Writer. Whatever does not fit is dropped and reported as ErrBufferFull
// regardless of the overflow policy, since io.Writer requires an error on short writes.
func (m *Master) Write(p []byte) (int, error) {
	for i, c := range p {
		if m.idx+1 >= len(m.buf) {
			m.dropped.Add(uint64(len(p) - i))
			return i, ErrBufferFull
		}
		m.idx++
		m.buf[m.idx] = c
	}
	return len(p), nil
}

// Staged returns the number of payload bytes waiting for EndTransmission.
func (m *Master) Staged() int {
	return m.idx
}

// EndTransmission sends the header and staged bytes as one transaction. The write cursor is
// reset whether or not the transfer succeeds. Use Code to get the bus status of a failure.
func (m *Master) EndTransmission(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "twi::Master::EndTransmission")
	defer span.End()

	msg := m.buf[:m.idx+1]
	err := m.transfer(ctx, msg, m.logger.Warnw)
	m.idx = 0
	return err
}

// RequestFrom reads n bytes from addr into the buffer. On success Available reports n and
// Receive hands the bytes out in order. On failure nothing is available.
func (m *Master) RequestFrom(ctx context.Context, addr byte, n int) error {
	if addr > MaxAddress {
		return errors.Wrapf(ErrInvalidAddress, "0x%02x", addr)
	}
	if n < 0 || n+1 > len(m.buf) {
		return errors.Wrapf(ErrRequestTooLarge, "%d bytes requested, room for %d", n, len(m.buf)-1)
	}
	ctx, span := trace.StartSpan(ctx, "twi::Master::RequestFrom")
	defer span.End()

	m.lastRead = 0
	m.avail = n
	m.buf[0] = Header(addr, Read)
	if err := m.transfer(ctx, m.buf[:n+1], m.logger.Warnw); err != nil {
		m.avail = 0
		return err
	}
	return nil
}

// Receive returns the next unread byte from the last RequestFrom.
func (m *Master) Receive() (byte, error) {
	if m.lastRead >= m.avail {
		return 0, ErrOutOfData
	}
	// The first received byte sits in buf[1], behind the header slot.
	m.lastRead++
	return m.buf[m.lastRead], nil
}

// Available returns how many received bytes have not been consumed yet.
func (m *Master) Available() int {
	return m.avail - m.lastRead
}

// Stats returns a snapshot of the running totals.
func (m *Master) Stats() Stats {
	return Stats{
		Transfers: m.transfers.Load(),
		Failures:  m.failures.Load(),
		Dropped:   m.dropped.Load(),
	}
}

// transfer hands msg to the transport. Failures are reported through logFailure.
func (m *Master) transfer(ctx context.Context, msg []byte, logFailure func(string, ...interface{})) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	addr, dir := HeaderAddress(msg[0])
	m.transfers.Inc()
	err := m.transport.Transfer(ctx, msg)
	if err != nil {
		m.failures.Inc()
		logFailure("transfer failed", "addr", addr, "dir", dir.String(), "len", len(msg), "status", Code(err), "error", err)
		return errors.Wrapf(err, "%s 0x%02x", dir, addr)
	}
	m.logger.Debugw("transfer", "addr", addr, "dir", dir.String(), "len", len(msg))
	return nil
}
