package twi

import (
	"context"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

// Tx writes w to addr and then reads len(r) bytes from it, each phase as its own transaction.
// An empty w with an empty r sends the bare address. The signature matches periph's i2c.Bus.
func (m *Master) Tx(ctx context.Context, addr uint16, w, r []byte) error {
	if addr > MaxAddress {
		return errors.Wrapf(ErrInvalidAddress, "0x%04x", addr)
	}
	if len(w)+1 > len(m.buf) {
		return errors.Wrapf(ErrBufferFull, "%d bytes to write, room for %d", len(w), len(m.buf)-1)
	}
	// Checked up front so an oversized read never leaves the write phase applied.
	if len(r)+1 > len(m.buf) {
		return errors.Wrapf(ErrRequestTooLarge, "%d bytes requested, room for %d", len(r), len(m.buf)-1)
	}

	if len(w) > 0 || len(r) == 0 {
		if err := m.BeginTransmission(byte(addr)); err != nil {
			return err
		}
		if _, err := m.Write(w); err != nil {
			return err
		}
		if err := m.EndTransmission(ctx); err != nil {
			return err
		}
	}
	if len(r) == 0 {
		return nil
	}

	if err := m.RequestFrom(ctx, byte(addr), len(r)); err != nil {
		return err
	}
	for i := range r {
		b, err := m.Receive()
		if err != nil {
			return err
		}
		r[i] = b
	}
	return nil
}

// Probe sends only the write header to addr and reports whether it was acknowledged. An
// absent device is expected while scanning, so failures are only logged at Debug.
func (m *Master) Probe(ctx context.Context, addr byte) error {
	if err := m.BeginTransmission(addr); err != nil {
		return err
	}
	ctx, span := trace.StartSpan(ctx, "twi::Master::Probe")
	defer span.End()
	return m.transfer(ctx, m.buf[:1], m.logger.Debugw)
}

// WriteRegister writes data to a register of a register-organized device: the register
// address first, then the data, in one transaction.
func (m *Master) WriteRegister(ctx context.Context, addr, register byte, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, register)
	w = append(w, data...)
	return m.Tx(ctx, uint16(addr), w, nil)
}

// ReadRegister selects a register with a one-byte write, then reads n bytes from it.
func (m *Master) ReadRegister(ctx context.Context, addr, register byte, n int) ([]byte, error) {
	r := make([]byte, n)
	if err := m.Tx(ctx, uint16(addr), []byte{register}, r); err != nil {
		return nil, err
	}
	return r, nil
}
