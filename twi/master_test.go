package twi_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/tinywire/logging"
	"go.viam.com/tinywire/testutils/inject"
	"go.viam.com/tinywire/twi"
	"go.viam.com/tinywire/usi"
)

// recorder captures every message handed to the transport.
type recorder struct {
	msgs [][]byte
	fill []byte
	err  error
}

func (r *recorder) transport() *inject.Transport {
	return &inject.Transport{
		InitializeFunc: func(ctx context.Context) error { return nil },
		TransferFunc: func(ctx context.Context, msg []byte) error {
			r.msgs = append(r.msgs, append([]byte(nil), msg...))
			if r.err != nil {
				return r.err
			}
			copy(msg[1:], r.fill)
			return nil
		},
	}
}

func TestHeader(t *testing.T) {
	test.That(t, twi.Header(0x50, twi.Write), test.ShouldEqual, byte(0xA0))
	test.That(t, twi.Header(0x50, twi.Read), test.ShouldEqual, byte(0xA1))

	addr, dir := twi.HeaderAddress(0xA1)
	test.That(t, addr, test.ShouldEqual, byte(0x50))
	test.That(t, dir, test.ShouldEqual, twi.Read)
	test.That(t, dir.String(), test.ShouldEqual, "read")
}

func TestBegin(t *testing.T) {
	called := false
	tr := &inject.Transport{InitializeFunc: func(ctx context.Context) error {
		called = true
		return nil
	}}
	m := twi.NewMaster(tr, logging.NewTestLogger(t))
	test.That(t, m.Begin(context.Background()), test.ShouldBeNil)
	test.That(t, called, test.ShouldBeTrue)

	broken := errors.New("no lines")
	tr.InitializeFunc = func(ctx context.Context) error { return broken }
	err := m.Begin(context.Background())
	test.That(t, errors.Is(err, broken), test.ShouldBeTrue)
}

func TestWriteTransaction(t *testing.T) {
	rec := &recorder{}
	m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t))

	test.That(t, m.BeginTransmission(0x50), test.ShouldBeNil)
	test.That(t, m.Send(0x01), test.ShouldBeNil)
	test.That(t, m.Send(0x02), test.ShouldBeNil)
	test.That(t, m.Staged(), test.ShouldEqual, 2)
	test.That(t, m.EndTransmission(context.Background()), test.ShouldBeNil)

	test.That(t, rec.msgs, test.ShouldResemble, [][]byte{{0xA0, 0x01, 0x02}})
	test.That(t, m.Staged(), test.ShouldEqual, 0)
	test.That(t, m.Stats(), test.ShouldResemble, twi.Stats{Transfers: 1})
}

func TestPayloadRoundTrip(t *testing.T) {
	for size := 0; size < twi.DefaultBufferSize; size++ {
		rec := &recorder{}
		m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t))

		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(0xF0 - i)
		}
		test.That(t, m.BeginTransmission(0x3C), test.ShouldBeNil)
		for _, b := range payload {
			test.That(t, m.Send(b), test.ShouldBeNil)
		}
		test.That(t, m.EndTransmission(context.Background()), test.ShouldBeNil)

		expected := append([]byte{twi.Header(0x3C, twi.Write)}, payload...)
		test.That(t, rec.msgs, test.ShouldResemble, [][]byte{expected})
	}
}

func TestOverflowDrop(t *testing.T) {
	rec := &recorder{}
	m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t), twi.WithBufferSize(4))

	test.That(t, m.BeginTransmission(0x50), test.ShouldBeNil)
	for b := byte(1); b <= 5; b++ {
		test.That(t, m.Send(b), test.ShouldBeNil)
	}
	test.That(t, m.EndTransmission(context.Background()), test.ShouldBeNil)

	test.That(t, rec.msgs, test.ShouldResemble, [][]byte{{0xA0, 1, 2, 3}})
	test.That(t, m.Stats().Dropped, test.ShouldEqual, uint64(2))
}

func TestOverflowError(t *testing.T) {
	rec := &recorder{}
	m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t),
		twi.WithBufferSize(3), twi.WithOverflowPolicy(twi.OverflowError))

	test.That(t, m.BeginTransmission(0x50), test.ShouldBeNil)
	test.That(t, m.Send(0x11), test.ShouldBeNil)
	test.That(t, m.Send(0x22), test.ShouldBeNil)
	test.That(t, m.Send(0x33), test.ShouldBeError, twi.ErrBufferFull)
	test.That(t, m.EndTransmission(context.Background()), test.ShouldBeNil)

	test.That(t, rec.msgs, test.ShouldResemble, [][]byte{{0xA0, 0x11, 0x22}})
}

func TestWriter(t *testing.T) {
	rec := &recorder{}
	m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t), twi.WithBufferSize(4))

	test.That(t, m.BeginTransmission(0x20), test.ShouldBeNil)
	test.That(t, m.WriteByte(0x09), test.ShouldBeNil)
	n, err := m.Write([]byte{1, 2, 3, 4})
	test.That(t, n, test.ShouldEqual, 2)
	test.That(t, err, test.ShouldBeError, twi.ErrBufferFull)
	test.That(t, m.EndTransmission(context.Background()), test.ShouldBeNil)

	test.That(t, rec.msgs, test.ShouldResemble, [][]byte{{0x40, 0x09, 1, 2}})
	test.That(t, m.Stats().Dropped, test.ShouldEqual, uint64(2))
}

func TestEndTransmissionFailure(t *testing.T) {
	rec := &recorder{err: usi.StatusNoAckOnData}
	m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t))

	test.That(t, m.BeginTransmission(0x50), test.ShouldBeNil)
	test.That(t, m.Send(0x01), test.ShouldBeNil)
	err := m.EndTransmission(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, twi.Code(err), test.ShouldEqual, byte(usi.StatusNoAckOnData))
	test.That(t, m.Staged(), test.ShouldEqual, 0)

	// The cursor is back at the header, so only the header goes out.
	rec.err = nil
	test.That(t, m.EndTransmission(context.Background()), test.ShouldBeNil)
	test.That(t, rec.msgs[1], test.ShouldResemble, []byte{0xA0})
	test.That(t, m.Stats(), test.ShouldResemble, twi.Stats{Transfers: 2, Failures: 1})
}

func TestReadTransaction(t *testing.T) {
	rec := &recorder{fill: []byte{0xAA, 0xBB}}
	m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t))

	test.That(t, m.RequestFrom(context.Background(), 0x50, 2), test.ShouldBeNil)
	test.That(t, rec.msgs, test.ShouldResemble, [][]byte{{0xA1, 0x00, 0x00}})

	test.That(t, m.Available(), test.ShouldEqual, 2)
	b, err := m.Receive()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldEqual, byte(0xAA))
	test.That(t, m.Available(), test.ShouldEqual, 1)
	b, err = m.Receive()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldEqual, byte(0xBB))
	test.That(t, m.Available(), test.ShouldEqual, 0)

	_, err = m.Receive()
	test.That(t, err, test.ShouldBeError, twi.ErrOutOfData)
	test.That(t, m.Available(), test.ShouldEqual, 0)
}

func TestAvailableCountsDown(t *testing.T) {
	for n := 0; n < twi.DefaultBufferSize; n++ {
		fill := make([]byte, n)
		for i := range fill {
			fill[i] = byte(i + 1)
		}
		rec := &recorder{fill: fill}
		m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t))
		test.That(t, m.RequestFrom(context.Background(), 0x10, n), test.ShouldBeNil)

		for k := 0; k <= n; k++ {
			test.That(t, m.Available(), test.ShouldEqual, n-k)
			if k == n {
				break
			}
			b, err := m.Receive()
			test.That(t, err, test.ShouldBeNil)
			test.That(t, b, test.ShouldEqual, fill[k])
		}
	}
}

func TestRequestTooLarge(t *testing.T) {
	rec := &recorder{}
	m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t), twi.WithBufferSize(8))

	err := m.RequestFrom(context.Background(), 0x50, 8)
	test.That(t, errors.Is(err, twi.ErrRequestTooLarge), test.ShouldBeTrue)
	test.That(t, len(rec.msgs), test.ShouldEqual, 0)

	test.That(t, m.RequestFrom(context.Background(), 0x50, 7), test.ShouldBeNil)
	test.That(t, len(rec.msgs[0]), test.ShouldEqual, 8)
}

func TestRequestFailure(t *testing.T) {
	rec := &recorder{fill: []byte{0x01, 0x02}}
	m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t))
	test.That(t, m.RequestFrom(context.Background(), 0x50, 2), test.ShouldBeNil)

	rec.err = usi.StatusNoAckOnAddress
	err := m.RequestFrom(context.Background(), 0x50, 2)
	test.That(t, twi.Code(err), test.ShouldEqual, byte(usi.StatusNoAckOnAddress))
	test.That(t, m.Available(), test.ShouldEqual, 0)
	_, err = m.Receive()
	test.That(t, err, test.ShouldBeError, twi.ErrOutOfData)
}

func TestInvalidAddress(t *testing.T) {
	rec := &recorder{}
	m := twi.NewMaster(rec.transport(), logging.NewTestLogger(t))

	test.That(t, errors.Is(m.BeginTransmission(0x80), twi.ErrInvalidAddress), test.ShouldBeTrue)
	test.That(t, errors.Is(m.RequestFrom(context.Background(), 0xFF, 1), twi.ErrInvalidAddress), test.ShouldBeTrue)
	test.That(t, len(rec.msgs), test.ShouldEqual, 0)
}

func TestTransferTimeout(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	tr := &inject.Transport{TransferFunc: func(ctx context.Context, msg []byte) error {
		deadline, hasDeadline = ctx.Deadline()
		return nil
	}}

	m := twi.NewMaster(tr, logging.NewTestLogger(t))
	test.That(t, m.Probe(context.Background(), 0x50), test.ShouldBeNil)
	test.That(t, hasDeadline, test.ShouldBeFalse)

	m = twi.NewMaster(tr, logging.NewTestLogger(t), twi.WithTransferTimeout(time.Second))
	test.That(t, m.Probe(context.Background(), 0x50), test.ShouldBeNil)
	test.That(t, hasDeadline, test.ShouldBeTrue)
	test.That(t, time.Until(deadline), test.ShouldBeLessThanOrEqualTo, time.Second)
}

func TestCode(t *testing.T) {
	test.That(t, twi.Code(nil), test.ShouldEqual, byte(0))
	test.That(t, twi.Code(errors.New("i/o")), test.ShouldEqual, twi.StatusUnknown)
	test.That(t, twi.Code(context.Canceled), test.ShouldEqual, twi.StatusUnknown)
	test.That(t, twi.Code(errors.Wrap(usi.StatusMissingStopCon, "write 0x50")), test.ShouldEqual, byte(0x08))
}
