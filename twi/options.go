package twi

import "time"

// DefaultBufferSize is the transfer buffer capacity, header included.
const DefaultBufferSize = 18

// OverflowPolicy selects what Send does once the buffer is full.
type OverflowPolicy int

const (
	// OverflowDrop discards the byte and reports success.
	OverflowDrop OverflowPolicy = iota
	// OverflowError discards the byte and returns ErrBufferFull.
	OverflowError
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDrop:
		return "drop"
	case OverflowError:
		return "error"
	}
	return "unknown"
}

// Option configures a Master.
type Option func(*Master)

// WithBufferSize sets the buffer capacity. Sizes below 2 leave no room for payload and are
// raised to 2.
func WithBufferSize(size int) Option {
	return func(m *Master) {
		if size < 2 {
			size = 2
		}
		m.buf = make([]byte, size)
	}
}

// WithOverflowPolicy sets the policy applied by Send once the buffer is full.
func WithOverflowPolicy(policy OverflowPolicy) Option {
	return func(m *Master) {
		m.policy = policy
	}
}

// WithTransferTimeout bounds every transfer. Zero means only the caller's context applies.
func WithTransferTimeout(timeout time.Duration) Option {
	return func(m *Master) {
		m.timeout = timeout
	}
}
