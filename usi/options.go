package usi

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Bus timing defaults for standard mode (100 kHz).
const (
	DefaultHalfPeriod     = 5 * time.Microsecond
	DefaultStretchTimeout = 10 * time.Millisecond
)

// Option configures a Master.
type Option func(*Master)

// WithClock replaces the wall clock used for bit delays and the stretch timeout.
func WithClock(clk clock.Clock) Option {
	return func(m *Master) {
		m.clk = clk
	}
}

// WithHalfPeriod sets how long SCL stays in each state. Zero toggles as fast as the lines allow.
func WithHalfPeriod(d time.Duration) Option {
	return func(m *Master) {
		m.halfPeriod = d
	}
}

// WithStretchTimeout bounds how long a slave may hold SCL low. Zero waits until the context
// is done, except during the stop condition, which falls back to DefaultStretchTimeout.
func WithStretchTimeout(d time.Duration) Option {
	return func(m *Master) {
		m.stretchTimeout = d
	}
}

// WithMaxMessage rejects messages longer than n bytes with StatusDataOutOfBound. Zero means
// no limit.
func WithMaxMessage(n int) Option {
	return func(m *Master) {
		m.maxMessage = n
	}
}
