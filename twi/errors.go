package twi

import (
	"github.com/pkg/errors"
)

var (
	// ErrBufferFull is returned by Send under OverflowError, and by Write whenever a short
	// write occurs.
	ErrBufferFull = errors.New("twi: transfer buffer full")
	// ErrOutOfData is returned by Receive once every requested byte has been consumed.
	ErrOutOfData = errors.New("twi: no received bytes left")
	// ErrRequestTooLarge is returned by RequestFrom when the header plus the requested bytes
	// do not fit in the transfer buffer.
	ErrRequestTooLarge = errors.New("twi: request exceeds transfer buffer")
	// ErrInvalidAddress is returned for slave addresses that do not fit in seven bits.
	ErrInvalidAddress = errors.New("twi: slave address out of 7-bit range")
)

// StatusUnknown is the code reported for failures that carry no transport status, such as a
// cancelled context or an operating system error.
const StatusUnknown byte = 0xFF

// StatusCoder is implemented by transport errors that carry a numeric bus status.
type StatusCoder interface {
	StatusCode() byte
}

// Code returns the status code of an error returned by the master: 0 for nil, the transport
// status when one is attached, and StatusUnknown otherwise.
func Code(err error) byte {
	if err == nil {
		return 0
	}
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.StatusCode()
	}
	return StatusUnknown
}
