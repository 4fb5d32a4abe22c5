package twi

import "context"

// Transport performs one addressed bus transaction. msg[0] is the header byte; for writes the
// remaining bytes are sent, for reads they are overwritten with the received data. Transfer
// blocks until the transaction completes or ctx is done.
type Transport interface {
	Initialize(ctx context.Context) error
	Transfer(ctx context.Context, msg []byte) error
}

// Direction is the R/W bit that follows the seven address bits in a header.
type Direction byte

// Header directions.
const (
	Write Direction = 0
	Read  Direction = 1
)

// AddressShift is how far the slave address is shifted to make room for the direction bit.
const AddressShift = 1

// MaxAddress is the largest 7-bit slave address.
const MaxAddress = 0x7F

// Header builds the first byte of a transaction.
func Header(addr byte, dir Direction) byte {
	return addr<<AddressShift | byte(dir)
}

// HeaderAddress splits a header byte back into address and direction.
func HeaderAddress(header byte) (byte, Direction) {
	return header >> AddressShift, Direction(header & 1)
}

func (dir Direction) String() string {
	if dir == Read {
		return "read"
	}
	return "write"
}
