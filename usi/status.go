package usi

import "fmt"

// Status classifies the outcome of the most recent transfer. The first nine values use the
// numbering of Atmel's AVR310 USI TWI master so codes read the same as on the device.
type Status byte

// Transfer statuses.
const (
	StatusNoData          Status = 0x00 // empty message; also the state after a success
	StatusDataOutOfBound  Status = 0x01 // message longer than the configured maximum
	StatusUEStartCon      Status = 0x02 // unexpected start condition
	StatusUEStopCon       Status = 0x03 // unexpected stop condition
	StatusUEDataCol       Status = 0x04 // SDA low while a 1 was being sent
	StatusNoAckOnData     Status = 0x05
	StatusNoAckOnAddress  Status = 0x06
	StatusMissingStartCon Status = 0x07 // SDA held low, start could not be generated
	StatusMissingStopCon  Status = 0x08 // SDA did not return high after stop
	StatusStretchTimeout  Status = 0x09 // slave held SCL low past the stretch timeout
	StatusAborted         Status = 0x0A // context done or a line could not be driven
)

var statusNames = map[Status]string{
	StatusNoData:          "no data",
	StatusDataOutOfBound:  "data out of bound",
	StatusUEStartCon:      "unexpected start condition",
	StatusUEStopCon:       "unexpected stop condition",
	StatusUEDataCol:       "data collision",
	StatusNoAckOnData:     "no ack on data",
	StatusNoAckOnAddress:  "no ack on address",
	StatusMissingStartCon: "missing start condition",
	StatusMissingStopCon:  "missing stop condition",
	StatusStretchTimeout:  "clock stretch timeout",
	StatusAborted:         "aborted",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%02x", byte(s))
}

// Error makes a Status usable as an error value.
func (s Status) Error() string {
	return "usi: " + s.String()
}

// StatusCode returns the numeric code.
func (s Status) StatusCode() byte {
	return byte(s)
}

// statusError attaches a status to an underlying cause such as ctx.Err().
type statusError struct {
	status Status
	err    error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %v", e.status.Error(), e.err)
}

func (e *statusError) Unwrap() error {
	return e.err
}

func (e *statusError) StatusCode() byte {
	return byte(e.status)
}
