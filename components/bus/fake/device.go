package fake

import "sync"

// Device is the slave side of a simulated bus address.
type Device interface {
	// Start is called once the device's address has been acknowledged.
	Start(read bool)
	// WriteByte receives a byte from the master and reports whether to acknowledge it.
	WriteByte(b byte) bool
	// ReadByte returns the next byte to send to the master.
	ReadByte() byte
	// Stop is called when the transaction ends.
	Stop()
}

// RegisterDevice is a register-organized slave: the first byte of a write selects the
// register, later bytes are stored at the register pointer, and reads return bytes from the
// pointer. The pointer advances after every byte and wraps at 256.
type RegisterDevice struct {
	mu        sync.Mutex
	registers [256]byte
	pointer   byte
	addressed bool
	written   int

	// NackAfter makes the device refuse data after this many bytes in one write transaction.
	// Zero accepts everything.
	NackAfter int
}

// NewRegisterDevice returns a device preloaded with the given register values.
func NewRegisterDevice(registers map[byte][]byte) *RegisterDevice {
	dev := &RegisterDevice{}
	for reg, data := range registers {
		dev.Load(reg, data)
	}
	return dev
}

// Load writes data starting at register reg without going through the bus.
func (d *RegisterDevice) Load(reg byte, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, v := range data {
		d.registers[reg+byte(i)] = v
	}
}

// Register returns n bytes starting at reg.
func (d *RegisterDevice) Register(reg byte, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = d.registers[reg+byte(i)]
	}
	return out
}

// Start implements Device.
func (d *RegisterDevice) Start(read bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Reads continue from the current pointer; a write always selects a new register first.
	d.addressed = false
	d.written = 0
}

// WriteByte implements Device.
func (d *RegisterDevice) WriteByte(b byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NackAfter > 0 && d.written >= d.NackAfter {
		return false
	}
	d.written++
	if !d.addressed {
		d.pointer = b
		d.addressed = true
		return true
	}
	d.registers[d.pointer] = b
	d.pointer++
	return true
}

// ReadByte implements Device.
func (d *RegisterDevice) ReadByte() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.registers[d.pointer]
	d.pointer++
	return b
}

// Stop implements Device.
func (d *RegisterDevice) Stop() {}
