// Package fake simulates an open-drain I2C bus with slave devices attached, for driving the
// usi engine without hardware. Lines handed out by a Bus implement usi.Line; every level
// change made by the master is decoded into start/stop conditions and clock edges that step
// the slave side.
package fake

import (
	"sync"

	"go.viam.com/tinywire/logging"
)

// Transaction is one addressed exchange seen on the bus, from start to stop (or repeated start).
type Transaction struct {
	Addr  byte
	Read  bool
	Acked bool // address was acknowledged
	Data  []byte
}

type slaveState int

const (
	stateIdle slaveState = iota
	stateAddress
	stateAddressAck
	stateReceive
	stateReceiveAck
	stateTransmit
	stateTransmitAck
	stateIgnore
)

// Bus is a simulated bus. All methods are safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	logger logging.Logger

	// What the master is doing with each line; true means released.
	masterSCL bool
	masterSDA bool
	slaveSDA  bool
	holdSCL   bool
	holdSDA   bool

	// Resolved bus levels.
	scl bool
	sda bool

	stretchPerClock int
	stretch         int
	onPoll          func()

	devices map[byte]Device

	state       slaveState
	shift       byte
	bits        int
	active      Device
	txByte      byte
	masterAcked bool
	current     *Transaction
	log         []Transaction
}

// NewBus returns an idle bus with no devices.
func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		logger:    logger,
		masterSCL: true,
		masterSDA: true,
		slaveSDA:  true,
		scl:       true,
		sda:       true,
		devices:   map[byte]Device{},
	}
}

// AddDevice attaches dev at the 7-bit address addr.
func (b *Bus) AddDevice(addr byte, dev Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[addr] = dev
}

// SetStretch makes addressed slaves hold SCL low for n polls of the clock line after every
// release by the master.
func (b *Bus) SetStretch(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stretchPerClock = n
}

// HoldSCL pins SCL low, like a slave that never stops stretching.
func (b *Bus) HoldSCL(hold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdSCL = hold
	b.update()
}

// HoldSDA pins SDA low, like a slave stuck mid-byte.
func (b *Bus) HoldSDA(hold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdSDA = hold
	b.update()
}

// OnPoll registers fn to run every time SCL is sampled low. Tests use it to advance a mock
// clock while the master waits out a stretch.
func (b *Bus) OnPoll(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPoll = fn
}

// Transactions returns the completed transactions, oldest first.
func (b *Bus) Transactions() []Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Transaction, len(b.log))
	copy(out, b.log)
	return out
}

// SCL returns the clock line.
func (b *Bus) SCL() *Line {
	return &Line{bus: b, clock: true}
}

// SDA returns the data line.
func (b *Bus) SDA() *Line {
	return &Line{bus: b}
}

// Line is one end of a simulated wire as seen by the master.
type Line struct {
	bus   *Bus
	clock bool
}

// Set releases (true) or drives low (false) the line.
func (l *Line) Set(high bool) error {
	l.bus.mu.Lock()
	defer l.bus.mu.Unlock()
	if l.clock {
		if high && !l.bus.masterSCL && l.bus.state != stateIdle && l.bus.state != stateIgnore {
			l.bus.stretch = l.bus.stretchPerClock
		}
		l.bus.masterSCL = high
	} else {
		l.bus.masterSDA = high
	}
	l.bus.update()
	return nil
}

// Get samples the resolved bus level.
func (l *Line) Get() (bool, error) {
	l.bus.mu.Lock()
	if !l.clock {
		defer l.bus.mu.Unlock()
		return l.bus.sda, nil
	}

	if l.bus.stretch > 0 {
		l.bus.stretch--
		if l.bus.stretch == 0 {
			l.bus.update()
		}
	}
	level := l.bus.scl
	poll := l.bus.onPoll
	l.bus.mu.Unlock()

	if !level && poll != nil {
		poll()
	}
	return level, nil
}

// update resolves both wires and dispatches whatever condition the change produced. Must be
// called with mu held.
func (b *Bus) update() {
	scl := b.masterSCL && !b.holdSCL && b.stretch == 0
	sda := b.masterSDA && b.slaveSDA && !b.holdSDA
	prevSCL, prevSDA := b.scl, b.sda
	b.scl, b.sda = scl, sda

	switch {
	case prevSCL && scl && prevSDA && !sda:
		b.onStart()
	case prevSCL && scl && !prevSDA && sda:
		b.onStop()
	case !prevSCL && scl:
		b.onRise()
	case prevSCL && !scl:
		b.onFall()
	}

	// The slave only moves SDA while SCL is low, so this never reads as a condition.
	b.sda = b.masterSDA && b.slaveSDA && !b.holdSDA
}

func (b *Bus) onStart() {
	b.finish()
	b.state = stateAddress
	b.shift = 0
	b.bits = 0
	b.slaveSDA = true
}

func (b *Bus) onStop() {
	b.finish()
	b.state = stateIdle
	b.slaveSDA = true
}

func (b *Bus) finish() {
	if b.current == nil {
		return
	}
	if b.active != nil {
		b.active.Stop()
	}
	b.log = append(b.log, *b.current)
	b.logger.Debugw("fake bus transaction", "addr", b.current.Addr, "read", b.current.Read,
		"acked", b.current.Acked, "data", b.current.Data)
	b.current = nil
	b.active = nil
}

func (b *Bus) onRise() {
	switch b.state {
	case stateAddress, stateReceive:
		b.shift <<= 1
		if b.sda {
			b.shift |= 1
		}
		b.bits++
	case stateTransmitAck:
		b.masterAcked = !b.sda
	default:
	}
}

func (b *Bus) onFall() {
	switch b.state {
	case stateAddress:
		if b.bits < 8 {
			return
		}
		addr, read := b.shift>>1, b.shift&1 == 1
		b.current = &Transaction{Addr: addr, Read: read}
		dev, ok := b.devices[addr]
		if !ok {
			b.state = stateIgnore
			return
		}
		b.active = dev
		b.current.Acked = true
		dev.Start(read)
		b.slaveSDA = false
		b.state = stateAddressAck
	case stateAddressAck:
		b.slaveSDA = true
		if b.current.Read {
			b.loadTx()
			return
		}
		b.state = stateReceive
		b.shift = 0
		b.bits = 0
	case stateReceive:
		if b.bits < 8 {
			return
		}
		b.current.Data = append(b.current.Data, b.shift)
		if !b.active.WriteByte(b.shift) {
			b.state = stateIgnore
			return
		}
		b.slaveSDA = false
		b.state = stateReceiveAck
	case stateReceiveAck:
		b.slaveSDA = true
		b.state = stateReceive
		b.shift = 0
		b.bits = 0
	case stateTransmit:
		b.bits++
		if b.bits < 8 {
			b.slaveSDA = b.txByte&(0x80>>b.bits) != 0
			return
		}
		b.slaveSDA = true
		b.current.Data = append(b.current.Data, b.txByte)
		b.state = stateTransmitAck
	case stateTransmitAck:
		if b.masterAcked {
			b.loadTx()
			return
		}
		b.state = stateIgnore
	default:
	}
}

// loadTx fetches the next byte from the device and puts its MSB on SDA.
func (b *Bus) loadTx() {
	b.txByte = b.active.ReadByte()
	b.bits = 0
	b.slaveSDA = b.txByte&0x80 != 0
	b.state = stateTransmit
}
