package stub

import (
	"sync"

	"periph.io/x/conn/v3/gpio"

	"github.com/ystepanoff/ookctl/driver/rfm69"
	proto "github.com/ystepanoff/ookctl/protocol"
)

// Chip simulates an RFM69 register file behind the SPI and reset line
// contracts of the rfm69 driver, for host-side testing and dry runs.
//
// Mode changes complete instantly. Entering TX moves the FIFO contents to
// the tx log and raises PacketSent. Frames queued with InjectRx show up in
// the FIFO while the chip is in RX.
type Chip struct {
	mu sync.Mutex

	regs   [0x80]byte
	fifo   []byte
	rxCur  []byte
	rxBuf  ringBuffer
	txBuf  ringBuffer
	modes  []proto.Mode
	resetH bool

	// StuckMode keeps ModeReady low after a mode change.
	StuckMode bool
	// StuckTx never raises PacketSent.
	StuckTx bool
}

func New() *Chip {
	c := &Chip{}
	c.powerOn()
	return c
}

func (c *Chip) powerOn() {
	c.regs = [0x80]byte{}
	c.regs[rfm69.RegOpMode] = byte(proto.ModeStandby)
	c.regs[rfm69.RegVersion] = rfm69.ChipVersion
	c.regs[rfm69.RegPaLevel] = 0x9F
	c.regs[rfm69.RegOcp] = 0x1A
	c.regs[rfm69.RegIrqFlags1] = rfm69.IrqModeReady
	c.fifo = c.fifo[:0]
	c.rxCur = nil
}

// Tx implements rfm69.Conn.
func (c *Chip) Tx(w, r []byte) error {
	if len(w) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	addr := w[0] &^ 0x80
	if w[0]&0x80 != 0 {
		for i, v := range w[1:] {
			c.write(addr, i, v)
		}
		return nil
	}
	for i := 1; i < len(r) && i < len(w); i++ {
		r[i] = c.read(addr, i-1)
	}
	return nil
}

func (c *Chip) write(addr byte, i int, v byte) {
	if addr == rfm69.RegFifo {
		c.fifo = append(c.fifo, v)
		return
	}
	reg := (int(addr) + i) & 0x7F
	switch reg {
	case rfm69.RegVersion, rfm69.RegIrqFlags1, rfm69.RegIrqFlags2:
		return
	case rfm69.RegOpMode:
		c.regs[reg] = v
		c.enter(proto.Mode(v) & proto.ModeMask)
		return
	}
	c.regs[reg] = v
}

func (c *Chip) enter(m proto.Mode) {
	c.modes = append(c.modes, m)
	c.regs[rfm69.RegIrqFlags2] &^= rfm69.IrqPacketSent
	if c.StuckMode {
		c.regs[rfm69.RegIrqFlags1] &^= rfm69.IrqModeReady
		return
	}
	c.regs[rfm69.RegIrqFlags1] |= rfm69.IrqModeReady

	if m == proto.ModeTX && !c.StuckTx {
		frame := make([]byte, len(c.fifo))
		copy(frame, c.fifo)
		c.txBuf.push(frame)
		c.fifo = c.fifo[:0]
		c.regs[rfm69.RegIrqFlags2] |= rfm69.IrqPacketSent
	}
}

func (c *Chip) read(addr byte, i int) byte {
	if addr == rfm69.RegFifo {
		return c.popRx()
	}
	reg := (int(addr) + i) & 0x7F
	if reg == rfm69.RegIrqFlags2 {
		flags := c.regs[reg]
		if c.rxPending() {
			flags |= rfm69.IrqFifoNotEmpty
		}
		return flags
	}
	return c.regs[reg]
}

func (c *Chip) inRx() bool {
	return proto.Mode(c.regs[rfm69.RegOpMode])&proto.ModeMask == proto.ModeRX
}

func (c *Chip) rxPending() bool {
	if !c.inRx() {
		return false
	}
	if len(c.rxCur) > 0 {
		return true
	}
	frame, ok := c.rxBuf.pop()
	if !ok {
		return false
	}
	c.rxCur = frame
	return len(c.rxCur) > 0
}

func (c *Chip) popRx() byte {
	if !c.rxPending() {
		return 0
	}
	b := c.rxCur[0]
	c.rxCur = c.rxCur[1:]
	return b
}

// Out implements the reset line: a high-to-low edge restores power-on register values.
func (c *Chip) Out(l gpio.Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resetH && l == gpio.Low {
		c.powerOn()
	}
	c.resetH = l == gpio.High
	return nil
}

// InjectRx queues bytes to be read from the FIFO while in RX.
func (c *Chip) InjectRx(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := make([]byte, len(data))
	copy(frame, data)
	c.rxBuf.push(frame)
}

// GetTxLog returns every frame sent, oldest first.
func (c *Chip) GetTxLog() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txBuf.snapshot()
}

// ClearTxLog forgets sent frames.
func (c *Chip) ClearTxLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txBuf = ringBuffer{}
}

// Reg returns the current value of a register.
func (c *Chip) Reg(addr byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[addr&0x7F]
}

// SetReg overrides a register, bypassing the write side effects.
func (c *Chip) SetReg(addr, v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[addr&0x7F] = v
}

// Modes lists every mode written to OPMODE, in order.
func (c *Chip) Modes() []proto.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]proto.Mode(nil), c.modes...)
}
