package rfm69

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"

	proto "github.com/ystepanoff/ookctl/protocol"
)

// Conn is the SPI side of the chip. periph's spi.Conn satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// Pin is an output line. periph's gpio.PinOut satisfies it.
type Pin interface {
	Out(l gpio.Level) error
}

// Options tune the driver. Zero values pick the defaults.
type Options struct {
	// ChipSelect is driven low around every transfer when the SPI
	// controller does not handle CS itself.
	ChipSelect Pin

	ModeTimeout time.Duration // default 1s
	ModePoll    time.Duration // default 1ms
	TxTimeout   time.Duration // default 1s
	TxPoll      time.Duration // default 1µs
}

func (o *Options) defaults() {
	if o.ModeTimeout <= 0 {
		o.ModeTimeout = time.Second
	}
	if o.ModePoll <= 0 {
		o.ModePoll = time.Millisecond
	}
	if o.TxTimeout <= 0 {
		o.TxTimeout = time.Second
	}
	if o.TxPoll <= 0 {
		o.TxPoll = time.Microsecond
	}
}

// Radio drives an RFM69 / SX1231 over SPI.
//
// Every register access is a single SPI transfer and only one transfer may
// be outstanding; an overlapping call fails with ErrConcurrentTransfer.
// Callers serialize multi-register sequences themselves.
type Radio struct {
	conn  Conn
	reset Pin
	opts  Options

	inFlight atomic.Bool

	mu   sync.Mutex
	mode proto.Mode
}

// New wraps conn. reset may be nil when the reset line is not wired.
func New(conn Conn, reset Pin, opts Options) *Radio {
	opts.defaults()
	return &Radio{conn: conn, reset: reset, opts: opts}
}

// Init pulses the reset line and checks the silicon revision.
func (r *Radio) Init(ctx context.Context) error {
	if r.reset != nil {
		if err := r.reset.Out(gpio.High); err != nil {
			return fmt.Errorf("rfm69: reset: %w", err)
		}
		if err := sleep(ctx, 100*time.Microsecond); err != nil {
			return err
		}
		if err := r.reset.Out(gpio.Low); err != nil {
			return fmt.Errorf("rfm69: reset: %w", err)
		}
		if err := sleep(ctx, 5*time.Millisecond); err != nil {
			return err
		}
	}

	var version byte
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Millisecond); err != nil {
				return err
			}
		}
		v, err := r.readReg(RegVersion)
		if err != nil {
			return err
		}
		version = v
		if version == ChipVersion {
			break
		}
	}
	if version != ChipVersion {
		log.Printf("[Radio] Unexpected version %#02x\n", version)
		return fmt.Errorf("%w: version %#02x, want %#02x", proto.ErrHardwareInit, version, ChipVersion)
	}

	op, err := r.readReg(RegOpMode)
	if err != nil {
		return err
	}
	r.setMirror(proto.Mode(op) & proto.ModeMask)
	return nil
}

// Mode returns the mode last observed on or written to the chip.
func (r *Radio) Mode() proto.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *Radio) setMirror(m proto.Mode) {
	r.mu.Lock()
	r.mode = m
	r.mu.Unlock()
}

// SetMode switches the operating mode and waits for ModeReady.
// It does nothing when the chip is already in mode.
func (r *Radio) SetMode(ctx context.Context, mode proto.Mode) error {
	mode &= proto.ModeMask
	cur, err := r.readReg(RegOpMode)
	if err != nil {
		return err
	}
	if proto.Mode(cur)&proto.ModeMask == mode {
		r.setMirror(mode)
		return nil
	}

	if err := r.writeReg(RegOpMode, cur&^byte(proto.ModeMask)|byte(mode)); err != nil {
		return err
	}
	timeout := fmt.Errorf("%w: %s", proto.ErrModeTimeout, mode)
	if err := r.waitFlag(ctx, RegIrqFlags1, IrqModeReady, r.opts.ModeTimeout, r.opts.ModePoll, timeout); err != nil {
		return err
	}
	r.setMirror(mode)
	return nil
}

// SetConfig programs carrier, modulation, bit rate, deviation and
// receiver bandwidth. The chip is left in standby.
func (r *Radio) SetConfig(ctx context.Context, cfg proto.RadioConfig) error {
	if err := r.SetMode(ctx, proto.ModeStandby); err != nil {
		return err
	}

	frf := uint32(math.Round(float64(cfg.FreqHz) / FSTEP))
	if err := r.writeReg(RegFrfMsb, byte(frf>>16), byte(frf>>8), byte(frf)); err != nil {
		return err
	}
	if err := r.writeReg(RegDataModul, byte(cfg.Modulation)); err != nil {
		return err
	}

	if cfg.BitRate > 0 {
		br := uint16(math.Round(FXOSC / float64(cfg.BitRate)))
		if err := r.writeReg(RegBitrateMsb, byte(br>>8), byte(br)); err != nil {
			return err
		}
	}

	if cfg.BitRate > 0 && cfg.FreqDevHz > 0 {
		fd := uint16(math.Round(float64(cfg.FreqDevHz) / FSTEP))
		if err := r.writeReg(RegFdevMsb, byte(fd>>8), byte(fd)); err != nil {
			return err
		}

		target := cfg.FreqDevHz
		if 2*cfg.BitRate > target {
			target = 2 * cfg.BitRate
		}
		bw, err := CalcRxBw(target, cfg.Modulation)
		if err != nil {
			return err
		}
		if err := r.writeReg(RegRxBw, bw.Register()); err != nil {
			return err
		}
		if err := r.writeReg(RegAfcBw, bw.Register()); err != nil {
			return err
		}
	}
	return nil
}

// SetPacketFraming configures the packet engine. A nil sync word turns
// sync word detection off.
func (r *Radio) SetPacketFraming(ctx context.Context, cfg proto.PacketFraming) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.writeReg(RegPacketConfig1, cfg.PacketConfig); err != nil {
		return err
	}
	if err := r.writeReg(RegPayloadLength, cfg.PayloadLength); err != nil {
		return err
	}
	if err := r.writeReg(RegPreambleMsb, 0, cfg.PreambleSize); err != nil {
		return err
	}

	n := len(cfg.SyncWord)
	if n == 0 {
		return r.writeReg(RegSyncConfig, 0)
	}
	if n > MaxSyncWord {
		n = MaxSyncWord
	}
	if err := r.writeReg(RegSyncConfig, SyncOn|byte(n-1)<<3); err != nil {
		return err
	}
	return r.writeReg(RegSyncValue1, cfg.SyncWord[:n]...)
}

// SetHighPower enables the PA1 and PA2 boost and turns over current
// protection off, as required for the high power module variants.
func (r *Radio) SetHighPower(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pa, err := r.readReg(RegPaLevel)
	if err != nil {
		return err
	}
	if err := r.writeReg(RegPaLevel, pa&0x1F|PaLevelPA1|PaLevelPA2); err != nil {
		return err
	}
	ocp, err := r.readReg(RegOcp)
	if err != nil {
		return err
	}
	return r.writeReg(RegOcp, ocp&^OcpOn)
}

// Transmit loads pre and payload into the FIFO, sends them and waits for
// PacketSent. The chip is back in standby on success.
func (r *Radio) Transmit(ctx context.Context, pre, payload []byte) error {
	if err := r.SetMode(ctx, proto.ModeStandby); err != nil {
		return err
	}
	for _, b := range pre {
		if err := r.writeReg(RegFifo, b); err != nil {
			return err
		}
	}
	for _, b := range payload {
		if err := r.writeReg(RegFifo, b); err != nil {
			return err
		}
	}

	if err := r.SetMode(ctx, proto.ModeTX); err != nil {
		return err
	}
	timeout := fmt.Errorf("%w: %d bytes", proto.ErrTransmitTimeout, len(pre)+len(payload))
	if err := r.waitFlag(ctx, RegIrqFlags2, IrqPacketSent, r.opts.TxTimeout, r.opts.TxPoll, timeout); err != nil {
		return err
	}
	return r.SetMode(ctx, proto.ModeStandby)
}

// Available reports whether the receive FIFO holds data.
func (r *Radio) Available(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	flags, err := r.readReg(RegIrqFlags2)
	if err != nil {
		return false, err
	}
	return flags&IrqFifoNotEmpty != 0, nil
}

// ReadFIFO pops one byte from the FIFO.
func (r *Radio) ReadFIFO(ctx context.Context) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.readReg(RegFifo)
}

// DumpRegisters reads registers 0x01 through NumRegisters-1 one at a time.
// Index 0 (the FIFO) is left zero so the dump does not consume data.
func (r *Radio) DumpRegisters(ctx context.Context) ([]byte, error) {
	regs := make([]byte, NumRegisters)
	for addr := byte(1); addr < NumRegisters; addr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := r.readReg(addr)
		if err != nil {
			return nil, err
		}
		regs[addr] = v
	}
	return regs, nil
}

// LogRegisters writes a hex table of DumpRegisters to the log.
func (r *Radio) LogRegisters(ctx context.Context) error {
	regs, err := r.DumpRegisters(ctx)
	if err != nil {
		return err
	}
	log.Printf("[Radio]     0  1  2  3  4  5  6  7  8  9  A  B  C  D  E  F\n")
	for i := 0; i < len(regs); i += 16 {
		var line strings.Builder
		fmt.Fprintf(&line, "%02x:", i)
		for j := 0; j < 16 && i+j < len(regs); j++ {
			fmt.Fprintf(&line, " %02x", regs[i+j])
		}
		log.Printf("[Radio] %s\n", line.String())
	}
	return nil
}

// waitFlag polls reg until mask is set, returning timeoutErr once timeout elapsed.
func (r *Radio) waitFlag(ctx context.Context, reg, mask byte, timeout, every time.Duration, timeoutErr error) error {
	deadline := time.Now().Add(timeout)
	for {
		v, err := r.readReg(reg)
		if err != nil {
			return err
		}
		if v&mask != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return timeoutErr
		}
		if err := sleep(ctx, every); err != nil {
			return err
		}
	}
}

func (r *Radio) readReg(addr byte) (byte, error) {
	var buf [2]byte
	if err := r.transfer([]byte{addr &^ spiWrite, 0}, buf[:]); err != nil {
		return 0, err
	}
	return buf[1], nil
}

// writeReg writes data starting at addr. The chip auto-increments the
// address except for the FIFO.
func (r *Radio) writeReg(addr byte, data ...byte) error {
	w := make([]byte, len(data)+1)
	w[0] = addr | spiWrite
	copy(w[1:], data)
	return r.transfer(w, make([]byte, len(w)))
}

func (r *Radio) transfer(w, rd []byte) (err error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return proto.ErrConcurrentTransfer
	}
	defer r.inFlight.Store(false)

	if cs := r.opts.ChipSelect; cs != nil {
		if err := cs.Out(gpio.Low); err != nil {
			return fmt.Errorf("rfm69: chip select: %w", err)
		}
		defer func() {
			if rerr := cs.Out(gpio.High); rerr != nil && err == nil {
				err = fmt.Errorf("rfm69: chip select release: %w", rerr)
			}
		}()
	}
	if err := r.conn.Tx(w, rd); err != nil {
		return fmt.Errorf("rfm69: spi transfer: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
