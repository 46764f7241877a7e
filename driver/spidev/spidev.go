// Package spidev binds the rfm69 driver to a Linux SPI controller and GPIO
// lines through periph.
package spidev

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ystepanoff/ookctl/driver/rfm69"
)

// DefaultSpeed matches the 10 MHz the module is usually clocked at.
const DefaultSpeed = 10 * physic.MegaHertz

// Options name the SPI port and GPIO lines, as understood by spireg and gpioreg.
type Options struct {
	SPIPort  string // "" picks the first port
	SpeedHz  int64
	ResetPin string // "" when the reset line is not wired
	CSPin    string // "" when the controller drives chip select
}

// Bus holds the opened SPI connection and GPIO lines.
type Bus struct {
	port  spi.PortCloser
	Conn  spi.Conn
	Reset gpio.PinIO
	CS    gpio.PinIO
}

// Open initialises the periph host drivers and connects to the SPI port in mode 0.
func Open(opts Options) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise periph host: %w", err)
	}

	port, err := spireg.Open(opts.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", opts.SPIPort, err)
	}

	speed := DefaultSpeed
	if opts.SpeedHz > 0 {
		speed = physic.Frequency(opts.SpeedHz) * physic.Hertz
	}
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect SPI port %q: %w", opts.SPIPort, err)
	}

	b := &Bus{port: port, Conn: conn}
	if b.Reset, err = pin(opts.ResetPin, gpio.Low); err != nil {
		port.Close()
		return nil, err
	}
	if b.CS, err = pin(opts.CSPin, gpio.High); err != nil {
		port.Close()
		return nil, err
	}
	log.Printf("[SPI] Opened %s at %s\n", port, speed)
	return b, nil
}

func pin(name string, initial gpio.Level) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown GPIO pin %q", name)
	}
	if err := p.Out(initial); err != nil {
		return nil, fmt.Errorf("failed to drive GPIO pin %q: %w", name, err)
	}
	return p, nil
}

// Radio builds an rfm69 driver on the bus.
func (b *Bus) Radio(opts rfm69.Options) *rfm69.Radio {
	var reset rfm69.Pin
	if b.Reset != nil {
		reset = b.Reset
	}
	if b.CS != nil {
		opts.ChipSelect = b.CS
	}
	return rfm69.New(b.Conn, reset, opts)
}

// Close releases the SPI port.
func (b *Bus) Close() error {
	return b.port.Close()
}
