// Package ookctl provides a façade over the transceiver driver and the
// transmit scheduler.
package ookctl

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/ystepanoff/ookctl/config"
	"github.com/ystepanoff/ookctl/driver/rfm69"
	"github.com/ystepanoff/ookctl/driver/stub"
	"github.com/ystepanoff/ookctl/protocol"
	"github.com/ystepanoff/ookctl/transport"
)

// The hardware binding is split into build-tag specific files:
// - constructors_linux.go - SPI and GPIO through periph (//go:build linux)
// - constructors_other.go - simulated chip only (//go:build !linux)

// Re-export types for convenience
type (
	Kind      = protocol.Kind
	Job       = transport.Job
	Outcome   = transport.Outcome
	Packet    = transport.Packet
	Scheduler = transport.Scheduler
)

// Error constants exposed in the public API
var (
	ErrHardwareInit    = protocol.ErrHardwareInit
	ErrModeTimeout     = protocol.ErrModeTimeout
	ErrTransmitTimeout = protocol.ErrTransmitTimeout
	ErrInvalidCode     = protocol.ErrInvalidCode
	ErrUnknownKind     = protocol.ErrUnknownKind
	ErrSchedulerClosed = protocol.ErrSchedulerClosed
)

// Constants exposed in the public API
const (
	KindEV1527     = protocol.KindEV1527
	KindLightStrip = protocol.KindLightStrip

	OutcomeCompleted  = transport.OutcomeCompleted
	OutcomeStopped    = transport.OutcomeStopped
	OutcomeSuperseded = transport.OutcomeSuperseded
)

// Controller owns the radio and the scheduler feeding it. It is ready for
// jobs once Open returns.
type Controller struct {
	Radio     *rfm69.Radio
	Scheduler *transport.Scheduler
	// Chip is the simulated transceiver, nil on real hardware.
	Chip *stub.Chip

	cfg     *config.Config
	bus     io.Closer
	debug   bool
	metrics *transport.Metrics
}

// Option configures Open.
type Option func(*Controller, *[]transport.Option)

// WithMetrics records scheduler and sniffer activity in m.
func WithMetrics(m *transport.Metrics) Option {
	return func(c *Controller, opts *[]transport.Option) {
		c.metrics = m
		*opts = append(*opts, transport.WithMetrics(m))
	}
}

// WithDebug dumps the register file after initialisation.
func WithDebug(on bool) Option {
	return func(c *Controller, _ *[]transport.Option) { c.debug = on }
}

// Open initialises the transceiver described by cfg.Hardware and leaves it
// asleep. A chip that does not identify itself yields ErrHardwareInit.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Controller, error) {
	c := &Controller{cfg: cfg}
	schedOpts := []transport.Option{
		transport.WithInterval(cfg.Scheduler.Interval),
		transport.WithDefaultAttempts(cfg.Scheduler.DefaultAttempts),
		transport.WithCodecs(cfg.Codecs()),
	}
	for _, opt := range opts {
		opt(c, &schedOpts)
	}

	radioOpts := rfm69.Options{
		ModeTimeout: cfg.Hardware.ModeTimeout,
		TxTimeout:   cfg.Hardware.TxTimeout,
	}
	if cfg.Hardware.Simulate {
		c.Chip = stub.New()
		c.Radio = rfm69.New(c.Chip, c.Chip, radioOpts)
		log.Printf("[Controller] Using simulated transceiver\n")
	} else {
		radio, bus, err := openHardware(cfg.Hardware, radioOpts)
		if err != nil {
			return nil, err
		}
		c.Radio, c.bus = radio, bus
	}

	if err := c.init(ctx); err != nil {
		c.closeBus()
		return nil, err
	}
	c.Scheduler = transport.NewScheduler(c.Radio, schedOpts...)
	return c, nil
}

func (c *Controller) init(ctx context.Context) error {
	if err := c.Radio.Init(ctx); err != nil {
		return err
	}
	if hp := c.cfg.Hardware.HighPower; hp == nil || *hp {
		if err := c.Radio.SetHighPower(ctx); err != nil {
			return fmt.Errorf("failed to enable high power: %w", err)
		}
	}
	if c.debug {
		if err := c.Radio.LogRegisters(ctx); err != nil {
			log.Printf("[Controller] Register dump failed: %v\n", err)
		}
	}
	if err := c.Radio.SetMode(ctx, protocol.ModeSleep); err != nil {
		return fmt.Errorf("failed to put radio to sleep: %w", err)
	}
	return nil
}

// Sniffer returns a diagnostic receiver for kind. Do not use it while the
// scheduler has pending jobs.
func (c *Controller) Sniffer(kind protocol.Kind) (*transport.Sniffer, error) {
	codec, err := c.cfg.Codecs().Lookup(kind)
	if err != nil {
		return nil, err
	}
	sn := transport.NewSniffer(c.Radio, codec)
	sn.Metrics = c.metrics
	return sn, nil
}

// Close stops the scheduler, which puts the radio to sleep, then releases the bus.
func (c *Controller) Close() error {
	err := c.Scheduler.Close()
	c.closeBus()
	return err
}

func (c *Controller) closeBus() {
	if c.bus == nil {
		return
	}
	if err := c.bus.Close(); err != nil {
		log.Printf("[Controller] Failed to close bus: %v\n", err)
	}
}
