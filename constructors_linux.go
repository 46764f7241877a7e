//go:build linux

// This file is built only for Linux hosts with an SPI controller.
package ookctl

import (
	"io"

	"github.com/ystepanoff/ookctl/config"
	"github.com/ystepanoff/ookctl/driver/rfm69"
	"github.com/ystepanoff/ookctl/driver/spidev"
)

func openHardware(hw config.HardwareConfig, opts rfm69.Options) (*rfm69.Radio, io.Closer, error) {
	bus, err := spidev.Open(spidev.Options{
		SPIPort:  hw.SPIPort,
		SpeedHz:  hw.SPISpeedHz,
		ResetPin: hw.ResetPin,
		CSPin:    hw.CSPin,
	})
	if err != nil {
		return nil, nil, err
	}
	return bus.Radio(opts), bus, nil
}
