//go:build !linux

// This file is built for hosts without SPI support; only the simulated chip is available.
package ookctl

import (
	"errors"
	"io"

	"github.com/ystepanoff/ookctl/config"
	"github.com/ystepanoff/ookctl/driver/rfm69"
)

func openHardware(config.HardwareConfig, rfm69.Options) (*rfm69.Radio, io.Closer, error) {
	return nil, nil, errors.New("SPI hardware is only supported on linux, set hardware.simulate")
}
