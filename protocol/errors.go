package protocol

import "errors"

var (
	ErrHardwareInit       = errors.New("transceiver not detected")
	ErrModeTimeout        = errors.New("timed out waiting for mode ready")
	ErrTransmitTimeout    = errors.New("timed out waiting for packet sent")
	ErrBandwidthRange     = errors.New("receiver bandwidth out of range")
	ErrConcurrentTransfer = errors.New("register transfer already in progress")
	ErrInvalidCode        = errors.New("code below minimum (0x10)")
	ErrInvalidFrame       = errors.New("invalid oversampled frame")
	ErrUnknownKind        = errors.New("unknown device kind")
	ErrSchedulerClosed    = errors.New("scheduler closed")
)
