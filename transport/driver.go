package transport

import (
	"context"

	proto "github.com/ystepanoff/ookctl/protocol"
)

// RadioDriver is the interface that wraps the transceiver operations the
// scheduler and the sniffer need. *rfm69.Radio implements it.
type RadioDriver interface {
	SetMode(ctx context.Context, mode proto.Mode) error
	SetConfig(ctx context.Context, cfg proto.RadioConfig) error
	SetPacketFraming(ctx context.Context, cfg proto.PacketFraming) error
	Transmit(ctx context.Context, pre, payload []byte) error
	Available(ctx context.Context) (bool, error)
	ReadFIFO(ctx context.Context) (byte, error)
}
