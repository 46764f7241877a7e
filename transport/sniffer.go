package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	proto "github.com/ystepanoff/ookctl/protocol"
)

// Packet is one frame decoded by a Sniffer.
type Packet struct {
	Kind proto.Kind
	Raw  []byte
	Code uint32
	At   time.Time
}

// Sniffer listens for one device family and decodes what it hears. It is a
// diagnostic tool: it must not share the radio with a running Scheduler.
type Sniffer struct {
	radio RadioDriver
	codec proto.Codec

	// PollInterval is the pause between FIFO polls (default 10ms).
	PollInterval time.Duration
	Metrics      *Metrics
}

func NewSniffer(radio RadioDriver, codec proto.Codec) *Sniffer {
	return &Sniffer{
		radio:        radio,
		codec:        codec,
		PollInterval: 10 * time.Millisecond,
	}
}

// Listen puts the radio in receive mode and calls handler for every frame
// that decodes. It returns nil once ctx is cancelled, with the radio back
// in standby.
func (s *Sniffer) Listen(ctx context.Context, handler func(Packet)) error {
	if err := s.radio.SetConfig(ctx, s.codec.RadioConfig()); err != nil {
		return fmt.Errorf("failed to configure radio: %w", err)
	}
	if err := s.radio.SetPacketFraming(ctx, s.codec.ReceiveFraming()); err != nil {
		return fmt.Errorf("failed to configure packet engine: %w", err)
	}
	if err := s.radio.SetMode(ctx, proto.ModeRX); err != nil {
		return fmt.Errorf("failed to enter receive mode: %w", err)
	}
	defer func() {
		if err := s.radio.SetMode(context.Background(), proto.ModeStandby); err != nil {
			log.Printf("[Sniffer] Failed to leave receive mode: %v\n", err)
		}
	}()

	kind := s.codec.Kind()
	acc := proto.NewAccumulator(s.codec)
	log.Printf("[Sniffer] Listening for %s frames\n", kind)

	interval := s.PollInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.drain(ctx, acc, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if acc.Expire(time.Now()) {
			log.Printf("[Sniffer] Dropped partial %s frame\n", kind)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sniffer) drain(ctx context.Context, acc *proto.Accumulator, handler func(Packet)) error {
	kind := s.codec.Kind()
	for {
		ok, err := s.radio.Available(ctx)
		if err != nil || !ok {
			return err
		}
		b, err := s.radio.ReadFIFO(ctx)
		if err != nil {
			return err
		}

		now := time.Now()
		code, raw, done, err := acc.Push(b, now)
		if !done {
			continue
		}
		s.Metrics.receivedFrame(kind.String(), err == nil)
		if err != nil {
			log.Printf("[Sniffer] Discarding %s frame % x: %v\n", kind, raw, err)
			continue
		}
		log.Printf("[Sniffer] %s code=%#x\n", kind, code)
		if handler != nil {
			handler(Packet{Kind: kind, Raw: raw, Code: code, At: now})
		}
	}
}
