package protocol

// EV1527 frame on air:
//
//	[preamble 80 00 00 00][12 symbol bytes][trailer 80]
//
// Each symbol byte carries two code bits, most significant pair first.
// A one is a long pulse (nibble 1110 = 0xE), a zero a short pulse (1000 = 0x8).
// The first 20 bits are the remote's fixed code, the last 4 the button.

var ev1527Preamble = [...]byte{0x80, 0x00, 0x00, 0x00}

const (
	ev1527One     = 0xE
	ev1527Zero    = 0x8
	ev1527Trailer = 0x80
)

// EV1527 is the fixed code remote socket family. BitRate overrides the
// default 2800 bps when non zero; deployments have needed 2700 bps.
type EV1527 struct {
	BitRate uint32
}

func (EV1527) Kind() Kind { return KindEV1527 }

func (c EV1527) RadioConfig() RadioConfig {
	br := c.BitRate
	if br == 0 {
		br = EV1527BitRate
	}
	return ookConfig(br)
}

// TransmitFraming is fixed length, no preamble, no sync word, no crc, no addressing.
func (EV1527) TransmitFraming() PacketFraming { return PacketFraming{} }

// ReceiveFraming syncs on the preamble and collects one code worth of symbols.
func (EV1527) ReceiveFraming() PacketFraming {
	return PacketFraming{
		SyncWord:      append([]byte(nil), ev1527Preamble[:]...),
		PayloadLength: EV1527PayloadLength,
	}
}

func (EV1527) Encode(code uint32, _ *bool) Frame {
	return Frame{
		Preamble: append([]byte(nil), ev1527Preamble[:]...),
		Payload:  EncodeEV1527(code),
	}
}

// Sends is two: a single frame is often missed while other jobs share the air.
func (EV1527) Sends() int { return 2 }

func (EV1527) CodeBits() uint { return EV1527CodeBits }

func (EV1527) Decode(payload []byte) (uint32, error) { return DecodeEV1527(payload) }

// EncodeEV1527 returns the symbol bytes for the low 24 bits of code plus the trailer.
func EncodeEV1527(code uint32) []byte {
	out := make([]byte, 0, EV1527PayloadLength+1)
	for i := 24; i > 0; i -= 2 {
		hi, lo := byte(ev1527Zero), byte(ev1527Zero)
		if code&(1<<(i-1)) != 0 {
			hi = ev1527One
		}
		if code&(1<<(i-2)) != 0 {
			lo = ev1527One
		}
		out = append(out, hi<<4|lo)
	}
	return append(out, ev1527Trailer)
}

// DecodeEV1527 rebuilds a code from the first EV1527PayloadLength symbol bytes.
// Any nibble other than 0x8 or 0xE invalidates the frame.
func DecodeEV1527(payload []byte) (uint32, error) {
	if len(payload) < EV1527PayloadLength {
		return 0, shortFrame(len(payload), EV1527PayloadLength)
	}
	var v uint32
	for i, p := range payload[:EV1527PayloadLength] {
		hi, lo := p>>4, p&0x0F
		if (hi != ev1527Zero && hi != ev1527One) || (lo != ev1527Zero && lo != ev1527One) {
			return 0, invalidByte(p, i)
		}
		v = v<<1 | bit(hi == ev1527One)
		v = v<<1 | bit(lo == ev1527One)
	}
	return v, nil
}

// EV1527 remote buttons, or'ed into the low nibble of the code.
const (
	EV1527ButtonOpen  = 0x1
	EV1527ButtonClose = 0x2
)

// EV1527ButtonCode combines a 20 bit remote code with a button nibble.
func EV1527ButtonCode(code uint32, button uint8) uint32 {
	return (code&(1<<EV1527BaseBits-1))<<4 | uint32(button&0x0F)
}
