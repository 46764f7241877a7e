package protocol

import "math"

// Light strip frame on air:
//
//	[preamble 00 00 00 00 00 80 00][13 symbol bytes][00]
//
// Bits 24..0 of the code are sent two per byte, a one as 0111 (0x7) and a zero
// as 0100 (0x4). The last symbol byte only carries bit 0 in its high nibble.
// Bits 20..23 hold the on/off marker.

var lightStripPreamble = [...]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x80, 0x00}

const (
	lightStripOne  = 0x7
	lightStripZero = 0x4
)

// LightStrip is the dimmable light strip family. The chip markings are unknown.
type LightStrip struct{}

func (LightStrip) Kind() Kind { return KindLightStrip }

func (LightStrip) RadioConfig() RadioConfig { return ookConfig(LightStripBitRate) }

func (LightStrip) TransmitFraming() PacketFraming { return PacketFraming{} }

func (LightStrip) ReceiveFraming() PacketFraming {
	return PacketFraming{
		SyncWord:      []byte{0x80, 0x00},
		PayloadLength: LightStripPayloadLength,
	}
}

func (LightStrip) Encode(code uint32, state *bool) Frame {
	return Frame{
		Preamble: append([]byte(nil), lightStripPreamble[:]...),
		Payload:  EncodeLightStrip(code, state),
	}
}

// Sends is three back to back frames per dispatch.
func (LightStrip) Sends() int { return 3 }

func (LightStrip) CodeBits() uint { return LightStripCodeBits }

func (LightStrip) Decode(payload []byte) (uint32, error) { return DecodeLightStrip(payload) }

// LightStripValue applies the on/off marker to code. A nil state clears the marker bits.
func LightStripValue(code uint32, state *bool) uint32 {
	v := code &^ lightStripMarkerMask
	if state != nil {
		m := uint32(LightStripMarkerOff)
		if *state {
			m = LightStripMarkerOn
		}
		v |= m << lightStripMarkerShift
	}
	return v
}

// EncodeLightStrip returns the symbol bytes for code with the optional on/off marker.
func EncodeLightStrip(code uint32, state *bool) []byte {
	v := LightStripValue(code, state)
	out := make([]byte, 0, LightStripPayloadLength+1)
	for i := 24; i >= 0; i -= 2 {
		hi, lo := byte(lightStripZero), byte(lightStripZero)
		if v&(1<<i) != 0 {
			hi = lightStripOne
		}
		if i > 0 && v&(1<<(i-1)) != 0 {
			lo = lightStripOne
		}
		out = append(out, hi<<4|lo)
	}
	out[len(out)-1] &= 0xF0
	return append(out, 0x00)
}

// DecodeLightStrip rebuilds a code from the first LightStripPayloadLength symbol bytes.
// High nibbles must be 0x4 or 0x7, low nibbles 0x0, 0x4 or 0x7; an empty low nibble
// carries no bit.
func DecodeLightStrip(payload []byte) (uint32, error) {
	if len(payload) < LightStripPayloadLength {
		return 0, shortFrame(len(payload), LightStripPayloadLength)
	}
	var v uint32
	for i, p := range payload[:LightStripPayloadLength] {
		hi, lo := p>>4, p&0x0F
		if (hi != lightStripZero && hi != lightStripOne) ||
			(lo != 0 && lo != lightStripZero && lo != lightStripOne) {
			return 0, invalidByte(p, i)
		}
		v = v<<1 | bit(hi == lightStripOne)
		if lo != 0 {
			v = v<<1 | bit(lo == lightStripOne)
		}
	}
	return v, nil
}

// BrightnessCode maps a 0-100% brightness onto a light strip code. The strip takes
// a 9 bit level: the low 8 bits go in the low byte and bit 8 is sent inverted.
func BrightnessCode(base uint32, pct float64) uint32 {
	pct = math.Max(0, math.Min(100, pct))
	level := uint32(math.Round(0x1FF * pct / 100))
	code := base&0xFFF00 | level&0xFF
	if level < 0x100 {
		code |= 0x100
	}
	return code
}
