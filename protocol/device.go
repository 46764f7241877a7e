package protocol

import (
	"fmt"
	"strings"
)

// Kind identifies a remote device family.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindEV1527
	KindLightStrip
)

func (k Kind) String() string {
	switch k {
	case KindEV1527:
		return "ev1527"
	case KindLightStrip:
		return "lightstrip"
	}
	return "unknown"
}

// ParseKind maps a configuration name onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ev1527":
		return KindEV1527, nil
	case "lightstrip", "light-strip", "light_strip":
		return KindLightStrip, nil
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Codec turns a numeric code into an oversampled symbol stream for one device family,
// and back again for diagnostics. Implementations are stateless.
type Codec interface {
	Kind() Kind
	// RadioConfig is written to the chip before every transmit.
	RadioConfig() RadioConfig
	TransmitFraming() PacketFraming
	ReceiveFraming() PacketFraming
	// Encode builds one frame. state is only meaningful for some families.
	Encode(code uint32, state *bool) Frame
	// Sends is the number of physical transmissions per scheduler dispatch.
	Sends() int
	// CodeBits is the width of the codes Encode puts on air.
	CodeBits() uint
	// Decode rebuilds a code from a ReceiveFraming().PayloadLength sized payload.
	Decode(payload []byte) (uint32, error)
}

// Codecs is the closed set of device families known to a scheduler.
type Codecs map[Kind]Codec

// DefaultCodecs returns every supported family with its default radio parameters.
func DefaultCodecs() Codecs {
	return Codecs{
		KindEV1527:     EV1527{},
		KindLightStrip: LightStrip{},
	}
}

// Lookup returns the codec for k.
func (c Codecs) Lookup(k Kind) (Codec, error) {
	codec, ok := c[k]
	if !ok || codec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	return codec, nil
}
