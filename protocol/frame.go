package protocol

import "fmt"

// Frame is one over-the-air transmission: a fixed preamble followed by the
// oversampled payload. Every nibble of the payload is one symbol bit.
type Frame struct {
	Preamble []byte
	Payload  []byte
}

// Bytes returns preamble and payload as one buffer.
func (f Frame) Bytes() []byte {
	out := make([]byte, 0, len(f.Preamble)+len(f.Payload))
	out = append(out, f.Preamble...)
	return append(out, f.Payload...)
}

// ValidateCode rejects codes that are never put on air.
func ValidateCode(code uint32) error {
	if code < MinCode {
		return fmt.Errorf("%w: %#x", ErrInvalidCode, code)
	}
	return nil
}

// CheckWidth rejects codes with bits set above the codec's code width.
func CheckWidth(c Codec, code uint32) error {
	if bits := c.CodeBits(); bits < 32 && code>>bits != 0 {
		return fmt.Errorf("%w: %#x is wider than %d bits", ErrInvalidCode, code, bits)
	}
	return nil
}

func bit(set bool) uint32 {
	if set {
		return 1
	}
	return 0
}

func invalidByte(p byte, i int) error {
	return fmt.Errorf("%w: byte %d is %#02x", ErrInvalidFrame, i, p)
}

func shortFrame(got, want int) error {
	return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidFrame, got, want)
}
