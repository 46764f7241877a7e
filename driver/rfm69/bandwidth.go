package rfm69

import (
	"fmt"

	proto "github.com/ystepanoff/ookctl/protocol"
)

var (
	rxBwExponents = [...]byte{7, 6, 5, 4, 3, 2, 1, 0}
	rxBwMantissas = [...]byte{24, 20, 16}
)

// RxBw is an encoded receiver bandwidth setting. Mant is the register
// encoding (0: 16, 1: 20, 2: 24).
type RxBw struct {
	Mant byte
	Exp  byte
}

func expOffset(m proto.Modulation) int {
	if m.OOK() {
		return 3
	}
	return 2
}

func bandwidth(mant byte, exp byte, m proto.Modulation) float64 {
	return FXOSC / (float64(mant) * float64(uint32(1)<<(int(exp)+expOffset(m))))
}

// Hz is the bandwidth selected by b for modulation m.
func (b RxBw) Hz(m proto.Modulation) float64 {
	return bandwidth(16+4*b.Mant, b.Exp, m)
}

// Register is the RegRxBw / RegAfcBw value for b.
func (b RxBw) Register() byte {
	return dccFreq<<5 | (b.Mant&0x3)<<3 | b.Exp&0x7
}

// CalcRxBw returns the narrowest bandwidth strictly above target.
// The table is walked from the narrowest setting upwards, so the first
// match is the answer.
func CalcRxBw(target uint32, m proto.Modulation) (RxBw, error) {
	for _, e := range rxBwExponents {
		for _, mant := range rxBwMantissas {
			if bandwidth(mant, e, m) > float64(target) {
				return RxBw{Mant: (mant - 16) / 4, Exp: e}, nil
			}
		}
	}
	return RxBw{}, fmt.Errorf("%w: %d Hz", proto.ErrBandwidthRange, target)
}
