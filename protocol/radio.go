package protocol

import "fmt"

// Mode is a transceiver operating mode, encoded as in the OPMODE register (bits 4..2).
type Mode byte

const (
	ModeSleep   Mode = 0 << 2
	ModeStandby Mode = 1 << 2
	ModeFS      Mode = 2 << 2
	ModeTX      Mode = 3 << 2
	ModeRX      Mode = 4 << 2

	ModeMask Mode = 7 << 2
)

func (m Mode) String() string {
	switch m {
	case ModeSleep:
		return "sleep"
	case ModeStandby:
		return "standby"
	case ModeFS:
		return "fs"
	case ModeTX:
		return "tx"
	case ModeRX:
		return "rx"
	}
	return fmt.Sprintf("mode(%#02x)", byte(m))
}

// Modulation is the DATAMODUL register value: data mode, modulation type and shaping.
type Modulation byte

const (
	DataModePacket         Modulation = 0 << 5
	DataModeContinuousSync Modulation = 2 << 5
	DataModeContinuous     Modulation = 3 << 5
	ModulationFSK          Modulation = 0 << 3
	ModulationOOK          Modulation = 1 << 3
	ShapingNone            Modulation = 0
)

// OOK reports whether the modulation selects on-off keying.
func (m Modulation) OOK() bool { return m&ModulationOOK != 0 }

// RadioConfig holds the RF parameters written before every protocol specific transmit.
type RadioConfig struct {
	FreqHz     uint32
	FreqDevHz  uint32
	BitRate    uint32
	Modulation Modulation
}

// PacketFraming configures the packet engine. A nil SyncWord disables sync word detection,
// which is what transmit and raw oversampled streams use.
type PacketFraming struct {
	PacketConfig  byte
	PreambleSize  byte
	SyncWord      []byte
	PayloadLength byte
}

// ookConfig is the shared 433.92 MHz OOK setup, no shaping, packet mode.
func ookConfig(bitRate uint32) RadioConfig {
	return RadioConfig{
		FreqHz:     CarrierFreqHz,
		FreqDevHz:  FreqDeviationHz,
		BitRate:    bitRate,
		Modulation: DataModePacket | ModulationOOK | ShapingNone,
	}
}
