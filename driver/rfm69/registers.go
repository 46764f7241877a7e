package rfm69

// Register addresses (SX1231 / RFM69HCW data sheet).
const (
	RegFifo          = 0x00
	RegOpMode        = 0x01
	RegDataModul     = 0x02
	RegBitrateMsb    = 0x03
	RegBitrateLsb    = 0x04
	RegFdevMsb       = 0x05
	RegFdevLsb       = 0x06
	RegFrfMsb        = 0x07
	RegFrfMid        = 0x08
	RegFrfLsb        = 0x09
	RegVersion       = 0x10
	RegPaLevel       = 0x11
	RegOcp           = 0x13
	RegRxBw          = 0x19
	RegAfcBw         = 0x1A
	RegIrqFlags1     = 0x27
	RegIrqFlags2     = 0x28
	RegPreambleMsb   = 0x2C
	RegPreambleLsb   = 0x2D
	RegSyncConfig    = 0x2E
	RegSyncValue1    = 0x2F
	RegPacketConfig1 = 0x37
	RegPayloadLength = 0x38

	// NumRegisters covers the block read by DumpRegisters.
	NumRegisters = 0x50
)

const (
	// ChipVersion is the silicon revision reported in RegVersion.
	ChipVersion = 0x24

	// Crystal oscillator and synthesizer step
	FXOSC = 32000000.0
	FSTEP = FXOSC / (1 << 19)

	spiWrite = 0x80

	IrqModeReady    = 1 << 7
	IrqFifoNotEmpty = 1 << 6
	IrqPacketSent   = 1 << 3

	PaLevelPA1 = 1 << 6
	PaLevelPA2 = 1 << 5
	OcpOn      = 1 << 7

	SyncOn = 1 << 7
	// MaxSyncWord is the number of sync value registers.
	MaxSyncWord = 8

	// DC cancellation cutoff, 4% of RxBw (chip default)
	dccFreq = 4
)
