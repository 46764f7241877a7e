package protocol

// Radio & protocol constants shared by the codecs, the driver and the scheduler.
const (
	// RF defaults, both remote families live on the 433 MHz ISM band
	CarrierFreqHz   = 433920000
	FreqDeviationHz = 50000

	// Bit rates of the 4x oversampled symbol streams
	EV1527BitRate     = 2800
	LightStripBitRate = 3700

	// Fixed receive payload sizes (bytes after the sync word)
	EV1527PayloadLength     = 12 // 24 bits, one nibble per bit
	LightStripPayloadLength = 13 // 25 bits, the last byte carries a single bit

	// Codes below this are never transmitted
	MinCode = 0x10

	// Code widths put on air
	EV1527CodeBits     = 24
	EV1527BaseBits     = 20 // remote code without the button nibble
	LightStripCodeBits = 25

	// Scheduler defaults
	DefaultAttempts   = 40
	TickIntervalMilli = 100

	// A partial receive frame is dropped after this long without a new byte (milliseconds)
	ReceiveTimeout = 10000

	// LightStrip on/off marker nibble, stored in bits 20..23 of the code
	lightStripMarkerShift = 20
	lightStripMarkerMask  = 0xF << lightStripMarkerShift
	LightStripMarkerOn    = 0x4
	LightStripMarkerOff   = 0xA
)
