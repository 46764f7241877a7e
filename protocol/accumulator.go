package protocol

import "time"

// Accumulator collects received FIFO bytes into fixed size frames for a codec.
// It is not safe for concurrent use.
type Accumulator struct {
	codec   Codec
	size    int
	timeout time.Duration
	buf     []byte
	last    time.Time
}

// NewAccumulator sizes the frame from the codec's receive framing.
func NewAccumulator(c Codec) *Accumulator {
	size := int(c.ReceiveFraming().PayloadLength)
	return &Accumulator{
		codec:   c,
		size:    size,
		timeout: ReceiveTimeout * time.Millisecond,
		buf:     make([]byte, 0, size),
	}
}

// Expire drops a partial frame when nothing arrived for the receive timeout.
func (a *Accumulator) Expire(now time.Time) bool {
	if len(a.buf) == 0 || a.last.IsZero() || now.Sub(a.last) <= a.timeout {
		return false
	}
	a.Reset()
	return true
}

// Reset drops any partial frame.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
	a.last = time.Time{}
}

// Len is the number of bytes collected so far.
func (a *Accumulator) Len() int { return len(a.buf) }

// Push adds one byte received at now. Zero bytes ahead of a frame are skipped.
// When the frame is complete it is decoded and the accumulator starts over;
// done reports whether a frame was consumed, err whether it failed to decode.
func (a *Accumulator) Push(b byte, now time.Time) (code uint32, raw []byte, done bool, err error) {
	a.Expire(now)
	if b == 0 && len(a.buf) == 0 {
		return 0, nil, false, nil
	}
	a.buf = append(a.buf, b)
	a.last = now
	if len(a.buf) < a.size {
		return 0, nil, false, nil
	}

	raw = append([]byte(nil), a.buf...)
	a.Reset()
	code, err = a.codec.Decode(raw)
	return code, raw, true, err
}
