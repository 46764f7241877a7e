package protocol

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }

func TestEncodeEV1527(t *testing.T) {
	tests := []struct {
		name string
		code uint32
		want []byte
	}{
		{
			name: "all zeros",
			code: 0,
			want: append(bytes.Repeat([]byte{0x88}, 12), 0x80),
		},
		{
			name: "all ones",
			code: 0xFFFFFF,
			want: append(bytes.Repeat([]byte{0xEE}, 12), 0x80),
		},
		{
			name: "mixed pairs",
			code: 0x12345,
			want: []byte{0x88, 0x88, 0x88, 0x8E, 0x88, 0xE8, 0x88, 0xEE, 0x8E, 0x88, 0x8E, 0x8E, 0x80},
		},
		{
			name: "bits above 24 ignored",
			code: 0xFF000001,
			want: append(append(bytes.Repeat([]byte{0x88}, 11), 0x8E), 0x80),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeEV1527(tt.code)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeEV1527(%#x) = % x, want % x", tt.code, got, tt.want)
			}
		})
	}
}

func TestEV1527Frame(t *testing.T) {
	f := EV1527{}.Encode(0x12345, nil)
	if !bytes.Equal(f.Preamble, []byte{0x80, 0x00, 0x00, 0x00}) {
		t.Errorf("Preamble = % x", f.Preamble)
	}
	if len(f.Payload) != EV1527PayloadLength+1 {
		t.Errorf("Payload length = %d, want %d", len(f.Payload), EV1527PayloadLength+1)
	}
	if got := len(f.Bytes()); got != 4+13 {
		t.Errorf("Bytes() length = %d, want 17", got)
	}

	// callers must not be able to corrupt the shared preamble
	f.Preamble[0] = 0xFF
	if g := (EV1527{}).Encode(0x12345, nil); g.Preamble[0] != 0x80 {
		t.Error("preamble shared between frames")
	}
}

func TestEV1527RoundTrip(t *testing.T) {
	for c := uint32(0); c < 1<<20; c += 997 {
		got, err := DecodeEV1527(EncodeEV1527(c))
		if err != nil {
			t.Fatalf("DecodeEV1527(EncodeEV1527(%#x)) error = %v", c, err)
		}
		if got != c {
			t.Fatalf("DecodeEV1527(EncodeEV1527(%#x)) = %#x", c, got)
		}
	}
	for _, c := range []uint32{0, 1, 0x10, 0xFFFFF, 0x123456, 0xFFFFFF} {
		got, err := DecodeEV1527(EncodeEV1527(c))
		if err != nil || got != c {
			t.Errorf("round trip %#x = %#x, %v", c, got, err)
		}
	}
}

func TestDecodeEV1527Invalid(t *testing.T) {
	good := EncodeEV1527(0xABCDE)
	tests := []struct {
		name string
		data []byte
	}{
		{name: "nil", data: nil},
		{name: "short", data: good[:11]},
		{name: "bad high nibble", data: func() []byte {
			d := append([]byte(nil), good...)
			d[3] = 0x98
			return d
		}()},
		{name: "bad low nibble", data: func() []byte {
			d := append([]byte(nil), good...)
			d[11] = 0x8F
			return d
		}()},
		{name: "zero byte", data: func() []byte {
			d := append([]byte(nil), good...)
			d[0] = 0x00
			return d
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeEV1527(tt.data); !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("DecodeEV1527() error = %v, want %v", err, ErrInvalidFrame)
			}
		})
	}
}

func TestEncodeLightStrip(t *testing.T) {
	tests := []struct {
		name  string
		code  uint32
		state *bool
		want  []byte
	}{
		{
			name: "zero no marker",
			code: 0,
			want: append(append(bytes.Repeat([]byte{0x44}, 12), 0x40), 0x00),
		},
		{
			name:  "on marker",
			code:  0,
			state: boolPtr(true),
			// bits 22 set: pair (22,21) is byte 1 high nibble
			want: append(append([]byte{0x44, 0x74}, append(bytes.Repeat([]byte{0x44}, 10), 0x40)...), 0x00),
		},
		{
			name:  "off marker",
			code:  0,
			state: boolPtr(false),
			// 0xA: bits 23 and 21 set
			want: append(append([]byte{0x47, 0x47}, append(bytes.Repeat([]byte{0x44}, 10), 0x40)...), 0x00),
		},
		{
			name: "bit 0 and bit 24",
			code: 1<<24 | 1,
			want: append(append(append([]byte{0x74}, bytes.Repeat([]byte{0x44}, 11)...), 0x70), 0x00),
		},
		{
			name: "marker bits in code are masked",
			code: 0xF00000,
			want: append(append(bytes.Repeat([]byte{0x44}, 12), 0x40), 0x00),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeLightStrip(tt.code, tt.state)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeLightStrip(%#x) = % x, want % x", tt.code, got, tt.want)
			}
		})
	}
}

func TestLightStripRoundTrip(t *testing.T) {
	states := []*bool{nil, boolPtr(true), boolPtr(false)}
	for c := uint32(0); c < 1<<25; c += 65521 {
		for _, st := range states {
			got, err := DecodeLightStrip(EncodeLightStrip(c, st))
			if err != nil {
				t.Fatalf("DecodeLightStrip(EncodeLightStrip(%#x)) error = %v", c, err)
			}
			want := LightStripValue(c, st)
			if got != want {
				t.Fatalf("round trip %#x state=%v = %#x, want %#x", c, st, got, want)
			}
			marker := (got >> 20) & 0xF
			switch {
			case st == nil && marker != 0:
				t.Fatalf("marker = %#x, want 0", marker)
			case st != nil && *st && marker != LightStripMarkerOn:
				t.Fatalf("marker = %#x, want on", marker)
			case st != nil && !*st && marker != LightStripMarkerOff:
				t.Fatalf("marker = %#x, want off", marker)
			}
			if got&^0xF00000 != c&^0xF00000 {
				t.Fatalf("code bits %#x, want %#x", got&^0xF00000, c&^0xF00000)
			}
		}
	}
}

func TestDecodeLightStripInvalid(t *testing.T) {
	good := EncodeLightStrip(0x1ABCDE, nil)
	for _, tt := range []struct {
		name string
		idx  int
		val  byte
	}{
		{"high nibble 0x8", 0, 0x84},
		{"high nibble zero", 5, 0x04},
		{"low nibble 0x5", 2, 0x45},
		{"low nibble 0xF", 12, 0x7F},
	} {
		t.Run(tt.name, func(t *testing.T) {
			d := append([]byte(nil), good...)
			d[tt.idx] = tt.val
			if _, err := DecodeLightStrip(d); !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("DecodeLightStrip() error = %v, want %v", err, ErrInvalidFrame)
			}
		})
	}
	if _, err := DecodeLightStrip(good[:12]); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("short frame error = %v", err)
	}
}

func TestBrightnessCode(t *testing.T) {
	tests := []struct {
		base uint32
		pct  float64
		want uint32
	}{
		{0xABCDE, 100, 0xABCFF},        // 0x1FF: bit 8 set, no marker
		{0xABCDE, 0, 0xABD00},          // 0x000 -> marker
		{0xABCDE, 50, 0xABC00},         // round(255.5) = 256 = 0x100
		{0xABCDE, 49, 0xABDFA},         // round(250.39) = 250 = 0xFA
		{0xFFFFFFFF, 100, 0xFFFFF},     // base masked to 20 bits
		{0x12300, 150, 0x123FF},        // clamped
		{0x12300, -5, 0x12300 | 0x100}, // clamped
	}
	for _, tt := range tests {
		if got := BrightnessCode(tt.base, tt.pct); got != tt.want {
			t.Errorf("BrightnessCode(%#x, %v) = %#x, want %#x", tt.base, tt.pct, got, tt.want)
		}
	}
}

func TestEV1527ButtonCode(t *testing.T) {
	if got := EV1527ButtonCode(0x12345, EV1527ButtonOpen); got != 0x123451 {
		t.Errorf("open = %#x", got)
	}
	if got := EV1527ButtonCode(0x12345, EV1527ButtonClose); got != 0x123452 {
		t.Errorf("close = %#x", got)
	}
}

func TestValidateCode(t *testing.T) {
	if err := ValidateCode(0x0F); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("ValidateCode(0x0F) = %v", err)
	}
	if err := ValidateCode(0x10); err != nil {
		t.Errorf("ValidateCode(0x10) = %v", err)
	}
}

func TestCheckWidth(t *testing.T) {
	tests := []struct {
		name    string
		codec   Codec
		code    uint32
		wantErr bool
	}{
		{"ev1527 max", EV1527{}, 0xFFFFFF, false},
		{"ev1527 bit 24", EV1527{}, 0x1000000, true},
		{"ev1527 high bits", EV1527{}, 0x01000005, true},
		{"lightstrip max", LightStrip{}, 0x1FFFFFF, false},
		{"lightstrip bit 25", LightStrip{}, 0x2000000, true},
		{"lightstrip top bit", LightStrip{}, 0x80000000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckWidth(tt.codec, tt.code)
			if tt.wantErr && !errors.Is(err, ErrInvalidCode) {
				t.Errorf("CheckWidth(%#x) = %v, want %v", tt.code, err, ErrInvalidCode)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("CheckWidth(%#x) = %v", tt.code, err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"ev1527":       KindEV1527,
		"EV1527":       KindEV1527,
		"lightstrip":   KindLightStrip,
		" LightStrip ": KindLightStrip,
	} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseKind("x10"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("ParseKind(x10) error = %v", err)
	}
	if _, err := DefaultCodecs().Lookup(KindUnknown); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Lookup(unknown) error = %v", err)
	}
}

func TestCodecRadioConfig(t *testing.T) {
	if br := (EV1527{}).RadioConfig().BitRate; br != EV1527BitRate {
		t.Errorf("EV1527 default bit rate = %d", br)
	}
	if br := (EV1527{BitRate: 2700}).RadioConfig().BitRate; br != 2700 {
		t.Errorf("EV1527 override bit rate = %d", br)
	}
	ls := LightStrip{}.RadioConfig()
	if ls.BitRate != LightStripBitRate || !ls.Modulation.OOK() || ls.FreqHz != CarrierFreqHz {
		t.Errorf("LightStrip radio config = %+v", ls)
	}
	if (EV1527{}).TransmitFraming().SyncWord != nil {
		t.Error("transmit framing must not enable sync detection")
	}
}

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator(EV1527{})
	now := time.Unix(1000, 0)
	payload := EncodeEV1527(0xABCDE)[:EV1527PayloadLength]

	// leading zeros are skipped
	for i := 0; i < 3; i++ {
		if _, _, done, _ := acc.Push(0x00, now); done || acc.Len() != 0 {
			t.Fatalf("zero byte accepted")
		}
	}

	var code uint32
	var raw []byte
	var done bool
	var err error
	for _, b := range payload {
		code, raw, done, err = acc.Push(b, now)
	}
	if !done || err != nil || code != 0xABCDE {
		t.Fatalf("Push() = %#x, %v, %v", code, done, err)
	}
	if !bytes.Equal(raw, payload) || acc.Len() != 0 {
		t.Errorf("raw = % x, len = %d", raw, acc.Len())
	}

	t.Run("bad frame resets", func(t *testing.T) {
		bad := append([]byte(nil), payload...)
		bad[4] = 0x12
		var err error
		var done bool
		for _, b := range bad {
			_, _, done, err = acc.Push(b, now)
		}
		if !done || !errors.Is(err, ErrInvalidFrame) || acc.Len() != 0 {
			t.Errorf("done=%v err=%v len=%d", done, err, acc.Len())
		}
	})

	t.Run("partial frame times out", func(t *testing.T) {
		for _, b := range payload[:5] {
			acc.Push(b, now)
		}
		if acc.Expire(now.Add(9 * time.Second)) {
			t.Fatal("expired too early")
		}
		later := now.Add(11 * time.Second)
		for _, b := range payload {
			code, _, done, err = acc.Push(b, later)
		}
		if !done || err != nil || code != 0xABCDE {
			t.Errorf("after timeout Push() = %#x, %v, %v", code, done, err)
		}
	})
}
