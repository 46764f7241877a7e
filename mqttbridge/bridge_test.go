package mqttbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ystepanoff/ookctl/config"
	"github.com/ystepanoff/ookctl/driver/rfm69"
	"github.com/ystepanoff/ookctl/driver/stub"
	proto "github.com/ystepanoff/ookctl/protocol"
	"github.com/ystepanoff/ookctl/transport"
)

type published struct {
	topic  string
	status Status
}

type harness struct {
	bridge *Bridge
	sched  *transport.Scheduler
	chip   *stub.Chip

	mu   sync.Mutex
	msgs []published
}

func newHarness(t *testing.T, interval time.Duration) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Devices = []config.DeviceConfig{
		{Name: "garage", ID: "garage-id", Kind: "ev1527", Code: 0x12345, Attempts: 1},
		{Name: "strip", ID: "strip-id", Kind: "lightstrip", Code: 0xABC00, Attempts: 1},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	chip := stub.New()
	radio := rfm69.New(chip, chip, rfm69.Options{})
	if err := radio.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	sched := transport.NewScheduler(radio, transport.WithInterval(interval), transport.WithCodecs(cfg.Codecs()))

	h := &harness{sched: sched, chip: chip}
	h.bridge = New(cfg, sched)
	h.bridge.publish = func(topic string, payload []byte) error {
		var st Status
		if err := json.Unmarshal(payload, &st); err != nil {
			return err
		}
		h.mu.Lock()
		h.msgs = append(h.msgs, published{topic, st})
		h.mu.Unlock()
		return nil
	}
	t.Cleanup(func() {
		_ = sched.Close()
		h.bridge.Close()
	})
	return h
}

func (h *harness) waitMessages(t *testing.T, n int) []published {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		msgs := append([]published(nil), h.msgs...)
		h.mu.Unlock()
		if len(msgs) >= n {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d status messages, want %d", len(msgs), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandleEV1527(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		button  uint8
	}{
		{"explicit open", `{"button":"open"}`, proto.EV1527ButtonOpen},
		{"explicit close", `{"button":"Close"}`, proto.EV1527ButtonClose},
		{"state on opens", `{"state":true}`, proto.EV1527ButtonOpen},
		{"state off closes", `{"state":false}`, proto.EV1527ButtonClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Millisecond)
			if err := h.bridge.Handle("garage", []byte(tt.payload)); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			msgs := h.waitMessages(t, 1)
			if msgs[0].topic != "ookctl/garage/status" {
				t.Errorf("topic = %q", msgs[0].topic)
			}
			want := Status{ID: "garage-id", Device: "garage", Code: 0x123450 | uint32(tt.button), Outcome: "completed"}
			if msgs[0].status != want {
				t.Errorf("status = %+v, want %+v", msgs[0].status, want)
			}

			frame := proto.EV1527{}.Encode(want.Code, nil).Bytes()
			txLog := h.chip.GetTxLog()
			if len(txLog) != 2 {
				t.Fatalf("chip sent %d frames, want 2", len(txLog))
			}
			for _, got := range txLog {
				if !bytes.Equal(got, frame) {
					t.Errorf("sent % x, want % x", got, frame)
				}
			}
		})
	}
}

func TestHandleLightStrip(t *testing.T) {
	h := newHarness(t, time.Millisecond)
	if err := h.bridge.Handle("strip", []byte(`{"state":true,"brightness":0}`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	msgs := h.waitMessages(t, 2)
	byID := map[string]Status{}
	for _, m := range msgs {
		byID[m.status.ID] = m.status
	}
	if st := byID["strip-id"]; st.Code != 0xABC00 || st.Outcome != "completed" {
		t.Errorf("state job status = %+v", st)
	}
	if st := byID["strip-id-brightness"]; st.Code != 0xABD00 || st.Outcome != "completed" {
		t.Errorf("brightness job status = %+v", st)
	}
	// one attempt each, three frames per attempt
	if n := len(h.chip.GetTxLog()); n != 6 {
		t.Errorf("chip sent %d frames, want 6", n)
	}
}

func TestHandleStop(t *testing.T) {
	h := newHarness(t, time.Hour)
	if err := h.bridge.Handle("strip", []byte(`{"state":false,"attempts":100}`)); err != nil {
		t.Fatal(err)
	}
	if err := h.bridge.Handle("strip", []byte(`{"stop":true}`)); err != nil {
		t.Fatal(err)
	}
	msgs := h.waitMessages(t, 1)
	if msgs[0].status.Outcome != "stopped" {
		t.Errorf("status = %+v", msgs[0].status)
	}
	if ids := h.sched.Pending(); len(ids) != 0 {
		t.Errorf("Pending() = %v", ids)
	}
}

func TestHandleSupersede(t *testing.T) {
	h := newHarness(t, time.Hour)
	for _, p := range []string{`{"button":"open"}`, `{"button":"close"}`} {
		if err := h.bridge.Handle("garage", []byte(p)); err != nil {
			t.Fatal(err)
		}
	}
	msgs := h.waitMessages(t, 1)
	if msgs[0].status.Outcome != "superseded" || msgs[0].status.Code != 0x123451 {
		t.Errorf("status = %+v", msgs[0].status)
	}
}

func TestHandleErrors(t *testing.T) {
	h := newHarness(t, time.Hour)
	tests := []struct {
		name    string
		device  string
		payload string
		is      error
	}{
		{"unknown device", "porch", `{"state":true}`, ErrUnknownDevice},
		{"ev1527 without action", "garage", `{}`, ErrNoAction},
		{"lightstrip without action", "strip", `{"button":"open"}`, ErrNoAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.bridge.Handle(tt.device, []byte(tt.payload)); !errors.Is(err, tt.is) {
				t.Errorf("Handle() error = %v, want %v", err, tt.is)
			}
		})
	}

	if err := h.bridge.Handle("garage", []byte(`{"button":"up"}`)); err == nil {
		t.Error("unknown button accepted")
	}
	if err := h.bridge.Handle("garage", []byte(`not json`)); err == nil {
		t.Error("malformed payload accepted")
	}
	if ids := h.sched.Pending(); len(ids) != 0 {
		t.Errorf("rejected commands queued jobs: %v", ids)
	}
}

func TestDeviceFromTopic(t *testing.T) {
	h := newHarness(t, time.Hour)
	tests := map[string]string{
		"ookctl/garage/set":   "garage",
		"ookctl/garage/state": "",
		"other/garage/set":    "",
		"ookctl/a/b/set":      "",
		"ookctl//set":         "",
	}
	for topic, want := range tests {
		got, ok := h.bridge.deviceFromTopic(topic)
		if got != want || ok != (want != "") {
			t.Errorf("deviceFromTopic(%q) = %q, %v", topic, got, ok)
		}
	}
}
