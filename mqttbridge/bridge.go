// Package mqttbridge exposes configured devices over MQTT. Commands arrive on
// <prefix>/<device>/set and become scheduler jobs; each job's outcome is
// published to <prefix>/<device>/status.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ystepanoff/ookctl/config"
	proto "github.com/ystepanoff/ookctl/protocol"
	"github.com/ystepanoff/ookctl/transport"
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrNoAction      = errors.New("command has nothing to do")
)

// Scheduler is the part of transport.Scheduler the bridge drives.
type Scheduler interface {
	BeginTransmitting(id string, kind proto.Kind, code uint32, state *bool, attempts int) (*transport.Job, error)
	StopTransmitting(id string) bool
}

// Command is the JSON body of a set message. Fields are optional.
type Command struct {
	State      *bool    `json:"state,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"` // lightstrip only, 0-100
	Button     string   `json:"button,omitempty"`     // ev1527 only, open | close
	Stop       bool     `json:"stop,omitempty"`
	Attempts   int      `json:"attempts,omitempty"`
}

// Status is published when a job finishes.
type Status struct {
	ID      string `json:"id"`
	Device  string `json:"device"`
	Code    uint32 `json:"code"`
	Outcome string `json:"outcome"`
}

// Bridge connects MQTT commands to a scheduler.
type Bridge struct {
	cfg     config.MQTTConfig
	devices map[string]config.DeviceConfig
	sched   Scheduler
	client  mqtt.Client

	// publish is swapped out in tests
	publish func(topic string, payload []byte) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the bridge and its MQTT client. Nothing connects until Start.
func New(cfg *config.Config, sched Scheduler) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:     cfg.MQTT,
		devices: make(map[string]config.DeviceConfig, len(cfg.Devices)),
		sched:   sched,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, d := range cfg.Devices {
		b.devices[d.Name] = d
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// subscriptions are not kept across reconnects, so subscribe on every connect
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("[MQTT] Connected to broker %s\n", cfg.MQTT.Broker)
		b.subscribe(client)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v\n", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Println("[MQTT] Attempting to reconnect...")
	})

	b.client = mqtt.NewClient(opts)
	b.publish = b.mqttPublish
	return b
}

// Start connects to the broker. Subscription happens in the connect handler.
func (b *Bridge) Start() error {
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Close stops outcome reporting and disconnects.
func (b *Bridge) Close() {
	b.cancel()
	b.wg.Wait()
	if b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

func (b *Bridge) subscribe(client mqtt.Client) {
	topic := b.cfg.TopicPrefix + "/+/set"
	token := client.Subscribe(topic, b.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		device, ok := b.deviceFromTopic(msg.Topic())
		if !ok {
			return
		}
		if err := b.Handle(device, msg.Payload()); err != nil {
			log.Printf("[MQTT] Command for %s rejected: %v\n", device, err)
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Printf("[MQTT] Failed to subscribe to %s: %v\n", topic, token.Error())
		return
	}
	log.Printf("[MQTT] Subscribed to %s\n", topic)
}

func (b *Bridge) deviceFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/")
	if !ok {
		return "", false
	}
	device, ok := strings.CutSuffix(rest, "/set")
	if !ok || device == "" || strings.Contains(device, "/") {
		return "", false
	}
	return device, true
}

// Handle applies one JSON command to the named device.
func (b *Bridge) Handle(device string, payload []byte) error {
	d, ok := b.devices[device]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, device)
	}
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("failed to parse command: %w", err)
	}

	if cmd.Stop {
		b.sched.StopTransmitting(d.ID)
		b.sched.StopTransmitting(brightnessID(d.ID))
		return nil
	}

	attempts := cmd.Attempts
	if attempts <= 0 {
		attempts = d.Attempts
	}

	switch kind := d.DeviceKind(); kind {
	case proto.KindEV1527:
		button, err := ev1527Button(cmd)
		if err != nil {
			return err
		}
		return b.begin(d, d.ID, kind, proto.EV1527ButtonCode(d.Code, button), nil, attempts)

	case proto.KindLightStrip:
		if cmd.State == nil && cmd.Brightness == nil {
			return ErrNoAction
		}
		if cmd.State != nil {
			if err := b.begin(d, d.ID, kind, d.Code, cmd.State, attempts); err != nil {
				return err
			}
		}
		if cmd.Brightness != nil {
			code := proto.BrightnessCode(d.Code, *cmd.Brightness)
			return b.begin(d, brightnessID(d.ID), kind, code, nil, attempts)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", proto.ErrUnknownKind, kind)
	}
}

func ev1527Button(cmd Command) (uint8, error) {
	switch strings.ToLower(cmd.Button) {
	case "open":
		return proto.EV1527ButtonOpen, nil
	case "close":
		return proto.EV1527ButtonClose, nil
	case "":
		if cmd.State == nil {
			return 0, ErrNoAction
		}
		if *cmd.State {
			return proto.EV1527ButtonOpen, nil
		}
		return proto.EV1527ButtonClose, nil
	}
	return 0, fmt.Errorf("unknown button %q", cmd.Button)
}

func brightnessID(id string) string { return id + "-brightness" }

func (b *Bridge) begin(d config.DeviceConfig, id string, kind proto.Kind, code uint32, state *bool, attempts int) error {
	job, err := b.sched.BeginTransmitting(id, kind, code, state, attempts)
	if err != nil {
		return err
	}
	b.wg.Add(1)
	go b.report(d.Name, job)
	return nil
}

// report publishes the job outcome once it is known.
func (b *Bridge) report(device string, job *transport.Job) {
	defer b.wg.Done()
	select {
	case <-job.Done():
	case <-b.ctx.Done():
		return
	}

	data, err := json.Marshal(Status{
		ID:      job.ID(),
		Device:  device,
		Code:    job.Code(),
		Outcome: job.Outcome().String(),
	})
	if err != nil {
		log.Printf("[MQTT] Failed to marshal status: %v\n", err)
		return
	}
	topic := fmt.Sprintf("%s/%s/status", b.cfg.TopicPrefix, device)
	if err := b.publish(topic, data); err != nil {
		log.Printf("[MQTT] Failed to publish to %s: %v\n", topic, err)
	}
}

func (b *Bridge) mqttPublish(topic string, payload []byte) error {
	token := b.client.Publish(topic, b.cfg.QoS, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timed out")
	}
	return token.Error()
}
