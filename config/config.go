// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	proto "github.com/ystepanoff/ookctl/protocol"
)

// Config represents the application configuration
type Config struct {
	Hardware   HardwareConfig   `yaml:"hardware"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Protocol   ProtocolConfig   `yaml:"protocol"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Devices    []DeviceConfig   `yaml:"devices"`
}

// HardwareConfig names the SPI port and GPIO lines the transceiver hangs off.
type HardwareConfig struct {
	SPIPort     string        `yaml:"spi_port"`     // "" = first port
	SPISpeedHz  int64         `yaml:"spi_speed_hz"` // default 10 MHz
	ResetPin    string        `yaml:"reset_pin"`
	CSPin       string        `yaml:"cs_pin"` // only when CS is not driven by the controller
	HighPower   *bool         `yaml:"high_power"`
	Simulate    bool          `yaml:"simulate"` // use the in-memory chip instead of SPI
	ModeTimeout time.Duration `yaml:"mode_timeout"`
	TxTimeout   time.Duration `yaml:"tx_timeout"`
}

// SchedulerConfig tunes the transmit scheduler
type SchedulerConfig struct {
	Interval        time.Duration `yaml:"interval"`
	DefaultAttempts int           `yaml:"default_attempts"`
}

// ProtocolConfig holds per-deployment codec parameters
type ProtocolConfig struct {
	EV1527BitRate uint32 `yaml:"ev1527_bit_rate"`
}

// MQTTConfig contains MQTT bridge settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// PrometheusConfig contains the metrics endpoint settings
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// DeviceConfig is one remote controlled device.
type DeviceConfig struct {
	Name     string `yaml:"name"` // MQTT topic segment
	ID       string `yaml:"id"`   // scheduler job id, generated when empty
	Kind     string `yaml:"kind"` // ev1527 | lightstrip
	Code     uint32 `yaml:"code"`
	Attempts int    `yaml:"attempts"` // 0 = scheduler default
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns a configuration with every default filled in and no devices.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Hardware.SPISpeedHz == 0 {
		c.Hardware.SPISpeedHz = 10000000
	}
	if c.Hardware.HighPower == nil {
		on := true
		c.Hardware.HighPower = &on
	}
	if c.Hardware.ModeTimeout == 0 {
		c.Hardware.ModeTimeout = time.Second
	}
	if c.Hardware.TxTimeout == 0 {
		c.Hardware.TxTimeout = time.Second
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = proto.TickIntervalMilli * time.Millisecond
	}
	if c.Scheduler.DefaultAttempts == 0 {
		c.Scheduler.DefaultAttempts = proto.DefaultAttempts
	}
	if c.Protocol.EV1527BitRate == 0 {
		c.Protocol.EV1527BitRate = proto.EV1527BitRate
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ookctl"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "ookctl-" + uuid.NewString()[:8]
	}
	if c.Prometheus.Listen == "" {
		c.Prometheus.Listen = ":9110"
	}
	for i := range c.Devices {
		if c.Devices[i].ID == "" {
			c.Devices[i].ID = uuid.NewString()
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Hardware.SPISpeedHz < 0 {
		return fmt.Errorf("hardware.spi_speed_hz must not be negative")
	}
	if c.Scheduler.Interval < time.Millisecond {
		return fmt.Errorf("scheduler.interval must be at least 1ms")
	}
	if c.Scheduler.DefaultAttempts < 1 {
		return fmt.Errorf("scheduler.default_attempts must be at least 1")
	}
	if br := c.Protocol.EV1527BitRate; br < 500 || br > 300000 {
		return fmt.Errorf("protocol.ev1527_bit_rate must be between 500 and 300000, got %d", br)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		return fmt.Errorf("mqtt.topic_prefix must not contain wildcards")
	}
	if c.Prometheus.Enabled && c.Prometheus.Listen == "" {
		return fmt.Errorf("prometheus.listen is required when prometheus is enabled")
	}

	names := make(map[string]bool, len(c.Devices))
	ids := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Name == "" {
			return fmt.Errorf("devices[%d].name is required", i)
		}
		if strings.ContainsAny(d.Name, "/+#") {
			return fmt.Errorf("devices[%d].name %q must be a single topic level", i, d.Name)
		}
		if names[d.Name] {
			return fmt.Errorf("devices[%d].name %q is not unique", i, d.Name)
		}
		names[d.Name] = true
		if ids[d.ID] {
			return fmt.Errorf("devices[%d].id %q is not unique", i, d.ID)
		}
		ids[d.ID] = true
		kind, err := proto.ParseKind(d.Kind)
		if err != nil {
			return fmt.Errorf("devices[%d].kind: %w", i, err)
		}
		codec, err := c.Codecs().Lookup(kind)
		if err != nil {
			return fmt.Errorf("devices[%d].kind: %w", i, err)
		}
		if err := proto.ValidateCode(d.Code); err != nil {
			return fmt.Errorf("devices[%d].code: %w", i, err)
		}
		if err := proto.CheckWidth(codec, d.Code); err != nil {
			return fmt.Errorf("devices[%d].code: %w", i, err)
		}
		// EV1527 devices hold the remote code; the button nibble is added per command.
		if kind == proto.KindEV1527 && d.Code>>proto.EV1527BaseBits != 0 {
			return fmt.Errorf("devices[%d].code: %w: %#x is wider than %d bits", i, proto.ErrInvalidCode, d.Code, proto.EV1527BaseBits)
		}
		if d.Attempts < 0 {
			return fmt.Errorf("devices[%d].attempts must not be negative", i)
		}
	}
	return nil
}

// Codecs returns the device families with deployment specific parameters applied.
func (c *Config) Codecs() proto.Codecs {
	codecs := proto.DefaultCodecs()
	codecs[proto.KindEV1527] = proto.EV1527{BitRate: c.Protocol.EV1527BitRate}
	return codecs
}

// Device looks a device up by name.
func (c *Config) Device(name string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// DeviceKind parses Kind. It cannot fail on a validated config.
func (d DeviceConfig) DeviceKind() proto.Kind {
	k, _ := proto.ParseKind(d.Kind)
	return k
}
