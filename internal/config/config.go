// Package config loads and validates the daemon configuration.
package config

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/pulse-trigger/internal/gpio"
	"github.com/sweeney/pulse-trigger/internal/timer"
	"github.com/sweeney/pulse-trigger/internal/trigger"
)

// Output backends.
const (
	BackendPins  = "pins"
	BackendShift = "shift"
	BackendFake  = "fake"
)

// Channel is the static configuration of one trigger output.
// Timing is in ticks.
type Channel struct {
	Pin      int `yaml:"pin"`
	PreDelay int `yaml:"pre_delay"`
	Hold     int `yaml:"hold"`
}

// Shift holds the shift-register chain wiring (BCM line offsets).
type Shift struct {
	Data      int `yaml:"data"`
	Clock     int `yaml:"clock"`
	Latch     int `yaml:"latch"`
	Registers int `yaml:"registers"`
}

// MQTT holds broker settings.
type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Config is the complete daemon configuration.
type Config struct {
	Backend            string        `yaml:"backend"`
	Chip               string        `yaml:"chip"`
	FrequencyHz        int           `yaml:"frequency_hz"`
	Channels           []Channel     `yaml:"channels"`
	Shift              Shift         `yaml:"shift"`
	MQTT               MQTT          `yaml:"mqtt"`
	HTTP               string        `yaml:"http"`
	Heartbeat          time.Duration `yaml:"heartbeat"`
	PublishTransitions bool          `yaml:"publish_transitions"`
}

// defaultPins is the BCM pinout of the reference trigger board.
var defaultPins = []int{4, 17, 27, 22, 5, 6, 13, 26}

// Default returns the built-in configuration: eight direct pins at 1 kHz.
func Default() Config {
	channels := make([]Channel, len(defaultPins))
	for i, pin := range defaultPins {
		channels[i] = Channel{Pin: pin, Hold: 10}
	}
	return Config{
		Backend:     BackendPins,
		Chip:        gpio.DefaultChip,
		FrequencyHz: 1000,
		Channels:    channels,
		Shift: Shift{
			Data:      17,
			Clock:     27,
			Latch:     22,
			Registers: 1,
		},
		MQTT: MQTT{
			Broker:      "tcp://192.168.1.200:1883",
			ClientID:    "pulse-trigger",
			TopicPrefix: "pulse/trigger",
		},
		HTTP:               ":8080",
		Heartbeat:          15 * time.Minute,
		PublishTransitions: true,
	}
}

// Load reads a YAML file on top of Default. Unknown fields are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Validate checks wiring and frequency. Timing values are not checked;
// the scheduler clamps them.
func (c Config) Validate() error {
	if len(c.Channels) == 0 {
		return errors.New("no channels configured")
	}
	if len(c.Channels) > trigger.MaxChannels {
		return errors.Errorf("%d channels configured, at most %d supported", len(c.Channels), trigger.MaxChannels)
	}
	if _, _, err := timer.Divider(c.FrequencyHz); err != nil {
		return errors.Wrap(err, "frequency_hz")
	}

	switch c.Backend {
	case BackendPins:
		seen := make(map[int]int, len(c.Channels))
		for i, ch := range c.Channels {
			if ch.Pin < 0 {
				return errors.Errorf("channel %d: invalid pin %d", i, ch.Pin)
			}
			if prev, ok := seen[ch.Pin]; ok {
				return errors.Errorf("channel %d: pin %d already used by channel %d", i, ch.Pin, prev)
			}
			seen[ch.Pin] = i
		}
	case BackendShift:
		s := c.Shift
		if s.Data < 0 || s.Clock < 0 || s.Latch < 0 {
			return errors.New("shift: data, clock and latch pins must be set")
		}
		if s.Data == s.Clock || s.Data == s.Latch || s.Clock == s.Latch {
			return errors.New("shift: data, clock and latch pins must differ")
		}
		if s.Registers < 1 {
			return errors.Errorf("shift: invalid register count %d", s.Registers)
		}
		if s.Registers*8 < len(c.Channels) {
			return errors.Errorf("shift: %d registers cannot hold %d channels", s.Registers, len(c.Channels))
		}
	case BackendFake:
	default:
		return errors.Errorf("unknown backend %q (pins|shift|fake)", c.Backend)
	}
	return nil
}

// Pins returns the per-channel line offsets.
func (c Config) Pins() []int {
	out := make([]int, len(c.Channels))
	for i, ch := range c.Channels {
		out[i] = ch.Pin
	}
	return out
}

// PreDelays returns the per-channel pre-delays.
func (c Config) PreDelays() []int {
	out := make([]int, len(c.Channels))
	for i, ch := range c.Channels {
		out[i] = ch.PreDelay
	}
	return out
}

// HoldTimes returns the per-channel hold times.
func (c Config) HoldTimes() []int {
	out := make([]int, len(c.Channels))
	for i, ch := range c.Channels {
		out[i] = ch.Hold
	}
	return out
}
