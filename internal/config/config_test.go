package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulse-trigger.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Channels) != 8 {
		t.Errorf("channels: got %d, want 8", len(cfg.Channels))
	}
	if cfg.FrequencyHz != 1000 {
		t.Errorf("FrequencyHz: got %d, want 1000", cfg.FrequencyHz)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
backend: shift
frequency_hz: 2000
heartbeat: 30s
channels:
  - {pre_delay: 2, hold: 3}
  - {pre_delay: 0, hold: 300}
shift:
  data: 10
  clock: 11
  latch: 12
  registers: 2
mqtt:
  broker: tcp://localhost:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendShift {
		t.Errorf("Backend: got %q, want shift", cfg.Backend)
	}
	if cfg.FrequencyHz != 2000 {
		t.Errorf("FrequencyHz: got %d, want 2000", cfg.FrequencyHz)
	}
	if cfg.Heartbeat != 30*time.Second {
		t.Errorf("Heartbeat: got %v, want 30s", cfg.Heartbeat)
	}
	if cfg.Shift.Registers != 2 || cfg.Shift.Latch != 12 {
		t.Errorf("Shift: got %+v", cfg.Shift)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT.Broker: got %q", cfg.MQTT.Broker)
	}
	// Unset fields keep their defaults.
	if cfg.MQTT.TopicPrefix != "pulse/trigger" {
		t.Errorf("MQTT.TopicPrefix: got %q, want default", cfg.MQTT.TopicPrefix)
	}

	pre, hold := cfg.PreDelays(), cfg.HoldTimes()
	if pre[0] != 2 || pre[1] != 0 {
		t.Errorf("PreDelays: got %v", pre)
	}
	// Out-of-range timing is left for the scheduler to clamp.
	if hold[1] != 300 {
		t.Errorf("HoldTimes: got %v", hold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadUnknownField(t *testing.T) {
	path := writeConfig(t, "backend: pins\nfrequncy_hz: 10\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "frequncy_hz") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no channels", func(c *Config) { c.Channels = nil }},
		{"too many channels", func(c *Config) { c.Channels = make([]Channel, 65) }},
		{"frequency too low", func(c *Config) { c.FrequencyHz = 10 }},
		{"frequency too high", func(c *Config) { c.FrequencyHz = 20000 }},
		{"unknown backend", func(c *Config) { c.Backend = "spi" }},
		{"duplicate pin", func(c *Config) { c.Channels[1].Pin = c.Channels[0].Pin }},
		{"negative pin", func(c *Config) { c.Channels[0].Pin = -1 }},
		{"shift shared line", func(c *Config) {
			c.Backend = BackendShift
			c.Shift.Clock = c.Shift.Data
		}},
		{"shift too small", func(c *Config) {
			c.Backend = BackendShift
			c.Channels = make([]Channel, 9)
		}},
		{"shift no registers", func(c *Config) {
			c.Backend = BackendShift
			c.Shift.Registers = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Channels = append([]Channel(nil), cfg.Channels...)
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateFakeIgnoresPins(t *testing.T) {
	cfg := Default()
	cfg.Backend = BackendFake
	cfg.Channels = []Channel{{Pin: 1}, {Pin: 1}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
