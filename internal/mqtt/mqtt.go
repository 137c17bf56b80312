// Package mqtt provides the MQTT command and event surface with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// DefaultTopicPrefix is the prefix used when none is configured.
const DefaultTopicPrefix = "pulse/trigger"

// Topics are the MQTT topics derived from a prefix.
type Topics struct {
	Commands string // inbound commands
	Events   string // pulse transitions
	System   string // lifecycle events (retained)
}

// TopicsFor returns the topics under prefix.
func TopicsFor(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Commands: prefix + "/cmd",
		Events:   prefix + "/events",
		System:   prefix + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pulse transition event.
	// Returns error if publishing fails (should not crash the process).
	Publish(event PulseEvent) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Client is the full MQTT surface used by the daemon.
type Client interface {
	Publisher
	ConnectionStatus

	// Commands delivers parsed inbound commands.
	Commands() <-chan Command
}

// PulseEvent is a channel output transition.
type PulseEvent struct {
	Timestamp time.Time
	Channel   int
	On        bool
	Tick      uint64
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT pulse event payload structure.
type Payload struct {
	Pulse PulsePayload `json:"pulse"`
}

// PulsePayload contains the pulse event details.
type PulsePayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Channel   int    `json:"channel"`
	Tick      uint64 `json:"tick"`
}

// FormatPayload creates the JSON payload for a pulse event.
func FormatPayload(event PulseEvent) ([]byte, error) {
	name := "OFF"
	if event.On {
		name = "ON"
	}
	payload := Payload{
		Pulse: PulsePayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:     name,
			Channel:   event.Channel,
			Tick:      event.Tick,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// CommandType names an inbound command.
type CommandType string

const (
	CmdTrigger     CommandType = "TRIGGER"
	CmdAllOff      CommandType = "ALL_OFF"
	CmdSetPreDelay CommandType = "SET_PRE_DELAY"
	CmdSetHoldTime CommandType = "SET_HOLD_TIME"
)

// Command is a parsed inbound command.
type Command struct {
	Type    CommandType
	Channel int
	Ticks   int
}

// commandJSON is the wire form of a command.
type commandJSON struct {
	Command string `json:"command"`
	Channel *int   `json:"channel"`
	Ticks   *int   `json:"ticks"`
}

// ParseCommand decodes and checks the shape of a command payload.
// Channel and tick ranges are not checked here; the scheduler ignores or
// clamps them.
func ParseCommand(data []byte) (Command, error) {
	var raw commandJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Command{}, errors.Wrap(err, "decode command")
	}

	cmd := Command{Type: CommandType(raw.Command)}
	switch cmd.Type {
	case CmdAllOff:
		return cmd, nil
	case CmdTrigger, CmdSetPreDelay, CmdSetHoldTime:
	default:
		return Command{}, errors.Errorf("unknown command %q", raw.Command)
	}

	if raw.Channel == nil {
		return Command{}, errors.Errorf("%s: missing channel", cmd.Type)
	}
	cmd.Channel = *raw.Channel
	if cmd.Type == CmdTrigger {
		return cmd, nil
	}

	if raw.Ticks == nil {
		return Command{}, errors.Errorf("%s: missing ticks", cmd.Type)
	}
	cmd.Ticks = *raw.Ticks
	return cmd, nil
}
