package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Channels      []ChannelJSON `json:"channels"`
	ChannelsOn    int           `json:"channels_on"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"counts"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is the JSON representation of one channel.
type ChannelJSON struct {
	Channel  int    `json:"channel"`
	State    string `json:"state"`
	Busy     bool   `json:"busy"`
	PreDelay int    `json:"pre_delay"`
	Hold     int    `json:"hold"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of the scheduler and timer counters.
type CountsJSON struct {
	Ticks              uint64 `json:"ticks"`
	TriggersAccepted   uint64 `json:"triggers_accepted"`
	TriggersBusy       uint64 `json:"triggers_busy"`
	TriggersInvalid    uint64 `json:"triggers_invalid"`
	Pulses             uint64 `json:"pulses"`
	OutputErrors       uint64 `json:"output_errors"`
	DroppedTransitions uint64 `json:"dropped_transitions"`
	TickOverruns       uint64 `json:"tick_overruns"`
	MaxTickMicros      int64  `json:"max_tick_us"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string  `json:"backend"`
	Channels    int     `json:"channels"`
	FrequencyHz float64 `json:"frequency_hz"`
	Divider     int     `json:"divider"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	Broker      string  `json:"broker"`
	TopicPrefix string  `json:"topic_prefix"`
	HTTPAddr    string  `json:"http_addr"`
}

// StateString renders an output level the way every payload does.
func StateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	channels := make([]ChannelJSON, len(snap.Channels))
	for i, c := range snap.Channels {
		channels[i] = ChannelJSON{
			Channel:  i,
			State:    StateString(c.On),
			Busy:     c.Busy,
			PreDelay: c.PreDelay,
			Hold:     c.HoldTime,
		}
	}

	return StatusInner{
		Channels:      channels,
		ChannelsOn:    snap.ChannelsOn(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Ticks:              snap.Scheduler.Ticks,
			TriggersAccepted:   snap.Scheduler.TriggersAccepted,
			TriggersBusy:       snap.Scheduler.TriggersBusy,
			TriggersInvalid:    snap.Scheduler.TriggersInvalid,
			Pulses:             snap.Scheduler.Pulses,
			OutputErrors:       snap.Scheduler.OutputErrors,
			DroppedTransitions: snap.Scheduler.DroppedTransitions,
			TickOverruns:       snap.Timer.Overruns,
			MaxTickMicros:      snap.Timer.MaxTick.Microseconds(),
		},
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			Channels:    snap.Config.Channels,
			FrequencyHz: snap.Config.FrequencyHz,
			Divider:     snap.Config.Divider,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			TopicPrefix: snap.Config.TopicPrefix,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
