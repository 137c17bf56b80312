package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/pulse-trigger/internal/mqtt"
	"github.com/sweeney/pulse-trigger/internal/status"
	"github.com/sweeney/pulse-trigger/internal/timer"
	"github.com/sweeney/pulse-trigger/internal/trigger"
)

// scheduler is the part of *trigger.Scheduler the loop drives.
type scheduler interface {
	TriggerStart(channel int) bool
	SetAllOff()
	SetPreDelay(channel, ticks int)
	SetHoldTime(channel, ticks int)
	Channels() []trigger.ChannelStatus
	Stats() trigger.Stats
}

type timerStats interface {
	Stats() timer.Stats
}

// loop is the non-tick side of the daemon: it applies commands, publishes
// transitions and keeps the status tracker current. client may be nil
// when MQTT is disabled.
type loop struct {
	sched       scheduler
	timer       timerStats
	client      mqtt.Client
	tracker     *status.Tracker
	transitions <-chan trigger.Transition
	heartbeat   *status.Heartbeat
	now         func() time.Time
	log         zerolog.Logger
}

func (l *loop) run(ctx context.Context, statusTick <-chan time.Time, sig <-chan os.Signal) error {
	var commands <-chan mqtt.Command
	if l.client != nil {
		commands = l.client.Commands()
	}

	for {
		select {
		case <-ctx.Done():
			l.sched.SetAllOff()
			return nil

		case s := <-sig:
			l.log.Info().Str("signal", s.String()).Msg("shutting down")
			l.sched.SetAllOff()
			l.refresh()
			if l.client != nil {
				reason := signalName(s)
				snap := l.tracker.Snapshot()
				err := l.client.PublishSystem(mqtt.SystemEvent{
					Timestamp:  l.now(),
					Event:      "SHUTDOWN",
					Reason:     reason,
					Retained:   true,
					RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
				})
				if err != nil {
					l.log.Warn().Err(err).Msg("failed to publish shutdown event")
				} else {
					l.log.Info().Msg("published shutdown event")
				}
			}
			return nil

		case t := <-l.transitions:
			l.log.Debug().Int("channel", t.Channel).Bool("on", t.On).Uint64("tick", t.Tick).Msg("transition")
			if l.client == nil {
				continue
			}
			err := l.client.Publish(mqtt.PulseEvent{
				Timestamp: l.now(),
				Channel:   t.Channel,
				On:        t.On,
				Tick:      t.Tick,
			})
			if err != nil {
				// Don't crash on publish failure
				l.log.Warn().Err(err).Msg("publish error")
			}

		case cmd := <-commands:
			applyCommand(l.sched, cmd, l.log)

		case <-statusTick:
			l.refresh()
			t := l.now()
			if !l.heartbeat.Due(t) {
				continue
			}
			if net := readNetworkInfo(); net != nil {
				l.tracker.SetNetwork(net)
			}
			snap := l.tracker.Snapshot()
			l.log.Info().
				Uint64("ticks", snap.Scheduler.Ticks).
				Uint64("pulses", snap.Scheduler.Pulses).
				Uint64("overruns", snap.Timer.Overruns).
				Uint64("output_errors", snap.Scheduler.OutputErrors).
				Msg("heartbeat")
			if l.client == nil {
				continue
			}
			err := l.client.PublishSystem(mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			})
			if err != nil {
				l.log.Warn().Err(err).Msg("heartbeat publish error")
			}
		}
	}
}

// refresh copies scheduler, timer and connection state into the tracker.
func (l *loop) refresh() {
	l.tracker.Update(l.sched.Channels(), l.sched.Stats(), l.timer.Stats())
	if l.client != nil {
		l.tracker.SetMQTTConnected(l.client.IsConnected())
	}
}

// applyCommand forwards an inbound command to the scheduler. Unknown
// channels and busy channels are ignored by the scheduler itself.
func applyCommand(s scheduler, cmd mqtt.Command, log zerolog.Logger) {
	switch cmd.Type {
	case mqtt.CmdTrigger:
		accepted := s.TriggerStart(cmd.Channel)
		log.Debug().Int("channel", cmd.Channel).Bool("accepted", accepted).Msg("trigger")
	case mqtt.CmdAllOff:
		s.SetAllOff()
		log.Info().Msg("all off")
	case mqtt.CmdSetPreDelay:
		s.SetPreDelay(cmd.Channel, cmd.Ticks)
		log.Info().Int("channel", cmd.Channel).Int("ticks", cmd.Ticks).Msg("pre-delay set")
	case mqtt.CmdSetHoldTime:
		s.SetHoldTime(cmd.Channel, cmd.Ticks)
		log.Info().Int("channel", cmd.Channel).Int("ticks", cmd.Ticks).Msg("hold time set")
	default:
		log.Warn().Str("command", string(cmd.Type)).Msg("unknown command")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
