// Package metrics exposes scheduler and tick-source counters to Prometheus.
// Values are read at scrape time; nothing is recorded on the tick path.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/pulse-trigger/internal/timer"
	"github.com/sweeney/pulse-trigger/internal/trigger"
)

const namespace = "pulse_trigger"

// SchedulerSource is the part of the scheduler read by the collectors.
type SchedulerSource interface {
	Stats() trigger.Stats
	Channels() []trigger.ChannelStatus
}

// TimerSource is the part of the tick source read by the collectors.
type TimerSource interface {
	Stats() timer.Stats
}

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer, s SchedulerSource, tm TimerSource) error {
	counter := func(name, help string, labels prometheus.Labels, f func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(f()) })
	}
	gauge := func(name, help string, f func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, f)
	}
	triggers := func(result string, f func(trigger.Stats) uint64) prometheus.Collector {
		return counter("triggers_total",
			"Total number of trigger requests by result",
			prometheus.Labels{"result": result},
			func() uint64 { return f(s.Stats()) })
	}

	collectors := []prometheus.Collector{
		// Scheduler
		counter("ticks_total", "Total number of scheduler ticks", nil,
			func() uint64 { return s.Stats().Ticks }),
		triggers("accepted", func(st trigger.Stats) uint64 { return st.TriggersAccepted }),
		triggers("busy", func(st trigger.Stats) uint64 { return st.TriggersBusy }),
		triggers("invalid", func(st trigger.Stats) uint64 { return st.TriggersInvalid }),
		counter("pulses_total", "Total number of completed pulses", nil,
			func() uint64 { return s.Stats().Pulses }),
		counter("output_errors_total", "Total number of failed output writes", nil,
			func() uint64 { return s.Stats().OutputErrors }),
		counter("dropped_transitions_total", "Total number of transition notifications dropped", nil,
			func() uint64 { return s.Stats().DroppedTransitions }),
		gauge("channels_on", "Number of channels currently asserted", func() float64 {
			n := 0
			for _, c := range s.Channels() {
				if c.On {
					n++
				}
			}
			return float64(n)
		}),

		// Tick source
		counter("tick_overruns_total", "Total number of ticks that took longer than the tick period", nil,
			func() uint64 { return tm.Stats().Overruns }),
		gauge("max_tick_seconds", "Longest tick execution time seen", func() float64 {
			return tm.Stats().MaxTick.Seconds()
		}),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "register collector")
		}
	}
	return nil
}
