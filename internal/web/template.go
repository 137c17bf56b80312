package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pulse-trigger/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"state": status.StateString,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pulse Trigger</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.busy { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Pulse Trigger</h1>

<h2>Channels</h2>
<table>
<tr><th>#</th><th>State</th><th>Pre-delay</th><th>Hold</th><th></th></tr>
{{range $i, $c := .Channels}}<tr>
<td>{{$i}}</td>
<td class="{{if $c.On}}on{{else if $c.Busy}}busy{{else}}off{{end}}">{{state $c.On}}{{if and $c.Busy (not $c.On)}} (waiting){{end}}</td>
<td>{{$c.PreDelay}}</td>
<td>{{$c.HoldTime}}</td>
<td><form method="post" action="/trigger?channel={{$i}}"><button>trigger</button></form></td>
</tr>
{{end}}</table>
<form method="post" action="/all-off"><button>all off</button></form>

<h2>Counts</h2>
<table>
<tr><th>Ticks</th><td>{{.Scheduler.Ticks}}</td></tr>
<tr><th>Triggers accepted</th><td>{{.Scheduler.TriggersAccepted}}</td></tr>
<tr><th>Triggers ignored (busy)</th><td>{{.Scheduler.TriggersBusy}}</td></tr>
<tr><th>Pulses</th><td>{{.Scheduler.Pulses}}</td></tr>
<tr><th>Output errors</th><td>{{.Scheduler.OutputErrors}}</td></tr>
<tr><th>Tick overruns</th><td>{{.Timer.Overruns}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Tick rate</th><td>{{printf "%.1f" .Config.FrequencyHz}} Hz (divider {{.Config.Divider}})</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
