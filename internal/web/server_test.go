package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sweeney/pulse-trigger/internal/status"
	"github.com/sweeney/pulse-trigger/internal/timer"
	"github.com/sweeney/pulse-trigger/internal/trigger"
)

type fakeController struct {
	triggered []int
	allOff    int
	accept    bool
}

func (f *fakeController) TriggerStart(channel int) bool {
	f.triggered = append(f.triggered, channel)
	return f.accept
}

func (f *fakeController) SetAllOff() {
	f.allOff++
}

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *fakeController) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Backend:     "pins",
		Channels:    2,
		FrequencyHz: 1041.7,
		Divider:     15,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	}
	tr := status.NewTracker(start, cfg)
	ctrl := &fakeController{accept: true}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "pulse_trigger_test_total", Help: "test"}))

	srv := New(":0", tr, ctrl, reg, zerolog.Nop())
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr, ctrl
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.Update(
		[]trigger.ChannelStatus{{On: true, Busy: true, PreDelay: 2, HoldTime: 3}, {HoldTime: 10}},
		trigger.Stats{Ticks: 500, TriggersAccepted: 5},
		timer.Stats{},
	)
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if len(sj.Status.Channels) != 2 {
		t.Fatalf("channels: got %d, want 2", len(sj.Status.Channels))
	}
	if sj.Status.Channels[0].State != "ON" {
		t.Errorf("channel 0: got %q, want ON", sj.Status.Channels[0].State)
	}
	if sj.Status.Channels[1].Hold != 10 {
		t.Errorf("channel 1 hold: got %d, want 10", sj.Status.Channels[1].Hold)
	}
	if sj.Status.Counts.Ticks != 500 {
		t.Errorf("Counts.Ticks: got %d, want 500", sj.Status.Counts.Ticks)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Config.Divider != 15 {
		t.Errorf("Config.Divider: got %d, want 15", sj.Status.Config.Divider)
	}
}

func TestIndexHTML(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.Update(
		[]trigger.ChannelStatus{{On: true, Busy: true}, {Busy: true}},
		trigger.Stats{Pulses: 3},
		timer.Stats{},
	)

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q", path, ct)
		}
		html := string(body)
		for _, want := range []string{"Pulse Trigger", `class="on"`, "(waiting)", "divider 15", "/trigger?channel=1"} {
			if !strings.Contains(html, want) {
				t.Errorf("%s: body missing %q", path, want)
			}
		}
	}
}

func TestNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestTriggerEndpoint(t *testing.T) {
	ts, _, ctrl := newTestServer(t)

	resp, err := http.Post(ts.URL+"/trigger?channel=1", "", nil)
	if err != nil {
		t.Fatalf("POST /trigger: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status: got %d, want 202", resp.StatusCode)
	}
	var tr TriggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Channel != 1 || !tr.Accepted {
		t.Errorf("response: got %+v", tr)
	}
	if len(ctrl.triggered) != 1 || ctrl.triggered[0] != 1 {
		t.Errorf("triggered: got %v, want [1]", ctrl.triggered)
	}
}

func TestTriggerEndpointIgnored(t *testing.T) {
	ts, _, ctrl := newTestServer(t)
	ctrl.accept = false

	resp, err := http.Post(ts.URL+"/trigger?channel=99", "", nil)
	if err != nil {
		t.Fatalf("POST /trigger: %v", err)
	}
	defer resp.Body.Close()

	// Ignored triggers are not HTTP errors.
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status: got %d, want 202", resp.StatusCode)
	}
	var tr TriggerResponse
	json.NewDecoder(resp.Body).Decode(&tr)
	if tr.Accepted {
		t.Error("expected accepted=false")
	}
}

func TestTriggerEndpointBadRequest(t *testing.T) {
	ts, _, ctrl := newTestServer(t)

	resp, err := http.Post(ts.URL+"/trigger?channel=abc", "", nil)
	if err != nil {
		t.Fatalf("POST /trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/trigger?channel=1")
	if err != nil {
		t.Fatalf("GET /trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
	if len(ctrl.triggered) != 0 {
		t.Errorf("no trigger expected, got %v", ctrl.triggered)
	}
}

func TestAllOffEndpoint(t *testing.T) {
	ts, _, ctrl := newTestServer(t)

	resp, err := http.Post(ts.URL+"/all-off", "", nil)
	if err != nil {
		t.Fatalf("POST /all-off: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", resp.StatusCode)
	}
	if ctrl.allOff != 1 {
		t.Errorf("allOff calls: got %d, want 1", ctrl.allOff)
	}

	resp, err = http.Get(ts.URL + "/all-off")
	if err != nil {
		t.Fatalf("GET /all-off: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "pulse_trigger_test_total") {
		t.Errorf("metrics body missing registered counter:\n%s", body)
	}
}
