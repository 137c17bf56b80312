// Package web provides the HTTP status and control server for the pulse-trigger daemon.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sweeney/pulse-trigger/internal/status"
)

// Controller is the operational surface exposed over HTTP.
type Controller interface {
	TriggerStart(channel int) bool
	SetAllOff()
}

// Server serves the status page and control endpoints over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctrl       Controller
	log        zerolog.Logger
}

// New creates a Server that reads state from tracker, forwards control
// requests to ctrl and serves metrics gathered from g.
func New(addr string, tracker *status.Tracker, ctrl Controller, g prometheus.Gatherer, log zerolog.Logger) *Server {
	s := &Server{
		tracker: tracker,
		ctrl:    ctrl,
		log:     log.With().Str("component", "web").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/trigger", s.handleTrigger)
	mux.HandleFunc("/all-off", s.handleAllOff)
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warn().Err(err).Msg("render index")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// TriggerResponse is the body returned by POST /trigger.
type TriggerResponse struct {
	Channel  int  `json:"channel"`
	Accepted bool `json:"accepted"`
}

// handleTrigger starts a cycle. An unknown or busy channel is not an HTTP
// error; the response reports accepted=false.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	channel, err := strconv.Atoi(r.URL.Query().Get("channel"))
	if err != nil {
		http.Error(w, "channel must be an integer", http.StatusBadRequest)
		return
	}

	resp := TriggerResponse{Channel: channel, Accepted: s.ctrl.TriggerStart(channel)}
	s.log.Debug().Int("channel", channel).Bool("accepted", resp.Accepted).Msg("trigger")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleAllOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.ctrl.SetAllOff()
	s.log.Info().Msg("all off")
	w.WriteHeader(http.StatusNoContent)
}
