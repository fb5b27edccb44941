package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/physense-bridge/internal/emitter"
	"github.com/thatsimonsguy/physense-bridge/internal/model"
	"github.com/thatsimonsguy/physense-bridge/internal/state"
)

// Bridge is what the API needs from the bridge facade.
type Bridge interface {
	Snapshot() state.Snapshot
	LED(device model.Device) (model.LEDState, bool)
	Emit(device, value string) error
	PressButton(n int) error
	ToggleLight() (model.Light, error)
	SetClimate(device model.Device, v float64) error
}

// EventSource serves the journal; nil when the journal is disabled.
type EventSource interface {
	Recent(limit int) ([]model.Event, error)
	StatusCounts() (map[model.EventStatus]int, error)
}

type Server struct {
	bridge Bridge
	events EventSource
	http   *http.Server
}

type EmitRequest struct {
	Device string `json:"device"`
	Value  string `json:"value"`
}

type ClimateRequest struct {
	Value *float64 `json:"value"`
}

type LEDResponse struct {
	Device string `json:"device"`
	State  string `json:"state"`
}

type LightResponse struct {
	Light string `json:"light"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const defaultEventLimit = 50

func NewServer(bridge Bridge, events EventSource) *Server {
	return &Server{
		bridge: bridge,
		events: events,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/leds/", s.handleLED)
	mux.HandleFunc("/api/emit", s.handleEmit)
	mux.HandleFunc("/api/buttons/", s.handleButton)
	mux.HandleFunc("/api/light/toggle", s.handleLightToggle)
	mux.HandleFunc("/api/climate/", s.handleClimate)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/events/stats", s.handleEventStats)

	// Add CORS middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// Start serves the API in the background. Use Shutdown to stop it.
func (s *Server) Start(port int) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("address", addr).Msg("Starting REST API server")
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("REST API server failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.bridge.Snapshot())
}

func (s *Server) handleLED(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	device := strings.TrimPrefix(r.URL.Path, "/api/leds/")
	ledState, ok := s.bridge.LED(model.Device(device))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Unknown LED. Valid LEDs: rled, yled, gled, bled")
		return
	}
	s.writeJSON(w, http.StatusOK, LEDResponse{Device: device, State: string(ledState)})
}

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req EmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.bridge.Emit(req.Device, req.Value); err != nil {
		s.writeSendError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	n, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/api/buttons/"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Button number required")
		return
	}

	if err := s.bridge.PressButton(n); err != nil {
		s.writeSendError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleLightToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	light, err := s.bridge.ToggleLight()
	if err != nil {
		s.writeSendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, LightResponse{Light: string(light)})
}

func (s *Server) handleClimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	device := model.Device(strings.TrimPrefix(r.URL.Path, "/api/climate/"))
	if _, ok := model.ClimateRanges[device]; !ok {
		s.writeError(w, http.StatusNotFound, "Unknown climate sensor. Valid sensors: temp, humid, press")
		return
	}

	var req ClimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.bridge.SetClimate(device, *req.Value); err != nil {
		s.writeSendError(w, err)
		return
	}

	log.Debug().Str("device", string(device)).Float64("value", *req.Value).Msg("Climate updated via API")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.events == nil {
		s.writeError(w, http.StatusNotFound, "Event journal disabled")
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.events.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read event journal")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.events == nil {
		s.writeError(w, http.StatusNotFound, "Event journal disabled")
		return
	}

	counts, err := s.events.StatusCounts()
	if err != nil {
		log.Error().Err(err).Msg("Failed to count journal events")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, counts)
}

// writeSendError maps bridge errors onto status codes: validation problems are the
// caller's fault, send failures are reported as a bad gateway.
func (s *Server) writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, emitter.ErrSendFailed):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, emitter.ErrUnknownButton):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
