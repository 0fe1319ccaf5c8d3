package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Tutortoise/frame-detection-service/pipeline"
)

type AppState struct {
	Pipeline    *pipeline.Pipeline
	Backend     string
	CPUFeatures []string
	Logger      *zap.SugaredLogger
}

type HealthResponse struct {
	Healthy bool   `json:"healthy"`
	State   string `json:"state"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendErrorResponse(w, "not_found", "no route for "+r.URL.Path, http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendErrorResponse(w, "method_not_allowed", r.Method+" not allowed on "+r.URL.Path, http.StatusMethodNotAllowed)
	})
}

func (s *AppState) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.Pipeline.Snapshot())
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"run_id":       s.Pipeline.RunID(),
		"backend":      s.Backend,
		"cpu_features": s.CPUFeatures,
		"pipeline":     s.Pipeline.Metrics(),
	}
	s.respond(w, http.StatusOK, response)
}

func (s *AppState) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.Pipeline.Snapshot()
	ok, msg := healthMessage(snap)
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	s.respond(w, status, HealthResponse{Healthy: ok, State: snap.State, Message: msg})
}

// respond writes v as JSON. The status line is already sent when encoding
// fails, so the failure is only logged.
func (s *AppState) respond(w http.ResponseWriter, status int, v interface{}) {
	if err := sendJSON(w, status, v); err != nil && s.Logger != nil {
		s.Logger.Warnw("failed to write response", "status", status, "error", err)
	}
}

func (s *AppState) sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	s.respond(w, status, ErrorResponse{Code: code, Message: message})
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
