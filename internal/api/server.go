package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"chathub/internal/hub"
)

// Hub is the narrow view of the chat hub the API needs. Keeps the HTTP layer
// free of business logic; it only reads snapshots and serializes them.
type Hub interface {
	Stats() hub.Stats
	Roster() []string
}

// Server exposes operational endpoints: a health check and hub statistics.
type Server struct {
	hub       Hub
	logger    *zap.Logger
	router    *http.ServeMux
	startTime time.Time
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Connections   hub.Stats `json:"connections"`
}

// StatsResponse is the GET /api/stats payload.
type StatsResponse struct {
	Connected   int      `json:"connected"`
	Joined      int      `json:"joined"`
	HistorySize int      `json:"history_size"`
	Users       []string `json:"users"`
}

// ErrorResponse is the shared error payload shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewServer creates the API server for the given hub.
func NewServer(h Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hub:       h,
		logger:    logger,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
	s.router.Handle("/api/stats", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleStats))))
}

// ServeHTTP implements http.Handler for mounting on the main server mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// healthCheck reports process liveness and current connection counts.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Connections:   s.hub.Stats(),
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Warn("failed to encode health response", zap.Error(err))
	}
}

// handleStats reports hub sizes and the current roster.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.hub.Stats()
	response := StatsResponse{
		Connected:   stats.Connected,
		Joined:      stats.Joined,
		HistorySize: stats.HistorySize,
		Users:       s.hub.Roster(),
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Warn("failed to encode stats response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
