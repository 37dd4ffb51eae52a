// Package api serves the status API and the live WebSocket feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"mine-monitor/internal/models"
	"mine-monitor/internal/services"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Monitor is what the API reads from the running pipeline
type Monitor interface {
	Status() services.Status
	Readings(limit int) []models.Reading
	AlarmHistory(limit int) []models.AlarmEvent
	ActiveAlarms() []models.AlarmEvent
	AcknowledgeAlarm(seq uint64) bool
	LatestAnalysis() (models.AnalysisResult, bool)
}

// Server is the HTTP surface of the monitor
type Server struct {
	monitor Monitor
	hub     *Hub
	router  *mux.Router
	srv     *http.Server
}

// NewServer builds the router; hub may be nil to disable /ws
func NewServer(addr string, monitor Monitor, hub *Hub) *Server {
	s := &Server{
		monitor: monitor,
		hub:     hub,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	s.router.HandleFunc("/api/status", s.getStatus).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/readings", s.getReadings).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/alarms", s.getAlarms).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/alarms/active", s.getActiveAlarms).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/alarms/{seq:[0-9]+}/ack", s.ackAlarm).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/api/analysis/latest", s.getLatestAnalysis).Methods(http.MethodGet, http.MethodOptions)

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.serveWS)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	log.Printf("API: listening on %s", s.srv.Addr)

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}

	return nil
}

// Shutdown stops accepting connections and waits for handlers until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Status())
}

func (s *Server) getReadings(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	readings := s.monitor.Readings(limit)
	if readings == nil {
		readings = []models.Reading{}
	}

	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) getAlarms(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	alarms := s.monitor.AlarmHistory(limit)
	if alarms == nil {
		alarms = []models.AlarmEvent{}
	}

	writeJSON(w, http.StatusOK, alarms)
}

func (s *Server) getActiveAlarms(w http.ResponseWriter, _ *http.Request) {
	alarms := s.monitor.ActiveAlarms()
	if alarms == nil {
		alarms = []models.AlarmEvent{}
	}

	writeJSON(w, http.StatusOK, alarms)
}

func (s *Server) ackAlarm(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(mux.Vars(r)["seq"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alarm sequence")
		return
	}

	if !s.monitor.AcknowledgeAlarm(seq) {
		writeError(w, http.StatusNotFound, "alarm not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"seq": seq, "acknowledged": true})
}

func (s *Server) getLatestAnalysis(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.monitor.LatestAnalysis()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("API: websocket upgrade error: %v", err)
		return
	}

	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, clientSendBuffer)}
	if !s.hub.registerClient(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
