// Package api exposes scheduler state over HTTP: JSON status endpoints and
// a websocket stream of progress events.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/strategy"
)

// Server is the HTTP API server
type Server struct {
	scheduler *strategy.Scheduler
	addr      string
	mux       *http.ServeMux
	hub       *Hub
	upgrader  websocket.Upgrader

	httpServer *http.Server
}

// NewServer creates a new API server over a running scheduler
func NewServer(scheduler *strategy.Scheduler, addr string) *Server {
	s := &Server{
		scheduler: scheduler,
		addr:      addr,
		mux:       http.NewServeMux(),
		hub:       NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/results", s.resultsHandler())
	s.mux.HandleFunc("/api/metrics", s.metricsHandler())
	s.mux.HandleFunc("/ws/progress", s.progressHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.hub.Run()
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.mux}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server and hub down
func (s *Server) Stop() {
	s.hub.Stop()
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Progress returns a progress sink that broadcasts to websocket clients
func (s *Server) Progress() strategy.ProgressFunc {
	return func(issueID, stage string, progress float64, message string) {
		s.hub.Broadcast(ProgressEvent{
			IssueID:  issueID,
			Stage:    stage,
			Progress: progress,
			Message:  message,
			Time:     time.Now().Format(time.RFC3339),
		})
	}
}

// StatusResponse summarizes scheduler state
type StatusResponse struct {
	Strategy string  `json:"strategy"`
	Total    int     `json:"total"`
	Pending  int     `json:"pending"`
	Running  int     `json:"running"`
	Complete int     `json:"completed"`
	Failed   int     `json:"failed"`
	Success  float64 `json:"success_rate"`
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := s.scheduler.Metrics()
		writeJSON(w, StatusResponse{
			Strategy: s.scheduler.Policy().Name(),
			Total:    m.Total,
			Pending:  m.Pending,
			Running:  m.Running,
			Complete: m.Completed,
			Failed:   m.Failed,
			Success:  m.SuccessRate,
		})
	}
}

// ResultResponse is the JSON shape of one terminal result
type ResultResponse struct {
	IssueID  string  `json:"issue_id"`
	Status   string  `json:"status"`
	Success  bool    `json:"success"`
	Message  string  `json:"message"`
	Duration float64 `json:"duration_seconds"`
	PRURL    string  `json:"pr_url,omitempty"`
}

func (s *Server) resultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := s.scheduler.Results()
		resp := make([]ResultResponse, 0, len(results))
		for _, result := range results {
			resp = append(resp, toResultResponse(result))
		}
		writeJSON(w, resp)
	}
}

func (s *Server) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.scheduler.Metrics())
	}
}

func (s *Server) progressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}

		c := &client{conn: conn, send: make(chan ProgressEvent, 16)}
		s.hub.register <- c
		go c.writePump()

		// Discard inbound messages, unregister on disconnect
		go func() {
			defer func() {
				select {
				case s.hub.unregister <- c:
				case <-s.hub.stop:
				}
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func toResultResponse(result *domain.Result) ResultResponse {
	return ResultResponse{
		IssueID:  result.IssueID,
		Status:   string(result.Status),
		Success:  result.Success,
		Message:  result.Message,
		Duration: result.Duration.Seconds(),
		PRURL:    result.PRURL,
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
