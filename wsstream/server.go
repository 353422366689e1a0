// Package wsstream broadcasts terminal traffic and test results to
// WebSocket clients and serves a JSON snapshot of the current run.
package wsstream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Nistp/SerialTerminalGUI/serialio"
	"github.com/Nistp/SerialTerminalGUI/testsuite"
)

// Event is the wire shape pushed to clients.
type Event struct {
	Type string `json:"type"` // "terminal" or "result"
	Data any    `json:"data"`
}

type resultEntry struct {
	Name   string               `json:"name"`
	Result testsuite.TestResult `json:"result"`
}

// Server fans events out to connected WebSocket clients.
type Server struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	results map[string]resultEntry
}

func New(log zerolog.Logger) *Server {
	return &Server{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
		results: make(map[string]resultEntry),
	}
}

// Handler returns the HTTP mux: /ws for the event stream, /api/results
// for the latest result per test.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/results", s.handleResults)
	return mux
}

// BroadcastMessage pushes one terminal line to all clients.
func (s *Server) BroadcastMessage(msg serialio.Message) {
	s.broadcast(Event{Type: "terminal", Data: msg})
}

// BroadcastResult records and pushes one finalized test result.
func (s *Server) BroadcastResult(tc testsuite.TestCase, result testsuite.TestResult) {
	entry := resultEntry{Name: tc.Name, Result: result}
	s.mu.Lock()
	s.results[tc.ID] = entry
	s.mu.Unlock()
	s.broadcast(Event{Type: "result", Data: entry})
}

func (s *Server) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		if err := client.WriteJSON(ev); err != nil {
			s.log.Debug().Err(err).Msg("dropping WebSocket client")
			client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	// Replay the known results so a late client starts in sync.
	for _, entry := range s.results {
		conn.WriteJSON(Event{Type: "result", Data: entry})
	}
	s.mu.Unlock()

	// Drain until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
			return
		}
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]resultEntry, 0, len(s.results))
	for _, entry := range s.results {
		out = append(out, entry)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
