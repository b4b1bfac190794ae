// Package dashboard serves the operator control surface of the master node:
// a WebSocket control channel that also carries the telemetry broadcast,
// and a small HTTP API.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nightfall/core"
	"nightfall/protocol"
)

// broadcastQueue bounds the telemetry frames waiting for the hub
const broadcastQueue = 8

// writeWait bounds a single WebSocket write
const writeWait = 2 * time.Second

// Node is the view of the control loop the dashboard needs. Every method
// must be safe to call from HTTP goroutines.
type Node interface {
	Snapshot() core.Snapshot
	Telemetry() protocol.Telemetry
	Mailbox() *core.Mailbox
	Registry() *core.CommandRegistry
}

// Server is the dashboard HTTP server and WebSocket hub
type Server struct {
	node     Node
	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	broadcast chan []byte
	dropped   uint32
	droppedMu sync.Mutex
}

// NewServer creates a dashboard for node
func NewServer(node Node) *Server {
	return &Server{
		node: node,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, broadcastQueue),
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleConnections)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/telemetry", s.handleTelemetry)
	mux.HandleFunc("/api/motor", s.handleMotor)
	mux.HandleFunc("/api/motors", s.handleMotors)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/commands", s.handleCommands)
	return mux
}

// ListenAndServe serves the dashboard on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go s.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	log.Printf("Dashboard listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// PublishTelemetry queues a telemetry frame for every connected client.
// Called from the control loop: it never blocks, a full queue drops the frame.
func (s *Server) PublishTelemetry(t protocol.Telemetry) {
	msg, err := protocol.EncodeTelemetry(t)
	if err != nil {
		return
	}
	select {
	case s.broadcast <- msg:
	default:
		s.droppedMu.Lock()
		s.dropped++
		s.droppedMu.Unlock()
	}
}

// Dropped returns how many telemetry frames were dropped
func (s *Server) Dropped() uint32 {
	s.droppedMu.Lock()
	defer s.droppedMu.Unlock()
	return s.dropped
}

// Run delivers queued frames to the clients until ctx is cancelled
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case msg := <-s.broadcast:
			s.send(msg)
		}
	}
}

func (s *Server) send(msg []byte) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for client := range s.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("dashboard: dropping client: %v", err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) closeAll() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
}

// Clients returns the number of connected WebSocket clients
func (s *Server) Clients() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer ws.Close()

	// Greet with the current status before joining the broadcast
	s.clientsMu.Lock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	err = ws.WriteJSON(NewStatus(s.node.Snapshot()))
	if err == nil {
		s.clients[ws] = true
	}
	s.clientsMu.Unlock()
	if err != nil {
		return
	}

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			s.clientsMu.Lock()
			delete(s.clients, ws)
			s.clientsMu.Unlock()
			break
		}
		// Malformed text frames are dropped like malformed serial lines
		if err := s.node.Mailbox().PostLine(msg); err != nil {
			log.Printf("dashboard: dropped frame: %v", err)
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexPage))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewStatus(s.node.Snapshot()))
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Telemetry())
}

func (s *Server) handleMotors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewMotorReport(s.node.Snapshot()))
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewDevices(s.node.Snapshot()))
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewCommandList(s.node.Registry()))
}

// handleMotor accepts a control command from the "command" form field
func (s *Server) handleMotor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cmd := r.FormValue("command")
	if cmd == "" {
		http.Error(w, "missing command", http.StatusBadRequest)
		return
	}
	if _, ok := s.node.Registry().Lookup(cmd); !ok {
		http.Error(w, "unknown command: "+cmd, http.StatusBadRequest)
		return
	}
	if !s.node.Mailbox().PostCommand(cmd) {
		http.Error(w, "control queue full", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "command": cmd})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("dashboard: encode response: %v", err)
	}
}
