// Package statusfeed streams monitor activity to WebSocket clients.
//
// The monitor worker publishes every finished iteration. Clients connected
// to /ws receive a status snapshot on connect and one message per event
// afterwards; /health reports the same snapshot as JSON.
package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hepwiki/wikibot/internal/history"
)

// MessageType defines the type of feed message
type MessageType string

const (
	// MessageTypeStatus carries the current Status
	MessageTypeStatus MessageType = "status"

	// MessageTypeRunStarted indicates the monitor began processing a head
	MessageTypeRunStarted MessageType = "run_started"

	// MessageTypeRunFinished carries a finished history.Run
	MessageTypeRunFinished MessageType = "run_finished"

	// MessageTypeWatermark indicates the success watermark moved
	MessageTypeWatermark MessageType = "watermark"
)

// Message is one feed event
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Status is the snapshot sent on connect
type Status struct {
	Head      string       `json:"head,omitempty"`
	Watermark string       `json:"watermark,omitempty"`
	Busy      bool         `json:"busy"`
	LastRun   *history.Run `json:"last_run,omitempty"`
	Clients   int          `json:"clients"`
}

// RunStartedData identifies the head being processed
type RunStartedData struct {
	RunID string `json:"run_id"`
	Head  string `json:"head"`
}

// WatermarkData carries the new watermark
type WatermarkData struct {
	Commit string `json:"commit"`
}

// Config holds server configuration
type Config struct {
	// Addr to listen on, e.g. ":8080" or "127.0.0.1:0"
	Addr string

	// Logger for server activity (default: slog.Default)
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":8080",
		Logger: slog.Default(),
	}
}

// Server manages WebSocket connections and broadcasts feed messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	status   Status
	statusMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// NewServer creates a feed server. It does not listen until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      config.Addr,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger.With("component", "statusfeed"),
	}
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("status feed listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Info("status feed stopped")
	return nil
}

// Broadcast queues a message for all connected clients. It never blocks;
// messages are dropped when the queue is full.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("broadcast channel full, dropping message", "type", string(msg.Type))
	}
}

func (s *Server) publish(typ MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal message", "type", string(typ), "error", err)
		return
	}
	s.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: raw})
}

// RunStarted marks the monitor busy with head.
func (s *Server) RunStarted(runID, head string) {
	s.statusMu.Lock()
	s.status.Head = head
	s.status.Busy = true
	s.statusMu.Unlock()

	s.publish(MessageTypeRunStarted, RunStartedData{RunID: runID, Head: head})
}

// RunFinished publishes a finished iteration.
func (s *Server) RunFinished(run history.Run) {
	s.statusMu.Lock()
	s.status.Busy = false
	s.status.LastRun = &run
	s.statusMu.Unlock()

	s.publish(MessageTypeRunFinished, run)
}

// WatermarkMoved publishes a new success watermark.
func (s *Server) WatermarkMoved(commit string) {
	s.statusMu.Lock()
	s.status.Watermark = commit
	s.statusMu.Unlock()

	s.publish(MessageTypeWatermark, WatermarkData{Commit: commit})
}

// Status returns the current snapshot.
func (s *Server) Status() Status {
	s.statusMu.RLock()
	st := s.status
	s.statusMu.RUnlock()
	st.Clients = s.ClientCount()
	return st
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to marshal message", "error", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Debug("failed to send to client", "error", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// The snapshot goes out before the client can receive broadcasts.
	raw, _ := json.Marshal(s.Status())
	welcome, _ := json.Marshal(Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: raw})
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, welcome)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Debug("client connected", "total", clientCount)

	go s.readLoop(conn)
}

// readLoop keeps the connection alive until the client goes away
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Debug("client disconnected", "total", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns the status snapshot
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"feed":   s.Status(),
	})
}

// Addr returns the listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
