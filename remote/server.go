// Package remote serves player status and accepts transport commands over a
// websocket, optionally advertised on the LAN with mDNS.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-midiplay/debug"
)

const (
	statusInterval = 500 * time.Millisecond
	pingInterval   = 30 * time.Second
	writeDeadline  = 10 * time.Second
	sendBuffer     = 16
)

// Config holds server configuration
type Config struct {
	Addr      string // listen address, e.g. ":7890"
	Name      string // mDNS instance name
	Advertise bool
}

// Message is the envelope for both directions
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outgoing struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan outgoing
}

// Server pushes status to websocket clients and applies their commands
type Server struct {
	ctrl     Controller
	config   Config
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu      sync.RWMutex
	clients map[string]*client

	wg sync.WaitGroup
}

func New(ctrl Controller, config Config) *Server {
	if config.Name == "" {
		config.Name = "midiplay"
	}
	s := &Server{
		ctrl:   ctrl,
		config: config,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Local network remote; non-browser clients send no Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	return s
}

// Handler exposes the routes for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ListenAndServe serves until ctx is done (blocking - run in goroutine)
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("remote listen: %w", err)
	}
	debug.Log("remote", "listening on %s", ln.Addr())

	if s.config.Advertise {
		port := ln.Addr().(*net.TCPAddr).Port
		stop, err := advertise(s.config.Name, port)
		if err != nil {
			debug.Log("remote", "mdns: %v", err)
		} else {
			defer stop()
		}
	}

	srv := &http.Server{Handler: s.mux}
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errChan:
			serveErr = err
			break loop
		case <-ticker.C:
			if s.Clients() > 0 {
				s.Publish()
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	s.closeAll()
	s.wg.Wait()

	debug.Log("remote", "stopped")
	if serveErr != nil {
		return fmt.Errorf("remote serve: %w", serveErr)
	}
	return nil
}

// Publish sends the current status to every client
func (s *Server) Publish() {
	st := s.ctrl.Status()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		s.enqueue(c, outgoing{Type: "status", Payload: st})
	}
}

// enqueue drops the message when the client is not keeping up.
// Expects mu to be held.
func (s *Server) enqueue(c *client, msg outgoing) {
	select {
	case c.send <- msg:
	default:
		debug.LogEvery(20, "remote", "client %s send buffer full", c.id)
	}
}

func (s *Server) closeAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.conn.Close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Log("remote", "upgrade: %v", err)
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan outgoing, sendBuffer),
	}
	s.handleConnection(c)
}

func (s *Server) handleConnection(c *client) {
	defer c.conn.Close()

	st := s.ctrl.Status()
	s.mu.Lock()
	s.clients[c.id] = c
	s.enqueue(c, outgoing{Type: "status", Payload: st})
	s.mu.Unlock()
	debug.Log("remote", "client %s connected from %s", c.id, c.conn.RemoteAddr())

	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		close(c.send)
		s.mu.Unlock()
		debug.Log("remote", "client %s disconnected", c.id)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writer(c)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				debug.Log("remote", "client %s: %v", c.id, err)
			}
			return
		}
		s.handleMessage(c, data)
	}
}

func (s *Server) writer(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				debug.Log("remote", "marshal %s: %v", msg.Type, err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				debug.Log("remote", "write to %s: %v", c.id, err)
				c.conn.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func (s *Server) handleMessage(c *client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(c, "error", errorPayload{Message: "malformed message"})
		return
	}
	if msg.Type != "command" {
		s.reply(c, "error", errorPayload{Message: fmt.Sprintf("unknown message type %q", msg.Type)})
		return
	}

	var cmd Command
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		s.reply(c, "error", errorPayload{Message: "malformed command"})
		return
	}

	debug.Log("remote", "client %s: %s %v", c.id, cmd.Action, cmd.Value)
	if err := s.ctrl.Apply(cmd); err != nil {
		s.reply(c, "error", errorPayload{Message: err.Error()})
	}
	s.Publish()
}

func (s *Server) reply(c *client, typ string, payload any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.enqueue(c, outgoing{Type: typ, Payload: payload})
}
