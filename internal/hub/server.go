// Package hub provides the WebSocket rendezvous server that devices
// synchronize through.
//
// The hub holds the authoritative shared tree in memory and exposes it
// over a small JSON request/response protocol, plus push: a client that
// subscribes to a collection receives the full collection snapshot on
// every change under it. Each connection is issued an anonymous session
// uid on accept.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/graciadivina/tiendita/internal/remote"
)

// Request is one client frame. Op selects the operation; unused fields
// stay empty.
type Request struct {
	ID         int64           `json:"id"`
	Op         string          `json:"op"`
	Collection string          `json:"collection,omitempty"`
	Key        string          `json:"key,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Rev        int64           `json:"rev,omitempty"`
}

// Response answers one Request, matched by ID.
type Response struct {
	ID       int64           `json:"id"`
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	Code     string          `json:"code,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Rev      int64           `json:"rev,omitempty"`
	Snapshot remote.Snapshot `json:"snapshot,omitempty"`
}

// Event is a server push: the hello frame on accept, and collection
// snapshots for subscribed clients.
type Event struct {
	Op         string          `json:"op"`
	UID        string          `json:"uid,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Snapshot   remote.Snapshot `json:"snapshot,omitempty"`
}

// Error codes carried in Response.Code so clients can map failures back
// to sentinel errors.
const (
	CodeNotFound    = "not_found"
	CodeRevMismatch = "rev_mismatch"
	CodeBadRequest  = "bad_request"
)

// Supported request ops.
const (
	OpSet         = "set"
	OpGet         = "get"
	OpGetRev      = "getrev"
	OpGetAll      = "getall"
	OpRemove      = "remove"
	OpCAS         = "cas"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// client is one connected device. Outbound frames are funneled through
// send so responses and snapshot pushes never interleave mid-frame.
type client struct {
	conn *websocket.Conn
	uid  string
	send chan []byte

	mu   sync.Mutex
	subs map[string]func()
}

// Server manages WebSocket connections against the shared tree.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	tree     *remote.Memory

	clients   map[*client]bool
	clientsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: ":8537")
	Addr string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":8537",
		Logger: log.Default(),
	}
}

// NewServer creates a hub around an empty shared tree.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.Addr == "" {
		config.Addr = ":8537"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:    config.Addr,
		tree:    remote.NewMemory(),
		clients: make(map[*client]bool),
		ctx:     ctx,
		cancel:  cancel,
		logger:  config.Logger,
	}
}

// Tree exposes the shared tree, for seeding and for tests.
func (s *Server) Tree() *remote.Memory {
	return s.tree
}

// Start begins the HTTP server and WebSocket handler.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Hub listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.logger.Println("Stopping hub")
	s.cancel()

	s.clientsMu.Lock()
	for c := range s.clients {
		c.close()
		_ = c.conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, c)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Println("Hub stopped")
	return nil
}

// GetAddr returns the server's listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket and issues the
// connection its anonymous session uid.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		uid:  uuid.NewString(),
		send: make(chan []byte, 64),
		subs: make(map[string]func()),
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected: uid=%s (total: %d)", c.uid, clientCount)

	s.wg.Add(1)
	go s.writeLoop(c)

	c.enqueue(mustMarshal(Event{Op: "hello", UID: c.uid}))

	go s.readLoop(c)
}

// writeLoop is the single writer for one connection.
func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.removeClient(c)
				return
			}
		}
	}
}

// readLoop processes request frames until the client disconnects.
func (s *Server) readLoop(c *client) {
	defer s.removeClient(c)

	for {
		_, data, err := c.conn.Read(s.ctx)
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.enqueue(mustMarshal(Response{OK: false, Code: CodeBadRequest, Error: "malformed request"}))
			continue
		}
		c.enqueue(mustMarshal(s.dispatch(c, &req)))
	}
}

// dispatch executes one request against the tree.
func (s *Server) dispatch(c *client, req *Request) Response {
	resp := Response{ID: req.ID, OK: true}
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	switch req.Op {
	case OpSet:
		if err := s.tree.Set(ctx, req.Collection, req.Key, req.Value); err != nil {
			return fail(req.ID, "", err)
		}

	case OpGet:
		value, err := s.tree.Get(ctx, req.Collection, req.Key)
		if err == remote.ErrKeyNotFound {
			return fail(req.ID, CodeNotFound, err)
		}
		if err != nil {
			return fail(req.ID, "", err)
		}
		resp.Value = value

	case OpGetRev:
		value, rev, err := s.tree.GetRev(ctx, req.Collection, req.Key)
		if err != nil {
			return fail(req.ID, "", err)
		}
		resp.Value = value
		resp.Rev = rev

	case OpGetAll:
		snap, err := s.tree.GetAll(ctx, req.Collection)
		if err != nil {
			return fail(req.ID, "", err)
		}
		resp.Snapshot = snap

	case OpRemove:
		if err := s.tree.Remove(ctx, req.Collection, req.Key); err != nil {
			return fail(req.ID, "", err)
		}

	case OpCAS:
		rev, err := s.tree.CompareAndSet(ctx, req.Collection, req.Key, req.Value, req.Rev)
		if err != nil {
			code := ""
			if isRevMismatch(err) {
				code = CodeRevMismatch
			}
			return fail(req.ID, code, err)
		}
		resp.Rev = rev

	case OpSubscribe:
		s.subscribe(c, req.Collection)

	case OpUnsubscribe:
		c.unsubscribe(req.Collection)

	default:
		return fail(req.ID, CodeBadRequest, fmt.Errorf("unknown op %q", req.Op))
	}
	return resp
}

// subscribe wires a tree subscription to the client's send queue. A
// repeated subscribe for the same collection replaces the old one,
// which re-delivers the current snapshot.
func (s *Server) subscribe(c *client, collection string) {
	cancel, _ := s.tree.Subscribe(s.ctx, collection, func(snap remote.Snapshot) {
		c.enqueue(mustMarshal(Event{Op: "snapshot", Collection: collection, Snapshot: snap}))
	})

	c.mu.Lock()
	if old, ok := c.subs[collection]; ok {
		old()
	}
	c.subs[collection] = cancel
	c.mu.Unlock()
}

// removeClient safely removes a client connection.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	if _, exists := s.clients[c]; exists {
		delete(s.clients, c)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		c.close()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected: uid=%s (total: %d)", c.uid, clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// handleRoot returns basic server information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Tiendita Hub</title>
</head>
<body>
    <h1>Tiendita Sync Hub</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		// Slow consumer; it will resubscribe and resync on reconnect.
	}
}

func (c *client) unsubscribe(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.subs[collection]; ok {
		cancel()
		delete(c.subs, collection)
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.subs {
		cancel()
	}
	c.subs = make(map[string]func())
}

func fail(id int64, code string, err error) Response {
	return Response{ID: id, OK: false, Code: code, Error: err.Error()}
}

func isRevMismatch(err error) bool {
	return errors.Is(err, remote.ErrRevisionMismatch)
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
