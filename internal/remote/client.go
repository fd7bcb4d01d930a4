package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Wire frames for the hub protocol. These mirror the hub's types; the
// two packages stay decoupled so the client can dial any compatible
// hub.
type wsRequest struct {
	ID         int64           `json:"id"`
	Op         string          `json:"op"`
	Collection string          `json:"collection,omitempty"`
	Key        string          `json:"key,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Rev        int64           `json:"rev,omitempty"`
}

type wsFrame struct {
	// Response fields, matched by ID.
	ID       int64           `json:"id"`
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	Code     string          `json:"code,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Rev      int64           `json:"rev,omitempty"`
	Snapshot Snapshot        `json:"snapshot,omitempty"`

	// Event fields.
	Op         string `json:"op,omitempty"`
	UID        string `json:"uid,omitempty"`
	Collection string `json:"collection,omitempty"`
}

const (
	opSet         = "set"
	opGet         = "get"
	opGetRev      = "getrev"
	opGetAll      = "getall"
	opRemove      = "remove"
	opCAS         = "cas"
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"

	codeNotFound    = "not_found"
	codeRevMismatch = "rev_mismatch"
)

// reconnectDelay paces redial attempts after a dropped connection.
const reconnectDelay = 3 * time.Second

// Client implements Store and Identity over a WebSocket connection to
// the hub. The hub issues the anonymous session uid on accept, so
// signing in and connecting are the same act.
//
// A dropped connection flips Connectivity watchers to disconnected,
// ends the session, and starts background redials; a successful redial
// restores both and resubscribes every registered collection.
type Client struct {
	url    string
	root   string
	logger *log.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	session  *Session
	closed   bool
	nextID   int64
	pending  map[int64]chan wsFrame
	subs     map[string]map[int64]func(Snapshot)
	conWatch map[int64]func(bool)
	idWatch  map[int64]func(*Session)
	wg       sync.WaitGroup
}

// NewClient creates a client for the hub at url (e.g.
// "ws://localhost:8537/ws"). root is the tenant namespace every
// collection is addressed under; it may be empty. No connection is
// made until SignInAnonymously.
func NewClient(url, root string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[remote] ", log.LstdFlags)
	}
	return &Client{
		url:      url,
		root:     root,
		logger:   logger,
		pending:  make(map[int64]chan wsFrame),
		subs:     make(map[string]map[int64]func(Snapshot)),
		conWatch: make(map[int64]func(bool)),
		idWatch:  make(map[int64]func(*Session)),
	}
}

// Close tears the connection down permanently. All watchers go quiet;
// the client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	c.wg.Wait()
	return nil
}

// SignInAnonymously implements Identity.SignInAnonymously. The first
// call dials the hub; the uid in its hello frame is the session.
func (c *Client) SignInAnonymously(ctx context.Context) (Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Session{}, errors.New("client closed")
	}
	if c.session != nil {
		s := *c.session
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	return c.connect(ctx)
}

// OnAuthStateChanged implements Identity.OnAuthStateChanged.
func (c *Client) OnAuthStateChanged(fn func(*Session)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.idWatch[id] = fn
	current := c.session
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		delete(c.idWatch, id)
		c.mu.Unlock()
	}
}

// Connectivity implements Store.Connectivity.
func (c *Client) Connectivity(fn func(bool)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.conWatch[id] = fn
	state := c.conn != nil
	c.mu.Unlock()

	fn(state)

	return func() {
		c.mu.Lock()
		delete(c.conWatch, id)
		c.mu.Unlock()
	}
}

// Set implements Store.Set.
func (c *Client) Set(ctx context.Context, collection, key string, value any) error {
	data, err := marshalValue(value)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, wsRequest{Op: opSet, Collection: c.scoped(collection), Key: key, Value: data})
	return err
}

// Get implements Store.Get.
func (c *Client) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	resp, err := c.call(ctx, wsRequest{Op: opGet, Collection: c.scoped(collection), Key: key})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// GetRev implements Store.GetRev.
func (c *Client) GetRev(ctx context.Context, collection, key string) (json.RawMessage, int64, error) {
	resp, err := c.call(ctx, wsRequest{Op: opGetRev, Collection: c.scoped(collection), Key: key})
	if err != nil {
		return nil, 0, err
	}
	return resp.Value, resp.Rev, nil
}

// GetAll implements Store.GetAll.
func (c *Client) GetAll(ctx context.Context, collection string) (Snapshot, error) {
	resp, err := c.call(ctx, wsRequest{Op: opGetAll, Collection: c.scoped(collection)})
	if err != nil {
		return nil, err
	}
	if resp.Snapshot == nil {
		return Snapshot{}, nil
	}
	return resp.Snapshot, nil
}

// Remove implements Store.Remove.
func (c *Client) Remove(ctx context.Context, collection, key string) error {
	_, err := c.call(ctx, wsRequest{Op: opRemove, Collection: c.scoped(collection), Key: key})
	return err
}

// CompareAndSet implements Store.CompareAndSet.
func (c *Client) CompareAndSet(ctx context.Context, collection, key string, value any, rev int64) (int64, error) {
	data, err := marshalValue(value)
	if err != nil {
		return 0, err
	}
	resp, err := c.call(ctx, wsRequest{Op: opCAS, Collection: c.scoped(collection), Key: key, Value: data, Rev: rev})
	if err != nil {
		return 0, err
	}
	return resp.Rev, nil
}

// Subscribe implements Store.Subscribe. The registration survives
// reconnects; the hub re-delivers the current snapshot each time the
// subscription is re-established.
func (c *Client) Subscribe(ctx context.Context, collection string, fn func(Snapshot)) (func(), error) {
	// Subscriptions are tracked under the scoped name; snapshot events
	// from the hub carry it back verbatim.
	scoped := c.scoped(collection)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.subs[scoped] == nil {
		c.subs[scoped] = make(map[int64]func(Snapshot))
	}
	first := len(c.subs[scoped]) == 0
	c.subs[scoped][id] = fn
	connected := c.conn != nil
	c.mu.Unlock()

	if connected {
		if first {
			if _, err := c.call(ctx, wsRequest{Op: opSubscribe, Collection: scoped}); err != nil {
				return nil, err
			}
		} else {
			// Later subscribers still get the immediate initial
			// snapshot the contract promises.
			snap, err := c.GetAll(ctx, collection)
			if err != nil {
				return nil, err
			}
			fn(snap)
		}
	}

	cancel := func() {
		c.mu.Lock()
		delete(c.subs[scoped], id)
		last := len(c.subs[scoped]) == 0
		connected := c.conn != nil
		c.mu.Unlock()

		if last && connected {
			ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_, _ = c.call(ctx, wsRequest{Op: opUnsubscribe, Collection: scoped})
		}
	}
	return cancel, nil
}

// scoped prefixes a collection with the tenant root.
func (c *Client) scoped(collection string) string {
	if c.root == "" {
		return collection
	}
	return c.root + "/" + collection
}

// connect dials the hub, waits for the hello frame, starts the read
// loop and re-establishes any registered subscriptions.
func (c *Client) connect(ctx context.Context) (Session, error) {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return Session{}, fmt.Errorf("failed to dial hub at %s: %w", c.url, err)
	}
	conn.SetReadLimit(16 << 20)

	// First frame must be the hello carrying our uid.
	_, data, err := conn.Read(ctx)
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "no hello")
		return Session{}, fmt.Errorf("failed to read hello: %w", err)
	}
	var hello wsFrame
	if err := json.Unmarshal(data, &hello); err != nil || hello.Op != "hello" || hello.UID == "" {
		_ = conn.Close(websocket.StatusProtocolError, "bad hello")
		return Session{}, fmt.Errorf("unexpected hello frame from hub")
	}

	session := Session{UID: hello.UID}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return Session{}, errors.New("client closed")
	}
	c.conn = conn
	c.session = &session
	collections := make([]string, 0, len(c.subs))
	for col, fns := range c.subs {
		if len(fns) > 0 {
			collections = append(collections, col)
		}
	}
	conFns, idFns := c.watchersLocked()
	c.mu.Unlock()

	c.logger.Printf("Connected to hub: uid=%s", session.UID)

	// Watchers may issue requests from their callbacks (the sync engine
	// subscribes to every collection on auth), and a request only
	// completes once the read loop delivers its response. The loop must
	// be running before any watcher fires.
	c.wg.Add(1)
	go c.readLoop(conn)

	for _, fn := range conFns {
		fn(true)
	}
	for _, fn := range idFns {
		fn(&session)
	}

	for _, col := range collections {
		if _, err := c.call(ctx, wsRequest{Op: opSubscribe, Collection: col}); err != nil {
			c.logger.Printf("WARNING: failed to resubscribe to %s: %v", col, err)
		}
	}

	return session, nil
}

// readLoop dispatches inbound frames: responses to their waiting
// callers, snapshots to subscription callbacks.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	defer c.handleDisconnect(conn)

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Printf("WARNING: malformed frame from hub: %v", err)
			continue
		}

		if frame.Op == "snapshot" {
			c.mu.Lock()
			fns := make([]func(Snapshot), 0, len(c.subs[frame.Collection]))
			for _, fn := range c.subs[frame.Collection] {
				fns = append(fns, fn)
			}
			c.mu.Unlock()
			snap := frame.Snapshot
			if snap == nil {
				snap = Snapshot{}
			}
			for _, fn := range fns {
				fn(snap)
			}
			continue
		}

		c.mu.Lock()
		ch := c.pending[frame.ID]
		delete(c.pending, frame.ID)
		c.mu.Unlock()
		if ch != nil {
			ch <- frame
		}
	}
}

// handleDisconnect ends the session, fails outstanding calls and
// starts redialing unless the client was closed.
func (c *Client) handleDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.session = nil
	closed := c.closed
	waiting := c.pending
	c.pending = make(map[int64]chan wsFrame)
	conFns, idFns := c.watchersLocked()
	c.mu.Unlock()

	for _, ch := range waiting {
		close(ch)
	}

	c.logger.Printf("Disconnected from hub")
	for _, fn := range conFns {
		fn(false)
	}
	for _, fn := range idFns {
		fn(nil)
	}

	if closed {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			time.Sleep(reconnectDelay)
			c.mu.Lock()
			done := c.closed || c.conn != nil
			c.mu.Unlock()
			if done {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, err := c.connect(ctx)
			cancel()
			if err == nil {
				return
			}
			c.logger.Printf("Reconnect failed: %v", err)
		}
	}()
}

// call sends one request and waits for its response.
func (c *Client) call(ctx context.Context, req wsRequest) (wsFrame, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return wsFrame{}, errors.New("not connected to hub")
	}
	c.nextID++
	req.ID = c.nextID
	ch := make(chan wsFrame, 1)
	c.pending[req.ID] = ch
	c.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return wsFrame{}, err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return wsFrame{}, fmt.Errorf("write to hub failed: %w", err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return wsFrame{}, ctx.Err()

	case frame, ok := <-ch:
		if !ok {
			return wsFrame{}, errors.New("connection lost")
		}
		if !frame.OK {
			switch frame.Code {
			case codeNotFound:
				return frame, ErrKeyNotFound
			case codeRevMismatch:
				return frame, fmt.Errorf("%s: %w", frame.Error, ErrRevisionMismatch)
			default:
				return frame, fmt.Errorf("hub error: %s", frame.Error)
			}
		}
		return frame, nil
	}
}

func (c *Client) watchersLocked() (con []func(bool), id []func(*Session)) {
	con = make([]func(bool), 0, len(c.conWatch))
	for _, fn := range c.conWatch {
		con = append(con, fn)
	}
	id = make([]func(*Session), 0, len(c.idWatch))
	for _, fn := range c.idWatch {
		id = append(id, fn)
	}
	return con, id
}
