package statesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rybkr/logarc/internal/errs"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// client is one connected WebSocket subscriber.
type client struct {
	conn   *websocket.Conn
	userID string

	writeMu sync.Mutex

	subMu        sync.RWMutex
	subscribed   map[string]bool // workspace ids; empty set means "all"
	authenticated bool
}

func (c *client) isSubscribed(workspaceID string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subscribed) == 0 {
		return true
	}
	return c.subscribed[workspaceID]
}

func (c *client) subscribe(workspaceIDs []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, id := range workspaceIDs {
		c.subscribed[id] = true
	}
}

func (c *client) unsubscribe(workspaceIDs []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, id := range workspaceIDs {
		delete(c.subscribed, id)
	}
}

// Hub fans out workspace lifecycle events to every subscribed client and,
// when an EventLog is configured, appends each event to it before
// broadcasting, so a client that reconnects (or was never connected) can
// replay what it missed.
type Hub struct {
	cfg    Config
	logger *slog.Logger
	auth   AuthValidator
	log    *EventLog
	pub    *RedisPublisher // optional; nil disables cross-process fanout

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*client

	broadcast chan Event

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	clientWg sync.WaitGroup
}

// HubConfig bundles the dependencies needed to construct a Hub.
type HubConfig struct {
	Config Config
	Logger *slog.Logger
	Auth   AuthValidator
	Log    *EventLog       // optional; nil disables durable replay
	Pub    *RedisPublisher // optional; nil disables cross-process fanout
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = defaultAuthValidator{}
	}
	c := cfg.Config
	if c.BroadcastBufferSize <= 0 {
		c = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:       c,
		logger:    logger,
		auth:      auth,
		log:       cfg.Log,
		pub:       cfg.Pub,
		clients:   make(map[*websocket.Conn]*client),
		broadcast: make(chan Event, c.BroadcastBufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the broadcast-fanout goroutine.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.handleBroadcast()
}

// Close cancels the hub, waits for the fanout goroutine, sends close frames
// to every client, then force-closes remaining connections.
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()

	h.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	count := len(conns)
	h.clientsMu.RUnlock()

	if count > 0 {
		h.logger.Info("sending close frames to state-sync clients", "count", count)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		deadline := time.Now().Add(time.Second)
		for _, conn := range conns {
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
		}
		time.Sleep(500 * time.Millisecond)
	}

	h.clientsMu.Lock()
	for conn := range h.clients {
		if err := conn.Close(); err != nil {
			h.logger.Error("failed to close state-sync connection", "err", err)
		}
	}
	h.clients = make(map[*websocket.Conn]*client)
	h.clientsMu.Unlock()

	h.clientWg.Wait()
}

// Publish records and broadcasts an event. If a durable log is configured,
// the append happens before the broadcast so a client can never observe an
// event over the wire that isn't yet recoverable on reconnect. If a Redis
// publisher is configured, the event is also fanned out cross-process.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	if h.log != nil {
		if err := h.log.Append(event); err != nil {
			return errs.Wrap(errs.IoError, "append event to durable log", err)
		}
	}
	if h.pub != nil {
		if err := h.pub.Publish(ctx, event); err != nil {
			h.logger.Error("redis publish failed", "err", err)
		}
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event; clients may be slow",
			"workspace", event.WorkspaceID, "type", event.Type)
	}
	return nil
}

func (h *Hub) handleBroadcast() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case event := <-h.broadcast:
			h.sendToSubscribers(event)
		}
	}
}

func (h *Hub) sendToSubscribers(event Event) {
	h.clientsMu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.clientsMu.RUnlock()

	var failed []*websocket.Conn
	for _, c := range snapshot {
		if !c.isSubscribed(event.WorkspaceID) {
			continue
		}
		c.writeMu.Lock()
		err1 := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		var err2 error
		if err1 == nil {
			err2 = c.conn.WriteJSON(event)
		}
		c.writeMu.Unlock()

		if err1 != nil || err2 != nil {
			h.logger.Error("event delivery failed", "addr", c.conn.RemoteAddr())
			failed = append(failed, c.conn)
		}
	}

	if len(failed) > 0 {
		h.clientsMu.Lock()
		for _, conn := range failed {
			delete(h.clients, conn)
			_ = conn.Close()
		}
		h.clientsMu.Unlock()
	}
}

// replayTo sends every durably-logged event for the client's subscribed
// workspaces, in order, before the client starts receiving live broadcasts.
func (h *Hub) replayTo(c *client) {
	if h.log == nil {
		return
	}
	events, err := h.log.ReadAll()
	if err != nil {
		h.logger.Error("failed to read durable event log for replay", "err", err)
		return
	}
	for _, event := range events {
		if !c.isSubscribed(event.WorkspaceID) {
			continue
		}
		c.writeMu.Lock()
		err1 := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		var err2 error
		if err1 == nil {
			err2 = c.conn.WriteJSON(event)
		}
		c.writeMu.Unlock()
		if err1 != nil || err2 != nil {
			h.logger.Error("replay delivery failed", "addr", c.conn.RemoteAddr())
			return
		}
	}
}
